// Package password hashes and verifies user passwords.
//
// Hashes are self-describing strings: argon2id hashes use the PHC encoding
// ($argon2id$v=19$m=65536,t=3,p=4$salt$hash) and bcrypt hashes use the
// modular crypt format ($2a$/$2b$). Verify never returns an error; a
// malformed or unknown hash simply fails to match.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported algorithm names.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// MaxPasswordBytes bounds accepted passwords. bcrypt ignores input past
// 72 bytes, so GenerateFromPassword refuses it.
const (
	MaxPasswordBytes       = 1024
	MaxBcryptPasswordBytes = 72
)

// MaxLength returns the longest password, in bytes, algorithm can hash.
func MaxLength(algorithm string) int {
	if strings.EqualFold(algorithm, AlgorithmBcrypt) {
		return MaxBcryptPasswordBytes
	}
	return MaxPasswordBytes
}

// ErrUnsupportedAlgorithm is returned by New for an unknown algorithm name.
var ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")

// Hasher hashes passwords and checks them against stored hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
}

// Argon2id parameters - tuned for security vs performance balance
// Time: 3, Memory: 64MB, Threads: 4, KeyLen: 32 bytes
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16

	// upper bounds accepted when decoding a stored hash
	maxArgon2Memory = 1024 * 1024
	maxArgon2Time   = 16
	maxArgon2KeyLen = 128
)

// Argon2Hasher implements Hasher using argon2id.
type Argon2Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
}

// Argon2Option configures the argon2id hasher.
type Argon2Option func(*Argon2Hasher)

// WithArgon2Params overrides the argon2id cost parameters.
func WithArgon2Params(time, memory uint32, threads uint8) Argon2Option {
	return func(h *Argon2Hasher) {
		if time > 0 {
			h.time = time
		}
		if memory > 0 {
			h.memory = memory
		}
		if threads > 0 {
			h.threads = threads
		}
	}
}

// NewArgon2Hasher creates an argon2id hasher with the default parameters.
func NewArgon2Hasher(opts ...Argon2Option) *Argon2Hasher {
	h := &Argon2Hasher{
		time:    argon2Time,
		memory:  argon2Memory,
		threads: argon2Threads,
		keyLen:  argon2KeyLen,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash creates an argon2id hash of the password with a fresh random salt.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, h.keyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if a password matches the stored argon2id hash.
// The parameters are read from the hash itself.
func (h *Argon2Hasher) Verify(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	if memory == 0 || memory > maxArgon2Memory || time == 0 || time > maxArgon2Time || threads == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(decodedHash) == 0 || len(decodedHash) > maxArgon2KeyLen {
		return false
	}

	inputHash := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(decodedHash)))

	return subtle.ConstantTimeCompare(decodedHash, inputHash) == 1
}

// BcryptHasher implements Hasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher. Costs outside bcrypt's range
// fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(password, encodedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
}

// Multi hashes with one algorithm and verifies hashes produced by any
// supported algorithm, dispatching on the hash prefix.
type Multi struct {
	primary Hasher
	argon2  *Argon2Hasher
	bcrypt  *BcryptHasher
}

// New returns a Multi that hashes with the named algorithm.
func New(algorithm string, opts ...Argon2Option) (*Multi, error) {
	m := &Multi{
		argon2: NewArgon2Hasher(opts...),
		bcrypt: NewBcryptHasher(bcrypt.DefaultCost),
	}

	switch strings.ToLower(algorithm) {
	case "", AlgorithmArgon2id:
		m.primary = m.argon2
	case AlgorithmBcrypt:
		m.primary = m.bcrypt
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	return m, nil
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) bool {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return m.argon2.Verify(password, encodedHash)
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return m.bcrypt.Verify(password, encodedHash)
	default:
		return false
	}
}
