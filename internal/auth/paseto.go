package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"aidanwoods.dev/go-paseto"
	"golang.org/x/crypto/hkdf"
)

const (
	pasetoHeader = "v4.local."
	// 32-byte nonce plus 32-byte authentication tag
	pasetoMinPayload = 64
	pasetoKeyInfo    = "shelfshare-auth paseto v4.local key"
)

// PasetoService handles PASETO token creation and validation
// Uses v4.local (symmetric encryption with XChaCha20-Poly1305)
type PasetoService struct {
	symmetricKey paseto.V4SymmetricKey
	opts         tokenOptions
}

// NewPasetoService derives a 32-byte v4.local key from secret with HKDF-SHA256,
// so the same AUTH_SIGNING_SECRET can drive either token format.
func NewPasetoService(secret []byte, opts ...TokenOption) (*PasetoService, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret must not be empty")
	}

	raw := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(pasetoKeyInfo)), raw); err != nil {
		return nil, fmt.Errorf("failed to derive symmetric key: %w", err)
	}

	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoService{
		symmetricKey: key,
		opts:         newTokenOptions(opts),
	}, nil
}

func (s *PasetoService) Issue(subject, email string) (string, *Claims, error) {
	issuedAt, expiresAt := s.opts.issueTimes()

	token := paseto.NewToken()
	token.SetIssuedAt(issuedAt)
	token.SetExpiration(expiresAt)
	token.SetSubject(subject)
	token.SetString("email", email)
	if s.opts.issuer != "" {
		token.SetIssuer(s.opts.issuer)
	}

	return token.V4Encrypt(s.symmetricKey, nil), &Claims{
		Subject:   subject,
		Email:     email,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *PasetoService) Verify(tokenStr string) (*Claims, error) {
	if !wellFormedPaseto(tokenStr) {
		return nil, ErrMalformedToken
	}

	// expiry is checked below against the injected clock
	parser := paseto.NewParserWithoutExpiryCheck()
	if s.opts.issuer != "" {
		parser.AddRule(paseto.IssuedBy(s.opts.issuer))
	}

	token, err := parser.ParseV4Local(s.symmetricKey, tokenStr, nil)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	subject, err := token.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrMalformedToken
	}
	email, err := token.GetString("email")
	if err != nil {
		return nil, ErrMalformedToken
	}
	issuedAt, err := token.GetIssuedAt()
	if err != nil {
		return nil, ErrMalformedToken
	}
	expiresAt, err := token.GetExpiration()
	if err != nil {
		return nil, ErrMalformedToken
	}

	if !s.opts.now().Before(expiresAt) {
		return nil, ErrExpiredToken
	}

	return &Claims{
		Subject:   subject,
		Email:     email,
		IssuedAt:  issuedAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// wellFormedPaseto reports whether tok has the v4.local framing and a
// decodable payload long enough to hold nonce and tag.
func wellFormedPaseto(tok string) bool {
	body, ok := strings.CutPrefix(tok, pasetoHeader)
	if !ok {
		return false
	}
	payload, _, _ := strings.Cut(body, ".")
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	return err == nil && len(raw) > pasetoMinPayload
}
