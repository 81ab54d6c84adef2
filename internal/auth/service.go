package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redmonkez12/shelfshare-auth/internal/logging"
	"github.com/redmonkez12/shelfshare-auth/internal/metrics"
	"github.com/redmonkez12/shelfshare-auth/internal/password"
	"github.com/redmonkez12/shelfshare-auth/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// dummyPassword is hashed once and verified against when the email is
// unknown, so both login failure paths cost one password verification.
const dummyPassword = "shelfshare-auth-timing-equalizer"

// Session is the result of a successful register or login.
type Session struct {
	User   *user.User
	Token  string
	Claims *Claims
}

// Service handles authentication business logic
type Service struct {
	users   user.Store
	hasher  password.Hasher
	tokens  TokenService
	logger  *logging.Logger
	metrics *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

func NewService(
	users user.Store,
	hasher password.Hasher,
	tokens TokenService,
	logger *logging.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		logger:  logger,
		metrics: m,
	}
}

// Register creates a new account and issues a token for it. Input is
// expected to be validated by the caller.
func (s *Service) Register(ctx context.Context, email, plaintext string) (*Session, error) {
	email = user.NormalizeEmail(email)

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		s.metrics.Registration(metrics.OutcomeDuplicate)
		return nil, ErrEmailAlreadyExists
	case !errors.Is(err, user.ErrNotFound):
		s.metrics.Registration(storeOutcome(err))
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	passwordHash, err := s.hash(plaintext)
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// the store enforces uniqueness again in case of a concurrent register
	created, err := s.users.Insert(ctx, user.New(email, passwordHash))
	if err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			s.metrics.Registration(metrics.OutcomeDuplicate)
			return nil, ErrEmailAlreadyExists
		}
		s.metrics.Registration(storeOutcome(err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.issue(created)
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, err
	}

	s.metrics.Registration(metrics.OutcomeSuccess)
	return session, nil
}

// Login authenticates a user and returns a fresh token. An unknown email and
// a wrong password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*Session, error) {
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Verify(plaintext, s.timingHash())
			s.metrics.Login(metrics.OutcomeInvalid)
			return nil, ErrInvalidCredentials
		}
		s.metrics.Login(storeOutcome(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(plaintext, existing.PasswordHash) {
		s.metrics.Login(metrics.OutcomeInvalid)
		return nil, ErrInvalidCredentials
	}

	session, err := s.issue(existing)
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, err
	}

	s.metrics.Login(metrics.OutcomeSuccess)
	return session, nil
}

func (s *Service) issue(u *user.User) (*Session, error) {
	token, claims, err := s.tokens.Issue(u.ID.String(), u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{User: u, Token: token, Claims: claims}, nil
}

func (s *Service) hash(plaintext string) (string, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveHash(time.Since(start)) }()
	return s.hasher.Hash(plaintext)
}

func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("failed to prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func storeOutcome(err error) string {
	if errors.Is(err, user.ErrUnavailable) {
		return metrics.OutcomeUnavailable
	}
	return metrics.OutcomeError
}
