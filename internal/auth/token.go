package auth

import (
	"errors"
	"time"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = time.Hour

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpiredToken     = errors.New("token has expired")
)

// Claims are the facts carried inside a bearer token.
type Claims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenService defines the interface for token creation and validation.
// Implementations include JWTService (HS256) and PasetoService (PASETO v4.local).
//
// Verify never consults the user store: a token stays valid until it
// expires even if the account behind it goes away.
type TokenService interface {
	Issue(subject, email string) (string, *Claims, error)
	Verify(token string) (*Claims, error)
}

type tokenOptions struct {
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption configures a token service.
type TokenOption func(*tokenOptions)

// WithTTL sets the token lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) TokenOption {
	return func(o *tokenOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithIssuer stamps tokens with iss and rejects tokens from other issuers.
func WithIssuer(issuer string) TokenOption {
	return func(o *tokenOptions) { o.issuer = issuer }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(o *tokenOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func newTokenOptions(opts []TokenOption) tokenOptions {
	o := tokenOptions{ttl: DefaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// issueTimes returns iat and exp truncated to the second, the precision
// both token formats carry on the wire.
func (o tokenOptions) issueTimes() (time.Time, time.Time) {
	now := o.now().UTC().Truncate(time.Second)
	return now, now.Add(o.ttl)
}
