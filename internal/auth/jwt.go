package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTService issues and verifies HS256 JSON Web Tokens.
type JWTService struct {
	secret []byte
	opts   tokenOptions
	parser *jwt.Parser
}

type jwtClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewJWTService(secret []byte, opts ...TokenOption) (*JWTService, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret must not be empty")
	}

	o := newTokenOptions(opts)

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(o.now),
		jwt.WithExpirationRequired(),
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}

	return &JWTService{
		secret: secret,
		opts:   o,
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

func (s *JWTService) Issue(subject, email string) (string, *Claims, error) {
	issuedAt, expiresAt := s.opts.issueTimes()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.opts.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, &Claims{
		Subject:   subject,
		Email:     email,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the signature first, then expiry, so a tampered token is
// reported as an invalid signature even when it is also expired.
func (s *JWTService) Verify(tokenStr string) (*Claims, error) {
	var claims jwtClaims
	_, err := s.parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
			errors.Is(err, jwt.ErrTokenNotValidYet),
			errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
			// claims are only checked once the signature holds
			return nil, ErrMalformedToken
		default:
			return nil, ErrInvalidSignature
		}
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrMalformedToken
	}

	return &Claims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
