package user

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("email already exists")
	ErrUnavailable   = errors.New("user store unavailable")
)

// Store is the credential store consumed by the auth service.
//
// Insert must be an atomic check-and-insert on the email: of two concurrent
// inserts for the same email exactly one succeeds, the other returns
// ErrAlreadyExists.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Insert(ctx context.Context, u *User) (*User, error)
}

// Backend is a Store bound to a live connection.
type Backend interface {
	Store
	Ping(ctx context.Context) error
	Close() error
}

// unavailable wraps a backend failure so callers can match ErrUnavailable
// without seeing driver details.
func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrUnavailable, err)
}
