package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/shelfshare-auth/internal/database"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore persists users in Postgres through Bun.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert adds a new user. The unique index on email turns a concurrent
// duplicate into ErrAlreadyExists.
func (s *PostgresStore) Insert(ctx context.Context, u *User) (*User, error) {
	dbUser := &database.User{
		ID:           u.ID,
		Email:        NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}

	_, err := s.db.NewInsert().
		Model(dbUser).
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, unavailable("create user", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// FindByEmail retrieves a user by normalized email
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := s.db.NewSelect().
		Model(dbUser).
		Where("email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get user by email", err)
	}

	return mapDBUserToModel(dbUser), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:           dbu.ID,
		Email:        dbu.Email,
		PasswordHash: dbu.PasswordHash,
		CreatedAt:    dbu.CreatedAt,
	}
}
