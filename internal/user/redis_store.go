package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON document per user, keyed by normalized email.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// redisUser is the stored document. Unlike User it serializes the hash.
type redisUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// userKey generates the Redis key for a user record
func userKey(email string) string {
	return fmt.Sprintf("user:email:%s", NormalizeEmail(email))
}

// Insert stores the user with SETNX so only the first writer for an email wins.
func (s *RedisStore) Insert(ctx context.Context, u *User) (*User, error) {
	record := *u
	record.Email = NormalizeEmail(record.Email)

	payload, err := json.Marshal(redisUser{
		ID:           record.ID.String(),
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		CreatedAt:    record.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	created, err := s.client.SetNX(ctx, userKey(record.Email), payload, 0).Result()
	if err != nil {
		return nil, unavailable("create user", err)
	}
	if !created {
		return nil, ErrAlreadyExists
	}

	return &record, nil
}

func (s *RedisStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	payload, err := s.client.Get(ctx, userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get user by email", err)
	}

	var doc redisUser
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user ID: %w", err)
	}

	return &User{
		ID:           id,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping redis", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
