package user

import (
	"context"
	"sync"
)

// MemoryStore keeps users in a map guarded by a mutex. It is meant for
// development and tests; records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]User)}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) Insert(ctx context.Context, u *User) (*User, error) {
	record := *u
	record.Email = NormalizeEmail(record.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[record.Email]; exists {
		return nil, ErrAlreadyExists
	}
	s.byEmail[record.Email] = record

	return &record, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
