package user

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("insert then find by normalized email", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := New("  Alice@Example.COM ", "$argon2id$hash")
		created, err := s.Insert(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", created.Email)

		found, err := s.FindByEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)
		assert.Equal(t, "alice@example.com", found.Email)
		assert.Equal(t, "$argon2id$hash", found.PasswordHash)
	})

	t.Run("find missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByEmail(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate email returns ErrAlreadyExists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Insert(ctx, New("bob@example.com", "h1"))
		require.NoError(t, err)

		_, err = s.Insert(ctx, New("BOB@example.com", "h2"))
		assert.ErrorIs(t, err, ErrAlreadyExists)

		found, err := s.FindByEmail(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, "h1", found.PasswordHash)
	})

	t.Run("concurrent inserts for one email succeed exactly once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 32
		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			conflicts atomic.Int32
		)
		start := make(chan struct{})

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := s.Insert(ctx, New("race@example.com", "hash"))
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, ErrAlreadyExists):
					conflicts.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, int32(workers-1), conflicts.Load())
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, _ := newRedisStore(t)
		return s
	})
}

func TestRedisStore_UnavailableWhenServerDown(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.FindByEmail(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Insert(context.Background(), New("alice@example.com", "hash"))
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, s.Ping(context.Background()), ErrUnavailable)
}

func TestRedisStore_StoresDocumentUnderEmailKey(t *testing.T) {
	s, mr := newRedisStore(t)

	u := New("carol@example.com", "secret-hash")
	_, err := s.Insert(context.Background(), u)
	require.NoError(t, err)

	raw, err := mr.Get("user:email:carol@example.com")
	require.NoError(t, err)
	assert.Contains(t, raw, u.ID.String())
	assert.Contains(t, raw, "secret-hash")
}

func TestOpen_Memory(t *testing.T) {
	for _, uri := range []string{"memory://", "memory"} {
		b, err := Open(context.Background(), uri, OpenOptions{})
		require.NoError(t, err, uri)
		assert.IsType(t, &MemoryStore{}, b)
		assert.NoError(t, b.Ping(context.Background()))
		assert.NoError(t, b.Close())
	}
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := Open(context.Background(), "redis://"+mr.Addr()+"/0", OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	assert.IsType(t, &RedisStore{}, b)
	assert.NoError(t, b.Ping(context.Background()))
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "cassandra://localhost", OpenOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedStore)

	_, err = Open(context.Background(), "", OpenOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedStore)
}

func TestMongoDatabaseName(t *testing.T) {
	assert.Equal(t, "shelfshare", mongoDatabaseName("mongodb://user:pw@localhost:27017/shelfshare?authSource=admin"))
	assert.Equal(t, "", mongoDatabaseName("mongodb://localhost:27017"))
}

func TestMongoUserMapping(t *testing.T) {
	u := New("dave@example.com", "hash")

	doc := toMongoUser(u)
	assert.Equal(t, u.ID.String(), doc.ID)

	back, err := fromMongoUser(&doc)
	require.NoError(t, err)
	assert.Equal(t, u.ID, back.ID)
	assert.Equal(t, u.Email, back.Email)
	assert.Equal(t, u.PasswordHash, back.PasswordHash)

	_, err = fromMongoUser(&mongoUser{ID: "not-a-uuid"})
	assert.Error(t, err)
}

func TestMongoInsertError(t *testing.T) {
	duplicate := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error collection: shelfshare.users index: email_unique"}},
	}
	assert.ErrorIs(t, mongoInsertError(duplicate), ErrAlreadyExists)

	other := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 121, Message: "Document failed validation"}},
	}
	err := mongoInsertError(other)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrAlreadyExists)

	assert.ErrorIs(t, mongoInsertError(errors.New("server selection timeout")), ErrUnavailable)
}

func TestNew_NormalizesEmailAndGeneratesID(t *testing.T) {
	a := New(" Eve@Example.com\n", "h")
	b := New("eve@example.com", "h")

	assert.Equal(t, "eve@example.com", a.Email)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())
}
