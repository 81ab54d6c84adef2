package user

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/redmonkez12/shelfshare-auth/internal/database"
)

// ErrUnsupportedStore is returned by Open for an unknown URI scheme.
var ErrUnsupportedStore = errors.New("unsupported store URI scheme")

// OpenOptions tunes the connection made by Open.
type OpenOptions struct {
	ConnectTimeout time.Duration
	MaxOpenConns   int
	MaxIdleConns   int
}

// Open connects to the store named by uri and verifies it is reachable.
//
// Supported schemes: memory, postgres/postgresql, redis/rediss,
// mongodb/mongodb+srv.
func Open(ctx context.Context, uri string, opts OpenOptions) (Backend, error) {
	scheme, err := storeScheme(uri)
	if err != nil {
		return nil, err
	}

	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	switch scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return openPostgres(ctx, uri, opts)
	case "redis", "rediss":
		return openRedis(ctx, uri, opts)
	case "mongodb", "mongodb+srv":
		return openMongo(ctx, uri, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStore, scheme)
	}
}

func storeScheme(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("%w: empty URI", ErrUnsupportedStore)
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid store URI: %w", err)
	}
	if parsed.Scheme == "" {
		// bare "memory" is accepted as a shorthand
		return strings.ToLower(uri), nil
	}
	return strings.ToLower(parsed.Scheme), nil
}

func openPostgres(ctx context.Context, uri string, opts OpenOptions) (Backend, error) {
	db, err := database.Open(ctx, uri, database.PoolConfig{
		MaxOpenConns:   opts.MaxOpenConns,
		MaxIdleConns:   opts.MaxIdleConns,
		ConnectTimeout: opts.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(db), nil
}

func openRedis(ctx context.Context, uri string, opts OpenOptions) (Backend, error) {
	redisOpts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URI: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	if opts.MaxOpenConns > 0 {
		redisOpts.PoolSize = opts.MaxOpenConns
	}
	if opts.MaxIdleConns > 0 {
		redisOpts.MaxIdleConns = opts.MaxIdleConns
	}

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewRedisStore(client), nil
}

func openMongo(ctx context.Context, uri string, opts OpenOptions) (Backend, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(opts.ConnectTimeout)
	if opts.MaxOpenConns > 0 {
		clientOpts.SetMaxPoolSize(uint64(opts.MaxOpenConns))
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store, err := NewMongoStore(pingCtx, client, mongoDatabaseName(uri))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// mongoDatabaseName extracts the database from the URI path, e.g.
// mongodb://host:27017/shelfshare?authSource=admin -> shelfshare.
func mongoDatabaseName(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.Trim(parsed.Path, "/")
}
