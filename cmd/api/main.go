package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/redmonkez12/shelfshare-auth/internal/auth"
	"github.com/redmonkez12/shelfshare-auth/internal/config"
	httpServer "github.com/redmonkez12/shelfshare-auth/internal/http"
	"github.com/redmonkez12/shelfshare-auth/internal/logging"
	"github.com/redmonkez12/shelfshare-auth/internal/metrics"
	"github.com/redmonkez12/shelfshare-auth/internal/password"
	"github.com/redmonkez12/shelfshare-auth/internal/ratelimit"
	"github.com/redmonkez12/shelfshare-auth/internal/user"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_format", cfg.Auth.TokenFormat,
	)
	if cfg.Server.IsDevelopment() && string(cfg.Auth.SigningSecret) == config.DevSigningSecret {
		logger.Warn("using the insecure development signing secret")
	}

	ctx := context.Background()

	// An unreachable store at boot is fatal.
	store, err := user.Open(ctx, cfg.Store.URI, user.OpenOptions{
		ConnectTimeout: cfg.Store.ConnectTimeout,
		MaxOpenConns:   cfg.Store.MaxOpenConns,
		MaxIdleConns:   cfg.Store.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	defer store.Close()

	hasher, err := password.New(cfg.Auth.HashAlgorithm)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	tokens, err := newTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	rateLimiter, closeLimiter, err := newRateLimiter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defer closeLimiter()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	authService := auth.NewService(store, hasher, tokens, logger, m)
	authHandler := auth.NewHandler(authService, auth.HandlerOptions{
		RateLimiter:       rateLimiter,
		TrustedProxies:    cfg.Server.TrustedProxies,
		Metrics:           m,
		PasswordMinLength: cfg.Auth.PasswordMinLength,
		PasswordMaxBytes:  password.MaxLength(cfg.Auth.HashAlgorithm),
	})
	authMiddleware := auth.NewMiddleware(tokens, m)

	router := httpServer.NewRouter(cfg, httpServer.Deps{
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		Logger:         logger,
		Store:          store,
		Gatherer:       registry,
	})

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

func newTokenService(cfg config.AuthConfig) (auth.TokenService, error) {
	opts := []auth.TokenOption{
		auth.WithTTL(cfg.TokenTTL),
		auth.WithIssuer(cfg.Issuer),
	}

	if cfg.TokenFormat == "paseto" {
		return auth.NewPasetoService(cfg.SigningSecret, opts...)
	}
	return auth.NewJWTService(cfg.SigningSecret, opts...)
}

// newRateLimiter uses Redis when REDIS_URL is set so limits hold across
// instances, and an in-process limiter otherwise.
func newRateLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.Redis.URL == "" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	closeFn := func() { client.Close() }
	return ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window), closeFn, nil
}
