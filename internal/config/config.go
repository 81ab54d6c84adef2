package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/redmonkez12/shelfshare-auth/internal/httputil"
)

// DevSigningSecret is used when no secret is configured in development.
// Load refuses it in any other environment.
const DevSigningSecret = "dev-insecure-signing-secret-change-me"

const minSecretLength = 32

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Store     StoreConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins
	// TrustedProxies may set X-Forwarded-For and X-Real-IP; empty trusts nobody.
	TrustedProxies httputil.TrustedProxies
}

type AuthConfig struct {
	SigningSecret     []byte
	TokenTTL          time.Duration
	TokenFormat       string // jwt or paseto
	Issuer            string
	HashAlgorithm     string // argon2id or bcrypt
	PasswordMinLength int
}

type StoreConfig struct {
	// URI selects the backend by scheme: memory://, postgres://, redis://, mongodb://
	URI            string
	ConnectTimeout time.Duration
	MaxOpenConns   int
	MaxIdleConns   int
}

type RedisConfig struct {
	// URL enables the shared Redis rate limiter when set.
	URL string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables, after loading a
// .env file if one exists, and validates it.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "dev")
	isDev := env == "dev"
	r := &envReader{}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             env,
			ReadTimeout:     r.seconds("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    r.seconds("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: r.seconds("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
			TrustedProxies:  r.proxies("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			SigningSecret:     []byte(getEnv("AUTH_SIGNING_SECRET", getEnv("JWT_SECRET", devDefault(isDev, DevSigningSecret)))),
			TokenTTL:          r.seconds("AUTH_TOKEN_TTL_SECONDS", r.seconds("JWT_EXPIRES_IN", time.Hour)),
			TokenFormat:       strings.ToLower(getEnv("AUTH_TOKEN_FORMAT", "jwt")),
			Issuer:            getEnv("AUTH_TOKEN_ISSUER", ""),
			HashAlgorithm:     strings.ToLower(getEnv("PASSWORD_HASH_ALGORITHM", "argon2id")),
			PasswordMinLength: r.integer("PASSWORD_MIN_LENGTH", 8),
		},
		Store: StoreConfig{
			URI:            getEnv("STORE_URI", devDefault(isDev, "memory://")),
			ConnectTimeout: r.seconds("STORE_CONNECT_TIMEOUT", 10*time.Second),
			MaxOpenConns:   r.integer("STORE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   r.integer("STORE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		RateLimit: RateLimitConfig{
			Requests: r.integer("RATE_LIMIT_REQUESTS", 10),
			Window:   r.seconds("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(r.errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Env {
	case "dev", "prod":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be dev or prod, got %q", c.Server.Env))
	}

	if !c.Server.IsDevelopment() {
		secret := string(c.Auth.SigningSecret)
		switch {
		case secret == "":
			errs = append(errs, errors.New("AUTH_SIGNING_SECRET is required outside development"))
		case secret == DevSigningSecret:
			errs = append(errs, errors.New("AUTH_SIGNING_SECRET must not use the development default"))
		case len(secret) < minSecretLength:
			errs = append(errs, fmt.Errorf("AUTH_SIGNING_SECRET must be at least %d bytes, got %d", minSecretLength, len(secret)))
		}
		if c.Store.URI == "" {
			errs = append(errs, errors.New("STORE_URI is required outside development"))
		}
	}

	switch c.Auth.TokenFormat {
	case "jwt", "paseto":
	default:
		errs = append(errs, fmt.Errorf("AUTH_TOKEN_FORMAT must be jwt or paseto, got %q", c.Auth.TokenFormat))
	}

	switch c.Auth.HashAlgorithm {
	case "argon2id", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_HASH_ALGORITHM must be argon2id or bcrypt, got %q", c.Auth.HashAlgorithm))
	}

	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL_SECONDS must be positive"))
	}
	if c.Auth.PasswordMinLength < 1 {
		errs = append(errs, errors.New("PASSWORD_MIN_LENGTH must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

func devDefault(isDev bool, value string) string {
	if isDev {
		return value
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and collects the ones it cannot parse.
type envReader struct {
	errs []error
}

func (r *envReader) integer(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, value))
		return defaultValue
	}

	return intValue
}

// seconds reads a whole number of seconds.
func (r *envReader) seconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a whole number of seconds, got %q", key, value))
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

func (r *envReader) proxies(key string) httputil.TrustedProxies {
	proxies, err := httputil.ParseTrustedProxies(getSliceEnv(key, nil))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return nil
	}
	return proxies
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
