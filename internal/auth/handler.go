package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redmonkez12/shelfshare-auth/internal/httputil"
	"github.com/redmonkez12/shelfshare-auth/internal/logging"
	"github.com/redmonkez12/shelfshare-auth/internal/metrics"
	"github.com/redmonkez12/shelfshare-auth/internal/ratelimit"
	"github.com/redmonkez12/shelfshare-auth/internal/user"
)

// maxBodyBytes bounds the JSON request body.
const maxBodyBytes = 1 << 20

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service        *Service
	rateLimiter    ratelimit.Limiter
	trustedProxies httputil.TrustedProxies
	validator      *requestValidator
	metrics        *metrics.Metrics
}

// HandlerOptions carries the optional collaborators of a Handler.
type HandlerOptions struct {
	// RateLimiter is consulted per client IP; nil disables rate limiting.
	RateLimiter ratelimit.Limiter
	// TrustedProxies may supply the client IP through forwarding headers.
	TrustedProxies    httputil.TrustedProxies
	Metrics           *metrics.Metrics
	PasswordMinLength int
	// PasswordMaxBytes defaults to password.MaxPasswordBytes; use
	// password.MaxLength to match the configured hasher.
	PasswordMaxBytes int
}

func NewHandler(service *Service, opts HandlerOptions) *Handler {
	return &Handler{
		service:        service,
		rateLimiter:    opts.RateLimiter,
		trustedProxies: opts.TrustedProxies,
		validator:      newRequestValidator(opts.PasswordMinLength, opts.PasswordMaxBytes),
		metrics:        opts.Metrics,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,password_len,password_max"`
}

func (r *RegisterRequest) normalize() { r.Email = user.NormalizeEmail(r.Email) }

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

func (r *LoginRequest) normalize() { r.Email = user.NormalizeEmail(r.Email) }

// UserResponse represents a user in API responses
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// MeResponse is returned by the identity endpoint.
type MeResponse struct {
	User UserResponse `json:"user"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "register") {
		return
	}

	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	session, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailAlreadyExists):
			logger.Warn("registration failed: email already exists")
			respondError(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, user.ErrUnavailable):
			logger.Error("registration failed: store unavailable", "error", err.Error())
			respondError(w, "service temporarily unavailable", httputil.CodeStoreUnavailable, http.StatusServiceUnavailable)
		default:
			logger.Error("registration failed: internal error", "error", err.Error())
			respondError(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered successfully", "user_id", session.User.ID)
	respondJSON(w, newAuthResponse(session), http.StatusCreated)
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "login") {
		return
	}

	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			logger.Warn("login failed: invalid credentials")
			respondError(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
		case errors.Is(err, user.ErrUnavailable):
			logger.Error("login failed: store unavailable", "error", err.Error())
			respondError(w, "service temporarily unavailable", httputil.CodeStoreUnavailable, http.StatusServiceUnavailable)
		default:
			logger.Error("login failed: internal error", "error", err.Error())
			respondError(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user logged in successfully", "user_id", session.User.ID)
	respondJSON(w, newAuthResponse(session), http.StatusOK)
}

// Me returns the identity attached by RequireAuth.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	respondJSON(w, MeResponse{User: UserResponse{ID: identity.ID, Email: identity.Email}}, http.StatusOK)
}

// allow applies the per-IP limit for purpose. A limiter failure is logged
// and the request proceeds.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	if h.rateLimiter == nil {
		return true
	}

	logger := logging.GetLoggerFromContext(r.Context())
	ip := h.trustedProxies.ClientIP(r)

	allowed, err := h.rateLimiter.Allow(r.Context(), ratelimit.Key(purpose, ip))
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
		return true
	}
	if !allowed {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		h.metrics.RateLimited(purpose)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}
	return true
}

// normalizer is implemented by request types that canonicalize input
// before validation.
type normalizer interface {
	normalize()
}

// decode reads a single JSON object into dst, normalizes it and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	logger := logging.GetLoggerFromContext(r.Context())

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		logger.Warn("invalid request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return false
	}

	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}

	fields, err := h.validator.Struct(dst)
	if err != nil {
		logger.Error("request validation failed", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return false
	}
	if fields != nil {
		logger.Warn("request validation failed", "fields", fields)
		httputil.RespondValidationError(w, fields)
		return false
	}
	return true
}

func newAuthResponse(s *Session) AuthResponse {
	return AuthResponse{
		User:      UserResponse{ID: s.User.ID.String(), Email: s.User.Email},
		Token:     s.Token,
		TokenType: "Bearer",
		ExpiresAt: s.Claims.ExpiresAt,
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}
