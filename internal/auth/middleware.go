package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/redmonkez12/shelfshare-auth/internal/httputil"
	"github.com/redmonkez12/shelfshare-auth/internal/logging"
	"github.com/redmonkez12/shelfshare-auth/internal/metrics"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type identityKey struct{}

// Middleware handles authentication for protected routes
type Middleware struct {
	tokenService TokenService
	metrics      *metrics.Metrics
}

func NewMiddleware(tokenService TokenService, m *metrics.Metrics) *Middleware {
	return &Middleware{tokenService: tokenService, metrics: m}
}

// RequireAuth accepts only "Authorization: Bearer <token>". Failures are
// answered with 401 and the next handler is never called.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.metrics.TokenVerified(metrics.OutcomeMissing)
			httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			m.metrics.TokenVerified(metrics.OutcomeBadHeader)
			httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
			return
		}

		claims, err := m.tokenService.Verify(token)
		if err != nil {
			logging.GetLoggerFromContext(r.Context()).Warn("token rejected", "reason", err.Error())
			switch {
			case errors.Is(err, ErrExpiredToken):
				m.metrics.TokenVerified(metrics.OutcomeExpired)
				httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
			case errors.Is(err, ErrMalformedToken):
				m.metrics.TokenVerified(metrics.OutcomeMalformed)
				httputil.RespondErrorWithCode(w, "malformed token", httputil.CodeMalformedToken, http.StatusUnauthorized)
			default:
				m.metrics.TokenVerified(metrics.OutcomeInvalid)
				httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			}
			return
		}

		m.metrics.TokenVerified(metrics.OutcomeSuccess)
		ctx := WithIdentity(r.Context(), Identity{ID: claims.Subject, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken splits "Bearer <token>". The scheme is case-sensitive and the
// token must be a single non-empty run of non-space characters.
func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", false
	}
	return token, true
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the caller attached by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
