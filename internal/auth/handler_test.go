package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/shelfshare-auth/internal/httputil"
	"github.com/redmonkez12/shelfshare-auth/internal/password"
	"github.com/redmonkez12/shelfshare-auth/internal/ratelimit"
	"github.com/redmonkez12/shelfshare-auth/internal/user"
)

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allowed, l.err
}

func newTestHandler(t *testing.T, store user.Store, opts HandlerOptions) *Handler {
	t.Helper()
	return NewHandler(newTestService(t, store, fastHasher()), opts)
}

func do(h http.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:52100"
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandler_Register(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})

	rec := do(h.Register, http.MethodPost, "/auth/register", `{"email":"Alice@Example.com","password":"s3cure-pass"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.User.ID)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotContains(t, rec.Body.String(), "argon2id")
	assert.NotContains(t, rec.Body.String(), "s3cure-pass")
}

func TestHandler_RegisterDuplicate(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})
	body := `{"email":"bob@example.com","password":"s3cure-pass"}`

	require.Equal(t, http.StatusCreated, do(h.Register, http.MethodPost, "/auth/register", body).Code)

	rec := do(h.Register, http.MethodPost, "/auth/register", `{"email":"BOB@example.com","password":"other-pass"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, httputil.CodeEmailAlreadyExists, errorCode(t, rec))
}

func TestHandler_RegisterValidation(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{PasswordMinLength: 10})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing email", `{"password":"long-enough-pass"}`, "email"},
		{"invalid email", `{"email":"not-an-email","password":"long-enough-pass"}`, "email"},
		{"too long email", `{"email":"` + strings.Repeat("a", 250) + `@example.com","password":"long-enough-pass"}`, "email"},
		{"missing password", `{"email":"a@example.com"}`, "password"},
		{"short password", `{"email":"a@example.com","password":"short"}`, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h.Register, http.MethodPost, "/auth/register", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body httputil.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, httputil.CodeValidationError, body.Code)
			assert.Contains(t, body.Fields, tt.field)
		})
	}
}

func TestHandler_InvalidBody(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})

	for _, body := range []string{`not json`, `{"email":"a@example.com","password":"x","admin":true}`, ``} {
		rec := do(h.Register, http.MethodPost, "/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, httputil.CodeInvalidRequestBody, errorCode(t, rec), body)
	}
}

func TestHandler_Login(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})
	require.Equal(t, http.StatusCreated,
		do(h.Register, http.MethodPost, "/auth/register", `{"email":"carol@example.com","password":"right-password"}`).Code)

	rec := do(h.Login, http.MethodPost, "/auth/login", `{"email":"Carol@Example.com","password":"right-password"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "carol@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)
}

func TestHandler_LoginFailureBodiesMatch(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})
	require.Equal(t, http.StatusCreated,
		do(h.Register, http.MethodPost, "/auth/register", `{"email":"carol@example.com","password":"right-password"}`).Code)

	wrongPassword := do(h.Login, http.MethodPost, "/auth/login", `{"email":"carol@example.com","password":"wrong-password"}`)
	unknownEmail := do(h.Login, http.MethodPost, "/auth/login", `{"email":"nobody@example.com","password":"wrong-password"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
	assert.Equal(t, httputil.CodeInvalidCredentials, errorCode(t, wrongPassword))
}

func TestHandler_LoginMissingFields(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})

	rec := do(h.Login, http.MethodPost, "/auth/login", `{"email":"carol@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeValidationError, errorCode(t, rec))
}

func TestHandler_StoreUnavailable(t *testing.T) {
	h := newTestHandler(t, failingStore{}, HandlerOptions{})

	rec := do(h.Register, http.MethodPost, "/auth/register", `{"email":"dave@example.com","password":"password-one"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, httputil.CodeStoreUnavailable, errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "failed to")

	rec = do(h.Login, http.MethodPost, "/auth/login", `{"email":"dave@example.com","password":"password-one"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_RateLimited(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{RateLimiter: limiter})

	rec := do(h.Login, http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"password-one"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeTooManyRequests, errorCode(t, rec))
	assert.Equal(t, []string{"ratelimit:login:ip:192.0.2.10"}, limiter.keys)
}

func TestHandler_RateLimiterErrorFailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{RateLimiter: limiter})

	rec := do(h.Register, http.MethodPost, "/auth/register", `{"email":"erin@example.com","password":"password-one"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandler_Me(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{ID: "user-1", Email: "frank@example.com"}))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":{"id":"user-1","email":"frank@example.com"}}`, rec.Body.String())
}

func TestHandler_SpoofedForwardingHeaderStillLimited(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{
		RateLimiter: ratelimit.NewMemoryLimiter(2, time.Hour),
	})

	var codes []int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"a@example.com","password":"password-one"}`))
		req.RemoteAddr = "192.0.2.10:52100"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{
		http.StatusUnauthorized, http.StatusUnauthorized,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)
}

func TestHandler_RateLimitKeyFromTrustedProxy(t *testing.T) {
	proxies, err := httputil.ParseTrustedProxies([]string{"192.0.2.0/24"})
	require.NoError(t, err)

	limiter := &stubLimiter{allowed: false}
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{RateLimiter: limiter, TrustedProxies: proxies})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
	req.RemoteAddr = "192.0.2.10:52100"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.0.2.10")
	h.Login(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"ratelimit:login:ip:203.0.113.1"}, limiter.keys)
}

func TestHandler_PaddedMixedCaseEmail(t *testing.T) {
	h := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})

	rec := do(h.Register, http.MethodPost, "/auth/register", `{"email":" Alice@Example.com ","password":"password-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice@example.com", resp.User.Email)

	rec = do(h.Login, http.MethodPost, "/auth/login", `{"email":"  ALICE@example.COM","password":"password-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h.Register, http.MethodPost, "/auth/register", `{"email":"alice@example.com ","password":"password-2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h.Register, http.MethodPost, "/auth/register", `{"email":"   ","password":"password-2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeValidationError, errorCode(t, rec))
}

func TestHandler_PasswordLimitFollowsHashAlgorithm(t *testing.T) {
	body := func(n int) string {
		return `{"email":"long@example.com","password":"` + strings.Repeat("p", n) + `"}`
	}

	bcryptLimited := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{
		PasswordMaxBytes: password.MaxLength(password.AlgorithmBcrypt),
	})

	rec := do(bcryptLimited.Register, http.MethodPost, "/auth/register", body(100))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, httputil.CodeValidationError, resp.Code)
	assert.Equal(t, "password must be at most 72 bytes long", resp.Fields["password"])

	rec = do(bcryptLimited.Register, http.MethodPost, "/auth/register", body(72))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	defaults := newTestHandler(t, user.NewMemoryStore(), HandlerOptions{})
	assert.Equal(t, http.StatusCreated, do(defaults.Register, http.MethodPost, "/auth/register", body(100)).Code)
	assert.Equal(t, http.StatusBadRequest, do(defaults.Register, http.MethodPost, "/auth/register", body(1025)).Code)
}

func TestMustRegisterValidation_PanicsOnBadTag(t *testing.T) {
	v := validator.New()
	assert.Panics(t, func() {
		mustRegisterValidation(v, "", func(validator.FieldLevel) bool { return true })
	})
	assert.NotPanics(t, func() {
		mustRegisterValidation(v, "always", func(validator.FieldLevel) bool { return true })
	})
}
