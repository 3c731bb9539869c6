package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jobwatch/internal/auth"
	"github.com/ashita-ai/jobwatch/internal/ctxutil"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxutil.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 129))
	handler.ServeHTTP(rec, req)
	assert.Len(t, seen, 36, "oversized ids are replaced with a UUID")
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	securityHeadersMiddleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(testLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/inbox", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var apiErr model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, model.ErrCodeInternalError, apiErr.Error.Code)
}

func TestRecoveryMiddleware_AbortHandlerPropagates(t *testing.T) {
	handler := recoveryMiddleware(testLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestAuthMiddleware(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	token, _, err := jwtMgr.IssueToken("operator")
	require.NoError(t, err)

	var user string
	handler := authMiddleware(jwtMgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = ctxutil.UserIDFromContext(r.Context(), "fallback")
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
		user   string
	}{
		{name: "public path", path: "/health", want: http.StatusOK, user: "fallback"},
		{name: "missing header", path: "/v1/inbox", want: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/v1/inbox", header: "Basic " + token, want: http.StatusUnauthorized},
		{name: "empty token", path: "/v1/inbox", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "bad token", path: "/v1/inbox", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", path: "/v1/inbox", header: "bearer " + token, want: http.StatusOK, user: "operator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user = ""
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.user, user)
		})
	}
}

func TestAPIRateLimitPerUser(t *testing.T) {
	// rate=1 token/sec, burst=2: two rapid requests pass, the third is rejected.
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer func() { _ = limiter.Close() }()

	handler := ratelimit.Middleware(limiter, "api", userKeyFunc, nil, testLogger())(okHandler())
	send := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/inbox", nil)
		req = req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{UserID: userID}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("alice").Code)
	assert.Equal(t, http.StatusOK, send("alice").Code)
	rec := send("alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("bob").Code, "each user has a separate bucket")
}

func TestUserKeyFunc_Anonymous(t *testing.T) {
	assert.Empty(t, userKeyFunc(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestWriteListJSON_NilItems(t *testing.T) {
	rec := httptest.NewRecorder()
	writeListJSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), model.PagedResult[model.Run]{Limit: 10})

	var body struct {
		Data    []model.Run `json:"data"`
		HasMore bool        `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Data)
	assert.Empty(t, body.Data)
	assert.False(t, body.HasMore)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestHandleDecodeError(t *testing.T) {
	rec := httptest.NewRecorder()
	handleDecodeError(rec, httptest.NewRequest(http.MethodPost, "/", nil), &http.MaxBytesError{Limit: 10})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds 10 bytes")
}
