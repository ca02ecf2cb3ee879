// ABOUTME: Tests for HTTP authentication middleware and handshake helpers
// ABOUTME: Covers token extraction, validation, user lookup, and the sales role gate

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/salesdesk-gateway/internal/store"
)

func seededUsers(t *testing.T) *store.MockStore {
	t.Helper()
	s := store.NewMockStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "cust-1", Username: "alice", Email: "alice@example.com", Role: store.RoleCustomer}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "rep-1", Username: "bob", Role: store.RoleSales}))
	return s
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)
	token, _ := verifier.Generate("cust-1", time.Hour)

	var got *AuthContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/chat/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(seededUsers(t), verifier)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "cust-1", got.UserID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.False(t, got.IsSales())
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	verifier := newTestVerifier(t)
	ghost, _ := verifier.Generate("ghost", time.Hour)
	expired, _ := verifier.Generate("cust-1", -time.Minute)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"garbage token", "Bearer nope", "invalid token"},
		{"expired token", "Bearer " + expired, "token expired"},
		{"unknown user", "Bearer " + ghost, "user not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			HTTPAuthMiddleware(seededUsers(t), verifier)(handler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestRequireSalesHTTP(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name string
		auth *AuthContext
		want int
	}{
		{"no auth", nil, http.StatusUnauthorized},
		{"customer", &AuthContext{UserID: "cust-1", Role: store.RoleCustomer}, http.StatusForbidden},
		{"sales", &AuthContext{UserID: "rep-1", Role: store.RoleSales}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/sales/stats", nil)
			if tt.auth != nil {
				req = req.WithContext(WithAuth(req.Context(), tt.auth))
			}
			rec := httptest.NewRecorder()

			RequireSalesHTTP()(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandshakeToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	tok, ok := HandshakeToken(req)
	assert.True(t, ok)
	assert.Equal(t, "from-query", tok)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	tok, ok = HandshakeToken(req)
	assert.True(t, ok)
	assert.Equal(t, "from-header", tok)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	_, ok = HandshakeToken(req)
	assert.False(t, ok)
}

func TestAuthenticate(t *testing.T) {
	verifier := newTestVerifier(t)
	users := seededUsers(t)
	ctx := context.Background()

	token, _ := verifier.Generate("rep-1", time.Hour)
	authCtx, err := Authenticate(ctx, users, verifier, token)
	require.NoError(t, err)
	assert.True(t, authCtx.IsSales())

	ghost, _ := verifier.Generate("ghost", time.Hour)
	_, err = Authenticate(ctx, users, verifier, ghost)
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = Authenticate(ctx, users, verifier, "junk")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMustFromContext_Panics(t *testing.T) {
	assert.Panics(t, func() { MustFromContext(context.Background()) })
}
