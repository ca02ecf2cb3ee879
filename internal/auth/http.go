// ABOUTME: HTTP middleware and handshake helpers for JWT authentication
// ABOUTME: Extracts JWT from the Authorization header or token query parameter and resolves the user

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/2389/salesdesk-gateway/internal/store"
)

// ErrUnknownUser is returned when a valid token names a user that does not exist.
var ErrUnknownUser = errors.New("user not found")

// UserLookup resolves a verified user ID to a stored user.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HandshakeToken returns the token a WebSocket client presented, preferring
// the token query parameter (browsers cannot set headers on upgrade requests).
func HandshakeToken(r *http.Request) (string, bool) {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	tok, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	return tok, errMsg == ""
}

// Authenticate verifies a token and loads the user it names.
func Authenticate(ctx context.Context, users UserLookup, verifier TokenVerifier, token string) (*AuthContext, error) {
	userID, err := verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	u, err := users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return NewAuthContext(u), nil
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates JWT tokens.
// The resolved user is attached to the request context with WithAuth.
func HTTPAuthMiddleware(users UserLookup, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			authCtx, err := Authenticate(r.Context(), users, verifier, token)
			switch {
			case errors.Is(err, ErrUnknownUser):
				http.Error(w, `{"error":"user not found"}`, http.StatusUnauthorized)
				return
			case errors.Is(err, ErrExpiredToken):
				http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
				return
			case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrMissingClaim):
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			case err != nil:
				http.Error(w, `{"error":"authentication unavailable"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireSalesHTTP creates an HTTP middleware that requires the sales role.
// Must be used after HTTPAuthMiddleware.
func RequireSalesHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			if !authCtx.IsSales() {
				http.Error(w, `{"error":"access denied. sales role required"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
