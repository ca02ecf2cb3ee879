// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating the verified user via context

package auth

import (
	"context"

	"github.com/2389/salesdesk-gateway/internal/store"
)

// AuthContext holds the authenticated identity extracted from a request.
type AuthContext struct {
	UserID   string
	Username string
	Email    string
	Role     store.Role
	Language string
}

// IsSales returns true if the caller is a sales rep.
func (a *AuthContext) IsSales() bool {
	return a.Role == store.RoleSales
}

// NewAuthContext builds an AuthContext from a stored user.
func NewAuthContext(u *store.User) *AuthContext {
	return &AuthContext{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		Language: u.Language,
	}
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
