// Package identity is the call surface to the identity provider that owns
// credentials, sessions and user roles.
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrRegistrationFailed   = errors.New("registration failed")
	ErrSessionRefreshFailed = errors.New("session refresh failed")
	ErrUnavailable          = errors.New("identity service unavailable")
)

// TokenPair is the opaque access/refresh token pair issued by the provider
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Complete reports whether both tokens are present
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// SignInResult is returned by a successful password sign-in
type SignInResult struct {
	Pair   TokenPair
	UserID string
	Email  string
}

// Session is a validated, possibly renewed, provider session
type Session struct {
	Pair   TokenPair
	UserID string
	Email  string
}

// Service is implemented by every identity provider backend
type Service interface {
	SignIn(ctx context.Context, email, password string) (*SignInResult, error)
	SignUp(ctx context.Context, email, password string) error
	// SignOut is best effort; callers clear local cookies regardless.
	SignOut(ctx context.Context, pair TokenPair) error
	// RefreshSession re-validates a session. The returned pair may differ
	// from the input and must be persisted by the caller.
	RefreshSession(ctx context.Context, pair TokenPair) (*Session, error)
	// RoleForUser returns "" when the user has no role record.
	RoleForUser(ctx context.Context, userID string) (string, error)
}

// RoleStore resolves authorization roles outside the provider
type RoleStore interface {
	RoleForUser(ctx context.Context, userID string) (string, error)
}

type roleOverride struct {
	Service
	roles RoleStore
}

func (r *roleOverride) RoleForUser(ctx context.Context, userID string) (string, error) {
	return r.roles.RoleForUser(ctx, userID)
}

// WithRoleStore returns svc with role lookups answered by roles
func WithRoleStore(svc Service, roles RoleStore) Service {
	if roles == nil {
		return svc
	}
	return &roleOverride{Service: svc, roles: roles}
}
