// Package session persists the identity token pair as two cookies.
package session

import (
	"net/http"

	"github.com/branchd-dev/sessiongate/internal/identity"
)

const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"

	AccessTokenMaxAge  = 60 * 60 * 24 * 7  // 7 days
	RefreshTokenMaxAge = 60 * 60 * 24 * 30 // 30 days
)

// Store reads and writes the token pair cookies. It holds no state.
type Store struct{}

// NewStore creates a cookie store
func NewStore() *Store {
	return &Store{}
}

// Read returns the pair carried by the request. Partial cookie state counts
// as signed out.
func (s *Store) Read(r *http.Request) (identity.TokenPair, bool) {
	access, err := r.Cookie(AccessTokenCookie)
	if err != nil || access.Value == "" {
		return identity.TokenPair{}, false
	}
	refresh, err := r.Cookie(RefreshTokenCookie)
	if err != nil || refresh.Value == "" {
		return identity.TokenPair{}, false
	}
	return identity.TokenPair{AccessToken: access.Value, RefreshToken: refresh.Value}, true
}

// Write sets both cookies on the response
func (s *Store) Write(w http.ResponseWriter, pair identity.TokenPair) {
	http.SetCookie(w, cookie(AccessTokenCookie, pair.AccessToken, AccessTokenMaxAge))
	http.SetCookie(w, cookie(RefreshTokenCookie, pair.RefreshToken, RefreshTokenMaxAge))
}

// Clear expires both cookies
func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, cookie(RefreshTokenCookie, "", -1))
}

func cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
