package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSecretNotInitialized = errors.New("JWT secret not initialized")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
)

// AccessClaims represents the access token claims issued by the local provider
type AccessClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 access tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer for tokens valid for ttl
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for issuing and expiry checks
func (t *TokenIssuer) SetClock(now func() time.Time) {
	t.now = now
}

// Issue creates a new access token for a user session
func (t *TokenIssuer) Issue(userID, email, sessionID string) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrSecretNotInitialized
	}

	now := t.now()
	claims := AccessClaims{
		Email:     email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates the signature of an access token and returns its claims.
// Expired tokens are returned together with ErrTokenExpired so callers can
// decide whether a refresh is due.
func (t *TokenIssuer) Parse(tokenString string) (*AccessClaims, error) {
	if len(t.secret) == 0 {
		return nil, ErrSecretNotInitialized
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	if !t.now().Before(claims.ExpiresAt.Time) {
		return claims, ErrTokenExpired
	}

	return claims, nil
}
