package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// expiryMargin treats access tokens this close to expiry as already expired
const expiryMargin = 10 * time.Second

// statusError is a non-2xx answer from the provider
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity service returned status %d: %s", e.Code, e.Body)
}

// IsClientError reports whether err carries a 4xx answer from the provider.
// Those are verdicts on the caller's input and never count against the
// circuit breaker.
func IsClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// GoTrueClient talks to a GoTrue (Supabase Auth) endpoint and its PostgREST
// profiles table.
type GoTrueClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
	now        func() time.Time
}

// NewGoTrueClient creates a client for the project at baseURL
func NewGoTrueClient(baseURL, apiKey string, logger zerolog.Logger) *GoTrueClient {
	c := &GoTrueClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "gotrue").Logger(),
		now:        time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsClientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Identity service circuit breaker changed state")
		},
	})

	return c
}

// SetHTTPClient sets a custom HTTP client
func (c *GoTrueClient) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn performs a password grant
func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	var sess gotrueSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"password"}}, "",
		credentialsRequest{Email: email, Password: password}, &sess)
	if err != nil {
		if IsClientError(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if !sess.pair().Complete() || sess.User.ID == "" {
		return nil, fmt.Errorf("%w: incomplete session in sign-in response", ErrUnavailable)
	}

	return &SignInResult{Pair: sess.pair(), UserID: sess.User.ID, Email: sess.User.Email}, nil
}

// SignUp registers a new account
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string) error {
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, "",
		credentialsRequest{Email: email, Password: password}, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	return nil
}

// SignOut revokes the session the access token belongs to
func (c *GoTrueClient) SignOut(ctx context.Context, pair TokenPair) error {
	if pair.AccessToken == "" {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, pair.AccessToken, nil, nil); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// RefreshSession validates the pair the way the provider SDK's setSession
// does: a live access token is checked against /user, an expired one is
// exchanged through the refresh grant.
func (c *GoTrueClient) RefreshSession(ctx context.Context, pair TokenPair) (*Session, error) {
	if !pair.Complete() {
		return nil, fmt.Errorf("%w: incomplete token pair", ErrSessionRefreshFailed)
	}

	if !c.accessTokenExpired(pair.AccessToken) {
		var user gotrueUser
		if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, pair.AccessToken, nil, &user); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionRefreshFailed, err)
		}
		if user.ID == "" {
			return nil, fmt.Errorf("%w: no user for access token", ErrSessionRefreshFailed)
		}
		return &Session{Pair: pair, UserID: user.ID, Email: user.Email}, nil
	}

	var sess gotrueSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"refresh_token"}}, "",
		map[string]string{"refresh_token": pair.RefreshToken}, &sess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionRefreshFailed, err)
	}
	if !sess.pair().Complete() || sess.User.ID == "" {
		return nil, fmt.Errorf("%w: incomplete session in refresh response", ErrSessionRefreshFailed)
	}

	return &Session{Pair: sess.pair(), UserID: sess.User.ID, Email: sess.User.Email}, nil
}

// RoleForUser reads profiles.role for the user
func (c *GoTrueClient) RoleForUser(ctx context.Context, userID string) (string, error) {
	query := url.Values{
		"select": {"role"},
		"id":     {"eq." + userID},
	}

	var rows []struct {
		Role *string `json:"role"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/profiles", query, c.apiKey, nil, &rows); err != nil {
		return "", fmt.Errorf("failed to fetch profile role: %w", err)
	}

	if len(rows) == 0 || rows[0].Role == nil {
		return "", nil
	}
	return *rows[0].Role, nil
}

func (s gotrueSession) pair() TokenPair {
	return TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// accessTokenExpired reads the exp claim without verifying the signature;
// the provider remains the authority on validity.
func (c *GoTrueClient) accessTokenExpired(accessToken string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Add(expiryMargin).Before(claims.ExpiresAt.Time)
}

// do sends one request through the circuit breaker and decodes a JSON body
// into out when out is non-nil.
func (c *GoTrueClient) do(ctx context.Context, method, path string, query url.Values, bearer string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.send(ctx, method, path, query, bearer, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *GoTrueClient) send(ctx context.Context, method, path string, query url.Values, bearer string, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
