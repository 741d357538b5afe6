// Package gate decides, per request, whether the caller may reach the
// handler for the requested route.
package gate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/branchd-dev/sessiongate/internal/auth"
	"github.com/branchd-dev/sessiongate/internal/identity"
	"github.com/branchd-dev/sessiongate/internal/routes"
)

const (
	SignInPath    = "/signin"
	DashboardPath = "/dashboard"
)

// Decision is the terminal outcome for a request
type Decision int

const (
	Continue Decision = iota
	Redirect
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Redirect:
		return "redirect"
	case Forbidden:
		return "forbidden"
	default:
		return "continue"
	}
}

// CookieAction is the cookie mutation that accompanies a decision
type CookieAction int

const (
	KeepCookies CookieAction = iota
	WriteCookies
	ClearCookies
)

// Sessions is the part of the identity service the resolver depends on
type Sessions interface {
	RefreshSession(ctx context.Context, pair identity.TokenPair) (*identity.Session, error)
	RoleForUser(ctx context.Context, userID string) (string, error)
}

// Request is what the resolver knows about an inbound request
type Request struct {
	Class routes.Class
	Path  string
	// Action is set for programmatic actions outside the sign-in flow
	Action  string
	Pair    identity.TokenPair
	HasPair bool
}

// Outcome is the single result of resolving a request
type Outcome struct {
	Decision Decision
	Target   string
	Identity *auth.Identity
	Cookies  CookieAction
	Pair     identity.TokenPair // set when Cookies is WriteCookies
	Reason   string
}

// Resolver turns cookies and a route class into an Outcome. It never writes
// to the response; the caller applies the Outcome.
type Resolver struct {
	sessions Sessions
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewResolver creates a resolver bounding every identity call by timeout
func NewResolver(sessions Sessions, timeout time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		sessions: sessions,
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve produces exactly one outcome for req
func (r *Resolver) Resolve(ctx context.Context, req Request) Outcome {
	switch {
	case req.Class.Protected() && !req.HasPair:
		return Outcome{Decision: Redirect, Target: SignInPath, Reason: "no session"}

	case req.Class == routes.AuthOnly && req.HasPair:
		return Outcome{Decision: Redirect, Target: DashboardPath, Reason: "already signed in"}

	case req.Action != "" && !req.HasPair:
		return Outcome{Decision: Forbidden, Reason: "action without session"}

	case req.Class.Protected():
		return r.resolveSession(ctx, req)
	}

	return Outcome{Decision: Continue}
}

func (r *Resolver) resolveSession(ctx context.Context, req Request) Outcome {
	sess, err := r.refresh(ctx, req.Pair)
	if err != nil || sess == nil || sess.UserID == "" {
		r.logger.Debug().Err(err).Str("path", req.Path).Msg("Session refresh failed, signing out")
		return Outcome{
			Decision: Redirect,
			Target:   SignInPath,
			Cookies:  ClearCookies,
			Reason:   "session refresh failed",
		}
	}

	out := Outcome{Cookies: KeepCookies}
	if sess.Pair.Complete() {
		out.Cookies = WriteCookies
		out.Pair = sess.Pair
	}

	id := &auth.Identity{
		UserID: sess.UserID,
		Email:  sess.Email,
		Role:   r.role(ctx, sess.UserID),
	}

	if req.Class == routes.Admin && !id.IsAdmin() {
		out.Decision = Redirect
		out.Target = DashboardPath
		out.Reason = "admin role required"
		return out
	}

	out.Decision = Continue
	out.Identity = id
	return out
}

func (r *Resolver) refresh(ctx context.Context, pair identity.TokenPair) (*identity.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.sessions.RefreshSession(ctx, pair)
}

// role falls back to the default role when the lookup fails
func (r *Resolver) role(ctx context.Context, userID string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	role, err := r.sessions.RoleForUser(ctx, userID)
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("Role lookup failed, using default role")
		return auth.RoleUser
	}
	return auth.RoleOrDefault(role)
}
