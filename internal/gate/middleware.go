package gate

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/branchd-dev/sessiongate/internal/auth"
	"github.com/branchd-dev/sessiongate/internal/routes"
	"github.com/branchd-dev/sessiongate/internal/session"
)

// CacheControl is set on every response leaving the gate
const CacheControl = "no-store, no-cache, must-revalidate"

// Context keys populated for downstream handlers
const (
	ContextIdentity = "identity"
	ContextEmail    = "email"
	ContextRole     = "role"
	ContextUserID   = "user_id"
)

// Gate wires the classifier, resolver and cookie store into gin
type Gate struct {
	classifier *routes.Classifier
	resolver   *Resolver
	store      *session.Store
	logger     zerolog.Logger
}

// New creates a gate
func New(classifier *routes.Classifier, resolver *Resolver, store *session.Store, logger zerolog.Logger) *Gate {
	return &Gate{
		classifier: classifier,
		resolver:   resolver,
		store:      store,
		logger:     logger,
	}
}

// Classify returns the access class the gate applies to requestPath
func (g *Gate) Classify(requestPath string) routes.Class {
	return g.classifier.Classify(routes.Normalize(requestPath))
}

// NoStore marks every response uncacheable. It must run before any
// handler writes, so it sets the header up front.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", CacheControl)
		c.Next()
	}
}

// Middleware enforces the route policy for each request
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestPath := routes.Normalize(c.Request.URL.Path)
		req := Request{
			Class: g.Classify(requestPath),
			Path:  requestPath,
		}
		if name, ok := routes.ActionName(c.Request.Method, requestPath); ok && !routes.IsAuthAction(name) {
			req.Action = name
		}
		req.Pair, req.HasPair = g.store.Read(c.Request)

		out := g.resolver.Resolve(c.Request.Context(), req)

		// A client that went away gets nothing, in particular no cookies
		if err := c.Request.Context().Err(); err != nil {
			g.logger.Debug().Err(err).Str("path", requestPath).Msg("Request cancelled during session resolution")
			c.Abort()
			return
		}

		g.logger.Debug().
			Str("path", requestPath).
			Str("class", req.Class.String()).
			Str("decision", out.Decision.String()).
			Str("reason", out.Reason).
			Msg("Access decision")

		switch out.Cookies {
		case WriteCookies:
			g.store.Write(c.Writer, out.Pair)
		case ClearCookies:
			g.store.Clear(c.Writer)
		}

		switch out.Decision {
		case Redirect:
			c.Redirect(http.StatusFound, out.Target)
			c.Abort()
		case Forbidden:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		default:
			if out.Identity != nil {
				SetIdentity(c, out.Identity)
			}
			c.Next()
		}
	}
}

// SetIdentity attaches a resolved identity to the gin and request contexts
func SetIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(ContextIdentity, id)
	c.Set(ContextEmail, id.Email)
	c.Set(ContextRole, id.Role)
	c.Set(ContextUserID, id.UserID)
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
}

// GetIdentity returns the identity resolved for this request, if any
func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(ContextIdentity)
	if !exists {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok
}
