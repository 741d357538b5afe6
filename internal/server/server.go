// Package server
//
// @title Sessiongate
// @version 1.0
// @description Cookie session authentication and route gating
// @host localhost:8080
// @BasePath /
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/branchd-dev/sessiongate/internal/auth"
	"github.com/branchd-dev/sessiongate/internal/config"
	"github.com/branchd-dev/sessiongate/internal/gate"
	"github.com/branchd-dev/sessiongate/internal/identity"
	"github.com/branchd-dev/sessiongate/internal/routes"
	"github.com/branchd-dev/sessiongate/internal/session"
)

// Server represents the HTTP server
type Server struct {
	router   *gin.Engine
	config   *config.Config
	logger   zerolog.Logger
	identity identity.Service
	sessions *session.Store
	gate     *gate.Gate
	signOuts SignOutDispatcher
	limiter  *ipRateLimiter
	version  string
}

// New creates a new server instance. signOuts may be nil, in which case
// provider sign-out happens inline with the request.
func New(cfg *config.Config, zlog zerolog.Logger, svc identity.Service, signOuts SignOutDispatcher, version string) (*Server, error) {
	policy := routes.DefaultPolicy()
	if cfg.Routes.PolicyFile != "" {
		p, err := routes.LoadPolicy(cfg.Routes.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load route policy: %w", err)
		}
		policy = p
		zlog.Info().Str("file", cfg.Routes.PolicyFile).Msg("Loaded route policy")
		for _, route := range policy.UncoveredDefaults() {
			zlog.Warn().Str("route", route).Msg("Route policy leaves a built-in protected route public")
		}
	}

	if signOuts == nil {
		signOuts = &inlineSignOut{svc: svc, timeout: cfg.Identity.Timeout}
	}

	store := session.NewStore()
	resolver := gate.NewResolver(svc, cfg.Identity.Timeout, zlog.With().Str("component", "resolver").Logger())

	server := &Server{
		config:   cfg,
		logger:   zlog,
		identity: svc,
		sessions: store,
		gate:     gate.New(routes.NewClassifier(policy), resolver, store, zlog.With().Str("component", "gate").Logger()),
		signOuts: signOuts,
		limiter:  newIPRateLimiter(cfg.HTTP.CredentialRatePerMinute),
		version:  version,
	}

	if err := server.setupRouter(); err != nil {
		return nil, err
	}

	return server, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() error {
	s.router = gin.New()
	// Trailing-slash redirects bypass middleware; let the gate see those paths
	s.router.RedirectTrailingSlash = false

	// nil trusts no proxy, so ClientIP is the socket address
	if err := s.router.SetTrustedProxies(s.config.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	pages, err := loadPages()
	if err != nil {
		return err
	}
	s.router.SetHTMLTemplate(pages)

	s.router.Use(gin.Recovery())
	// Every response, redirects and errors included, is uncacheable
	s.router.Use(gate.NoStore())
	s.router.Use(s.loggingMiddleware())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.HTTP.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.Use(s.gate.Middleware())

	s.router.GET("/health", s.healthCheck)

	// Pages
	s.router.GET("/", s.indexPage)
	s.router.GET("/signin", s.signInPage)
	s.router.GET("/register", s.registerPage)
	s.router.GET("/dashboard", s.dashboardPage)
	s.router.GET("/admin", s.adminPage)
	s.router.GET("/admin/*rest", s.adminPage)

	// Form endpoints
	api := s.router.Group("/api/auth")
	{
		api.POST("/signin", s.limiter.Middleware(), s.signIn)
		api.POST("/register", s.limiter.Middleware(), s.register)
		api.POST("/signout", s.signOut)
	}

	// Programmatic actions. The gate has already rejected non-auth actions
	// from callers without a session.
	s.router.POST(routes.ActionPrefix+":name", s.limitCredentialActions(), s.handleAction)

	return nil
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		event := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "sessiongate",
		"version":   s.version,
	})
}

// identityContext bounds one identity service call
func (s *Server) identityContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Identity.Timeout)
}

// lookupRole resolves the caller's role after a sign-in. Failures degrade to
// the default role.
func (s *Server) lookupRole(ctx context.Context, userID string) string {
	ctx, cancel := s.identityContext(ctx)
	defer cancel()

	role, err := s.identity.RoleForUser(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Role lookup failed, using default role")
		return auth.RoleUser
	}
	return auth.RoleOrDefault(role)
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              s.config.HTTP.Addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("HTTP server error")
		s.close()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		s.close()
		return err
	}

	s.close()
	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

func (s *Server) close() {
	if err := s.signOuts.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Error closing sign-out dispatcher")
	}
	if err := identity.Close(s.identity); err != nil {
		s.logger.Warn().Err(err).Msg("Error closing identity service")
	}
}
