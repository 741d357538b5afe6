package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/branchd-dev/sessiongate/internal/auth"
	"github.com/branchd-dev/sessiongate/internal/gate"
	"github.com/branchd-dev/sessiongate/internal/identity"
)

const (
	msgMissingCredentials = "Email and password are required"
	msgInvalidCredentials = "Credenciales inválidas"
	msgRegistrationFailed = "Error al registrar el usuario"
	msgUnavailable        = "Authentication service unavailable"
)

// landingFor returns where a freshly signed-in user is sent
func landingFor(role string) string {
	if role == auth.RoleAdmin {
		return "/admin"
	}
	return gate.DashboardPath
}

func credentialsFromForm(c *gin.Context) (string, string, bool) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	return email, password, email != "" && password != ""
}

// @Summary Sign in
// @Description Password sign-in from the HTML form. Sets the session cookies and redirects by role.
// @Tags auth
// @Accept x-www-form-urlencoded
// @Param email formData string true "Email"
// @Param password formData string true "Password"
// @Success 302
// @Failure 400 {string} string
// @Failure 401 {string} string
// @Router /api/auth/signin [post]
func (s *Server) signIn(c *gin.Context) {
	email, password, ok := credentialsFromForm(c)
	if !ok {
		c.String(http.StatusBadRequest, msgMissingCredentials)
		return
	}

	ctx, cancel := s.identityContext(c.Request.Context())
	result, err := s.identity.SignIn(ctx, email, password)
	cancel()
	if err != nil {
		s.respondSignInError(c, err, email)
		return
	}

	role := s.lookupRole(c.Request.Context(), result.UserID)
	s.sessions.Write(c.Writer, result.Pair)

	s.logger.Info().Str("user_id", result.UserID).Str("role", role).Msg("User signed in")
	c.Redirect(http.StatusFound, landingFor(role))
}

func (s *Server) respondSignInError(c *gin.Context, err error, email string) {
	if errors.Is(err, identity.ErrInvalidCredentials) {
		s.logger.Info().Str("email", email).Msg("Sign-in rejected")
		c.String(http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	s.logger.Error().Err(err).Msg("Sign-in failed")
	c.String(http.StatusServiceUnavailable, msgUnavailable)
}

// @Summary Register
// @Description Creates an account from the HTML form and redirects to the sign-in page
// @Tags auth
// @Accept x-www-form-urlencoded
// @Param email formData string true "Email"
// @Param password formData string true "Password"
// @Success 302
// @Failure 400 {string} string
// @Router /api/auth/register [post]
func (s *Server) register(c *gin.Context) {
	email, password, ok := credentialsFromForm(c)
	if !ok {
		c.String(http.StatusBadRequest, msgMissingCredentials)
		return
	}

	ctx, cancel := s.identityContext(c.Request.Context())
	defer cancel()

	if err := s.identity.SignUp(ctx, email, password); err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("Registration failed")
		c.String(http.StatusBadRequest, msgRegistrationFailed)
		return
	}

	c.Redirect(http.StatusFound, gate.SignInPath)
}

// @Summary Sign out
// @Description Revokes the provider session, clears the session cookies and redirects to the sign-in page
// @Tags auth
// @Success 302
// @Router /api/auth/signout [post]
func (s *Server) signOut(c *gin.Context) {
	s.endSession(c)
	c.Redirect(http.StatusFound, gate.SignInPath)
}

// endSession revokes the caller's session at the provider, best effort, and
// clears the cookies regardless of the outcome
func (s *Server) endSession(c *gin.Context) {
	if pair, ok := s.sessions.Read(c.Request); ok {
		if err := s.signOuts.Dispatch(c.Request.Context(), pair); err != nil {
			s.logger.Warn().Err(err).Msg("Provider sign-out failed")
		}
	}
	s.sessions.Clear(c.Writer)
}
