package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/branchd-dev/sessiongate/internal/identity"
	"github.com/branchd-dev/sessiongate/internal/routes"
)

const (
	codeUnauthorized = "UNAUTHORIZED"
	codeBadRequest   = "BAD_REQUEST"

	msgInvalidEmail     = "Ingresa un email válido"
	msgPasswordTooShort = "La contraseña debe tener al menos 6 caracteres"
)

// CredentialsInput is the form accepted by the sign-in and register actions
type CredentialsInput struct {
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required,min=6"`
}

func actionError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// validationMessage turns binding errors into the message shown next to the form
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Email":
			return msgInvalidEmail
		case "Password":
			return msgPasswordTooShort
		}
	}
	return msgMissingCredentials
}

// @Summary Run an action
// @Description Programmatic form actions. Actions other than auth.* require a session.
// @Tags actions
// @Accept x-www-form-urlencoded
// @Produce json
// @Param name path string true "Action name"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /_actions/{name} [post]
func (s *Server) handleAction(c *gin.Context) {
	switch c.Param("name") {
	case routes.ActionSignIn:
		s.signInAction(c)
	case routes.ActionRegister:
		s.registerAction(c)
	case routes.ActionSignOut:
		s.endSession(c)
		c.JSON(http.StatusOK, gin.H{"success": true})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown action"})
	}
}

func (s *Server) signInAction(c *gin.Context) {
	var input CredentialsInput
	if err := c.ShouldBind(&input); err != nil {
		actionError(c, http.StatusBadRequest, codeBadRequest, validationMessage(err))
		return
	}

	ctx, cancel := s.identityContext(c.Request.Context())
	result, err := s.identity.SignIn(ctx, input.Email, input.Password)
	cancel()
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			actionError(c, http.StatusUnauthorized, codeUnauthorized, msgInvalidCredentials)
			return
		}
		s.logger.Error().Err(err).Msg("Sign-in action failed")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": msgUnavailable})
		return
	}

	role := s.lookupRole(c.Request.Context(), result.UserID)
	s.sessions.Write(c.Writer, result.Pair)

	c.JSON(http.StatusOK, gin.H{"role": role})
}

func (s *Server) registerAction(c *gin.Context) {
	var input CredentialsInput
	if err := c.ShouldBind(&input); err != nil {
		actionError(c, http.StatusBadRequest, codeBadRequest, validationMessage(err))
		return
	}

	ctx, cancel := s.identityContext(c.Request.Context())
	defer cancel()

	if err := s.identity.SignUp(ctx, input.Email, input.Password); err != nil {
		s.logger.Warn().Err(err).Str("email", input.Email).Msg("Register action failed")
		actionError(c, http.StatusBadRequest, codeBadRequest, msgRegistrationFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
