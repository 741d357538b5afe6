package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/branchd-dev/sessiongate/internal/gate"
)

//go:embed templates/*.html
var templatesFS embed.FS

func loadPages() (*template.Template, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}
	return tmpl, nil
}

func (s *Server) indexPage(c *gin.Context) {
	data := gin.H{"Title": "Inicio"}
	if pair, ok := s.sessions.Read(c.Request); ok && pair.Complete() {
		data["SignedIn"] = true
	}
	c.HTML(http.StatusOK, "index.html", data)
}

func (s *Server) signInPage(c *gin.Context) {
	c.HTML(http.StatusOK, "signin.html", gin.H{"Title": "Iniciar sesión"})
}

func (s *Server) registerPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", gin.H{"Title": "Registro"})
}

func (s *Server) dashboardPage(c *gin.Context) {
	id, ok := gate.GetIdentity(c)
	if !ok {
		// unreachable behind the gate
		c.Redirect(http.StatusFound, gate.SignInPath)
		return
	}
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Title":    "Dashboard",
		"Identity": id,
	})
}

func (s *Server) adminPage(c *gin.Context) {
	id, ok := gate.GetIdentity(c)
	if !ok || !id.IsAdmin() {
		c.Redirect(http.StatusFound, gate.DashboardPath)
		return
	}
	c.HTML(http.StatusOK, "admin.html", gin.H{
		"Title":    "Administración",
		"Identity": id,
		"Path":     c.Request.URL.Path,
	})
}
