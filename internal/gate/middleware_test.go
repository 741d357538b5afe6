package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchd-dev/sessiongate/internal/auth"
	"github.com/branchd-dev/sessiongate/internal/identity"
	"github.com/branchd-dev/sessiongate/internal/routes"
	"github.com/branchd-dev/sessiongate/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(f *fakeSessions) (*gin.Engine, *int) {
	resolver := newTestResolver(f)
	g := New(routes.NewClassifier(routes.DefaultPolicy()), resolver, session.NewStore(), zerolog.Nop())

	handled := new(int)
	page := func(c *gin.Context) {
		*handled++
		id, _ := GetIdentity(c)
		fromCtx, _ := auth.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"identity": id, "same": id == fromCtx, "email": c.GetString(ContextEmail)})
	}

	router := gin.New()
	router.Use(NoStore(), g.Middleware())
	router.GET("/", page)
	router.GET("/signin", page)
	router.GET("/dashboard", page)
	router.GET("/admin", page)
	router.GET("/admin/*rest", page)
	router.POST("/_actions/:name", page)
	return router, handled
}

func withPair(r *http.Request, pair identity.TokenPair) *http.Request {
	r.AddCookie(&http.Cookie{Name: session.AccessTokenCookie, Value: pair.AccessToken})
	r.AddCookie(&http.Cookie{Name: session.RefreshTokenCookie, Value: pair.RefreshToken})
	return r
}

func TestMiddlewareRefreshFailureOnAdmin(t *testing.T) {
	f := newFakeSessions()
	router, handled := newTestRouter(f)
	f.revoked[adminPair.RefreshToken] = true

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPair(httptest.NewRequest(http.MethodGet, "/admin", nil), adminPair))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, SignInPath, rec.Header().Get("Location"))
	assert.Equal(t, CacheControl, rec.Header().Get("Cache-Control"))
	assert.Zero(t, *handled)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	names := []string{cookies[0].Name, cookies[1].Name}
	assert.ElementsMatch(t, []string{session.AccessTokenCookie, session.RefreshTokenCookie}, names)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestMiddlewareForbidsActionWithoutSession(t *testing.T) {
	f := newFakeSessions()
	router, handled := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_actions/updateProfile", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Forbidden"}`, rec.Body.String())
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	assert.Equal(t, CacheControl, rec.Header().Get("Cache-Control"))
	assert.Zero(t, *handled)
}

func TestMiddlewareLetsAuthActionsThrough(t *testing.T) {
	f := newFakeSessions()
	router, handled := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_actions/auth.signin", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, *handled)
}

func TestMiddlewareRedirectsAnonymousDashboard(t *testing.T) {
	f := newFakeSessions()
	router, _ := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, SignInPath, rec.Header().Get("Location"))
	assert.Empty(t, rec.Header().Values("Set-Cookie"))

	refreshCalls, _ := f.calls()
	assert.Zero(t, refreshCalls)
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	f := newFakeSessions()
	router, handled := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPair(httptest.NewRequest(http.MethodGet, "/admin/users", nil), adminPair))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, *handled)
	assert.JSONEq(t, `{
		"identity": {"user_id": "root", "email": "root@example.com", "role": "admin"},
		"same": true,
		"email": "root@example.com"
	}`, rec.Body.String())
	assert.Equal(t, CacheControl, rec.Header().Get("Cache-Control"))

	// Sliding expiration re-issues both cookies
	assert.Len(t, rec.Result().Cookies(), 2)
}

func TestMiddlewareSignedInUserSkipsSignIn(t *testing.T) {
	f := newFakeSessions()
	router, handled := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPair(httptest.NewRequest(http.MethodGet, "/signin", nil), alicePair))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, DashboardPath, rec.Header().Get("Location"))
	assert.Zero(t, *handled)
}

func TestMiddlewareNoCookiesAfterCancellation(t *testing.T) {
	f := newFakeSessions()
	f.block = true
	router, handled := newTestRouter(f)

	ctx, cancel := context.WithCancel(context.Background())
	req := withPair(httptest.NewRequest(http.MethodGet, "/dashboard", nil), alicePair).WithContext(ctx)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Zero(t, *handled)
}

func TestMiddlewarePublicPage(t *testing.T) {
	f := newFakeSessions()
	router, handled := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, *handled)
	assert.Equal(t, CacheControl, rec.Header().Get("Cache-Control"))
}
