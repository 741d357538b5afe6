package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchd-dev/sessiongate/internal/identity"
)

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := NewStore()
	pairs := []identity.TokenPair{
		{AccessToken: "access", RefreshToken: "refresh"},
		{AccessToken: "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1In0.c2ln", RefreshToken: "v1.Mr5-aD_9"},
	}

	for _, pair := range pairs {
		rec := httptest.NewRecorder()
		store.Write(rec, pair)

		got, ok := store.Read(requestWithCookies(rec.Result().Cookies()...))
		require.True(t, ok)
		assert.Equal(t, pair, got)
	}
}

func TestWriteAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStore().Write(rec, identity.TokenPair{AccessToken: "a", RefreshToken: "r"})

	headers := rec.Result().Header.Values("Set-Cookie")
	require.Len(t, headers, 2)

	assert.Equal(t, "sb-access-token=a; Path=/; Max-Age=604800; HttpOnly; Secure; SameSite=Lax", headers[0])
	assert.Equal(t, "sb-refresh-token=r; Path=/; Max-Age=2592000; HttpOnly; Secure; SameSite=Lax", headers[1])
}

func TestClear(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStore().Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
		assert.Equal(t, "/", c.Path)
	}
	for _, h := range rec.Result().Header.Values("Set-Cookie") {
		assert.True(t, strings.Contains(h, "Max-Age=0"), h)
	}
}

func TestReadRequiresBothCookies(t *testing.T) {
	store := NewStore()

	_, ok := store.Read(requestWithCookies())
	assert.False(t, ok)

	_, ok = store.Read(requestWithCookies(&http.Cookie{Name: AccessTokenCookie, Value: "a"}))
	assert.False(t, ok)

	_, ok = store.Read(requestWithCookies(&http.Cookie{Name: RefreshTokenCookie, Value: "r"}))
	assert.False(t, ok)

	_, ok = store.Read(requestWithCookies(
		&http.Cookie{Name: AccessTokenCookie, Value: ""},
		&http.Cookie{Name: RefreshTokenCookie, Value: "r"},
	))
	assert.False(t, ok)
}
