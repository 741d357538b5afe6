package identity

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := OpenLocal(filepath.Join(t.TempDir(), "identity.sqlite"), "local-secret", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestLocalSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)

	require.NoError(t, p.SignUp(ctx, "A@B.com", "secret1"))
	require.ErrorIs(t, p.SignUp(ctx, "a@b.com", "secret1"), ErrRegistrationFailed)

	res, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	assert.True(t, res.Pair.Complete())
	assert.Equal(t, "a@b.com", res.Email)
	assert.NotEmpty(t, res.UserID)

	_, err = p.SignIn(ctx, "a@b.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.SignIn(ctx, "nobody@b.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLocalRefreshKeepsLiveAccessToken(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)
	require.NoError(t, p.SignUp(ctx, "a@b.com", "secret1"))
	res, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	sess, err := p.RefreshSession(ctx, res.Pair)
	require.NoError(t, err)
	assert.Equal(t, res.Pair, sess.Pair)
	assert.Equal(t, res.UserID, sess.UserID)
	assert.Equal(t, "a@b.com", sess.Email)
}

func TestLocalRefreshReissuesExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)
	require.NoError(t, p.SignUp(ctx, "a@b.com", "secret1"))

	start := time.Now()
	p.SetClock(func() time.Time { return start })
	res, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	later := start.Add(2 * time.Hour)
	p.SetClock(func() time.Time { return later })

	sess, err := p.RefreshSession(ctx, res.Pair)
	require.NoError(t, err)
	assert.NotEqual(t, res.Pair.AccessToken, sess.Pair.AccessToken)
	assert.Equal(t, res.Pair.RefreshToken, sess.Pair.RefreshToken)

	// The renewed pair keeps working without another re-issue
	again, err := p.RefreshSession(ctx, sess.Pair)
	require.NoError(t, err)
	assert.Equal(t, sess.Pair, again.Pair)
}

func TestLocalRefreshRejectsMismatchedPair(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)
	require.NoError(t, p.SignUp(ctx, "a@b.com", "secret1"))
	first, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	second, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	_, err = p.RefreshSession(ctx, TokenPair{AccessToken: first.Pair.AccessToken, RefreshToken: second.Pair.RefreshToken})
	require.ErrorIs(t, err, ErrSessionRefreshFailed)

	_, err = p.RefreshSession(ctx, TokenPair{AccessToken: first.Pair.AccessToken, RefreshToken: "unknown"})
	require.ErrorIs(t, err, ErrSessionRefreshFailed)
}

func TestLocalSignOutRevokesSession(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)
	require.NoError(t, p.SignUp(ctx, "a@b.com", "secret1"))
	res, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, res.Pair))
	require.NoError(t, p.SignOut(ctx, res.Pair))

	_, err = p.RefreshSession(ctx, res.Pair)
	require.ErrorIs(t, err, ErrSessionRefreshFailed)
}

func TestLocalRoles(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)
	require.NoError(t, p.SignUp(ctx, "a@b.com", "secret1"))
	res, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	role, err := p.RoleForUser(ctx, res.UserID)
	require.NoError(t, err)
	assert.Empty(t, role)

	require.NoError(t, p.SetRole(ctx, "a@b.com", "admin"))
	role, err = p.RoleForUser(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	require.NoError(t, p.SetRole(ctx, "a@b.com", "user"))
	role, err = p.RoleForUser(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "user", role)

	require.ErrorIs(t, p.SetRole(ctx, "nobody@b.com", "admin"), ErrUserNotFound)
}

func TestLocalPurgeExpired(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)
	require.NoError(t, p.SignUp(ctx, "a@b.com", "secret1"))

	start := time.Now()
	p.SetClock(func() time.Time { return start })
	res, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	n, err := p.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	p.SetClock(func() time.Time { return start.Add(31 * 24 * time.Hour) })
	n, err = p.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = p.RefreshSession(ctx, res.Pair)
	require.ErrorIs(t, err, ErrSessionRefreshFailed)
}

func TestLocalRefreshDeletesExpiredSession(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	p, err := OpenLocal(filepath.Join(t.TempDir(), "identity.sqlite"), "local-secret", zerolog.New(&logs))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	require.NoError(t, p.SignUp(ctx, "a@b.com", "secret1"))
	start := time.Now()
	p.SetClock(func() time.Time { return start })
	res, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	p.SetClock(func() time.Time { return start.Add(31 * 24 * time.Hour) })
	_, err = p.RefreshSession(ctx, res.Pair)
	require.ErrorIs(t, err, ErrSessionRefreshFailed)

	n, err := p.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "refresh already removed the expired session")
	assert.NotContains(t, logs.String(), "Failed to delete expired session")
}

type staticRoles map[string]string

func (s staticRoles) RoleForUser(_ context.Context, userID string) (string, error) {
	return s[userID], nil
}

func TestWithRoleStore(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)
	require.NoError(t, p.SignUp(ctx, "a@b.com", "secret1"))
	res, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	svc := WithRoleStore(p, staticRoles{res.UserID: "admin"})
	role, err := svc.RoleForUser(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	_, err = svc.RefreshSession(ctx, res.Pair)
	require.NoError(t, err)

	assert.Same(t, Service(p), WithRoleStore(p, nil))
}
