package gate

import (
	"context"
	"errors"
	"sync"

	"github.com/branchd-dev/sessiongate/internal/identity"
)

var errRevoked = errors.New("refresh token revoked")

// fakeSessions rotates pairs it has not seen before and answers roles from
// a map. Pairs listed in revoked fail to refresh.
type fakeSessions struct {
	mu           sync.Mutex
	users        map[string]string // refresh token -> user id
	rotate       map[identity.TokenPair]identity.TokenPair
	revoked      map[string]bool
	roles        map[string]string
	roleErr      error
	block        bool
	refreshCalls int
	roleCalls    int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		users:   map[string]string{},
		rotate:  map[identity.TokenPair]identity.TokenPair{},
		revoked: map[string]bool{},
		roles:   map[string]string{},
	}
}

func (f *fakeSessions) RefreshSession(ctx context.Context, pair identity.TokenPair) (*identity.Session, error) {
	f.mu.Lock()
	f.refreshCalls++
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.revoked[pair.RefreshToken] {
		return nil, errRevoked
	}
	userID, ok := f.users[pair.RefreshToken]
	if !ok {
		return nil, identity.ErrSessionRefreshFailed
	}
	out := pair
	if next, ok := f.rotate[pair]; ok {
		out = next
	}
	return &identity.Session{Pair: out, UserID: userID, Email: userID + "@example.com"}, nil
}

func (f *fakeSessions) RoleForUser(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleCalls++
	if f.roleErr != nil {
		return "", f.roleErr
	}
	return f.roles[userID], nil
}

func (f *fakeSessions) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.roleCalls
}
