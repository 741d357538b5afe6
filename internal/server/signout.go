package server

import (
	"context"
	"time"

	"github.com/branchd-dev/sessiongate/internal/identity"
)

// SignOutDispatcher hands a signed-out token pair to the provider for
// revocation. tasks.Enqueuer queues it; the default revokes inline.
type SignOutDispatcher interface {
	Dispatch(ctx context.Context, pair identity.TokenPair) error
	Close() error
}

type inlineSignOut struct {
	svc     identity.Service
	timeout time.Duration
}

func (d *inlineSignOut) Dispatch(ctx context.Context, pair identity.TokenPair) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.svc.SignOut(ctx, pair)
}

func (d *inlineSignOut) Close() error {
	return nil
}
