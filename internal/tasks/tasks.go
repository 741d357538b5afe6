package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/branchd-dev/sessiongate/internal/identity"
)

// Task type constants
const (
	// Provider-side revocation of a signed-out session
	TypeRevokeSession = "session:revoke"
)

// RevokeSessionPayload carries the token pair to revoke
type RevokeSessionPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// NewRevokeSessionTask creates a task revoking pair at the provider
func NewRevokeSessionTask(pair identity.TokenPair) (*asynq.Task, error) {
	payload, err := json.Marshal(RevokeSessionPayload{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeRevokeSession, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// ParseRevokeSessionPayload parses the token pair from an Asynq task
func ParseRevokeSessionPayload(task *asynq.Task) (identity.TokenPair, error) {
	var payload RevokeSessionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return identity.TokenPair{}, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return identity.TokenPair{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken}, nil
}

// Enqueuer hands sign-outs to the worker through Redis
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates an enqueuer for the Redis instance at addr
func NewEnqueuer(addr string) *Enqueuer {
	return &Enqueuer{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: addr}),
	}
}

// Dispatch enqueues provider-side revocation of pair
func (e *Enqueuer) Dispatch(ctx context.Context, pair identity.TokenPair) error {
	task, err := NewRevokeSessionTask(pair)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue session revocation: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
