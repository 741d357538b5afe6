package workers

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/branchd-dev/sessiongate/internal/identity"
	"github.com/branchd-dev/sessiongate/internal/tasks"
)

// Revoker is the part of the identity service used to revoke sessions
type Revoker interface {
	SignOut(ctx context.Context, pair identity.TokenPair) error
}

// HandleRevokeSession revokes a signed-out session at the provider. A 4xx
// answer means the session is already gone and is not retried.
func HandleRevokeSession(ctx context.Context, t *asynq.Task, revoker Revoker, logger zerolog.Logger) error {
	pair, err := tasks.ParseRevokeSessionPayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if err := revoker.SignOut(ctx, pair); err != nil {
		if identity.IsClientError(err) {
			logger.Info().Err(err).Msg("Session already revoked at provider")
			return nil
		}
		logger.Warn().Err(err).Msg("Failed to revoke session, will retry")
		return err
	}

	logger.Debug().Msg("Session revoked at provider")
	return nil
}
