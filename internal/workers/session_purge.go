package workers

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Purger deletes expired sessions from a local identity store
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StartSessionPurge runs PurgeExpired on the given cron schedule until the
// returned scheduler is stopped.
func StartSessionPurge(schedule string, purger Purger, logger zerolog.Logger) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))

	_, err := c.AddFunc(schedule, func() {
		purgeExpiredSessions(context.Background(), purger, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session purge schedule %q: %w", schedule, err)
	}

	// Run immediately on startup, then on schedule
	purgeExpiredSessions(context.Background(), purger, logger)
	c.Start()

	logger.Info().Str("schedule", schedule).Msg("Session purge scheduled")
	return c, nil
}

func purgeExpiredSessions(ctx context.Context, purger Purger, logger zerolog.Logger) {
	n, err := purger.PurgeExpired(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to purge expired sessions")
		return
	}
	if n > 0 {
		logger.Info().Int64("sessions", n).Msg("Purged expired sessions")
	}
}
