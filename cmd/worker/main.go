package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/branchd-dev/sessiongate/internal/config"
	"github.com/branchd-dev/sessiongate/internal/identity"
	"github.com/branchd-dev/sessiongate/internal/logger"
	"github.com/branchd-dev/sessiongate/internal/tasks"
	"github.com/branchd-dev/sessiongate/internal/workers"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	log.Info().Str("version", version).Msg("Starting sessiongate worker")

	svc, err := identity.Open(cfg.Identity, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open identity service")
	}
	defer identity.Close(svc)

	// Expired session purge only applies to the local provider
	var purge *cron.Cron
	if purger, ok := identity.Unwrap(svc).(workers.Purger); ok {
		purge, err = workers.StartSessionPurge(cfg.Worker.SessionPurgeSchedule, purger, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule session purge")
		}
	}

	var asynqServer *asynq.Server
	if cfg.Redis.Address != "" {
		asynqServer = asynq.NewServer(
			asynq.RedisClientOpt{
				Addr: cfg.Redis.Address,
			},
			asynq.Config{
				Concurrency: 10,
				Logger:      &asynqLogger{log: log},
			},
		)

		mux := asynq.NewServeMux()
		mux.HandleFunc(tasks.TypeRevokeSession, func(ctx context.Context, t *asynq.Task) error {
			return workers.HandleRevokeSession(ctx, t, svc, log)
		})

		go func() {
			log.Info().Msg("Starting Asynq worker server...")
			if err := asynqServer.Run(mux); err != nil {
				log.Fatal().Err(err).Msg("Asynq worker server failed")
			}
		}()
	} else if purge == nil {
		log.Fatal().Msg("Nothing to do: set REDIS_ADDRESS or use a sqlite:// identity URL")
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")

	if purge != nil {
		<-purge.Stop().Done()
	}
	if asynqServer != nil {
		log.Info().Msg("Stopping Asynq worker - waiting for tasks to finish...")
		asynqServer.Shutdown()
	}

	log.Info().Msg("Worker shutdown complete")
}

// asynqLogger is a wrapper to make zerolog compatible with Asynq's logger interface
type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}
