package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/branchd-dev/sessiongate/internal/config"
	"github.com/branchd-dev/sessiongate/internal/identity"
	"github.com/branchd-dev/sessiongate/internal/logger"
	"github.com/branchd-dev/sessiongate/internal/server"
	"github.com/branchd-dev/sessiongate/internal/tasks"
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

	gin.SetMode(gin.ReleaseMode)

	svc, err := identity.Open(cfg.Identity, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open identity service")
	}

	// Queue provider sign-outs when Redis is available, otherwise revoke inline
	var signOuts server.SignOutDispatcher
	if cfg.Redis.Address != "" {
		signOuts = tasks.NewEnqueuer(cfg.Redis.Address)
		log.Info().Str("redis", cfg.Redis.Address).Msg("Queueing sign-out revocations")
	}

	srv, err := server.New(cfg, log, svc, signOuts, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	log.Info().Str("version", version).Msg("Starting sessiongate server...")

	// Start HTTP server (this blocks)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
