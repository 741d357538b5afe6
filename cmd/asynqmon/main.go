package main

import (
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"

	"github.com/branchd-dev/sessiongate/internal/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log := logger.GetLogger()

	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/asynqmon",
		RedisConnOpt: asynq.RedisClientOpt{Addr: redisAddr},
	})
	defer h.Close()

	port := os.Getenv("ASYNQMON_PORT")
	if port == "" {
		port = "8090"
	}

	log.Info().Str("port", port).Str("redis", redisAddr).Msg("Starting Asynqmon")
	if err := http.ListenAndServe(":"+port, h); err != nil {
		log.Fatal().Err(err).Msg("Asynqmon server failed")
	}
}
