package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TimurManjosov/flagpage/internal/config"
	"github.com/TimurManjosov/flagpage/internal/logging"
	"github.com/TimurManjosov/flagpage/internal/server"
	"github.com/TimurManjosov/flagpage/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(os.Stderr, "info", "dev")
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	logger = logging.New(os.Stderr, cfg.LogLevel, cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, "flagpage")
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	lc := server.New(cfg, server.WithLogger(logger))
	if err := lc.Run(ctx); err != nil {
		stop()
		logger.Fatal().Err(err).Stringer("state", lc.State()).Msg("service failed")
	}
}
