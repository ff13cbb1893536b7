package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcpsandbox/mcpsandbox/internal/config"
	"github.com/mcpsandbox/mcpsandbox/internal/docker"
	"github.com/mcpsandbox/mcpsandbox/internal/httpserver"
	"github.com/mcpsandbox/mcpsandbox/internal/reaper"
	"github.com/mcpsandbox/mcpsandbox/internal/session"
	"github.com/mcpsandbox/mcpsandbox/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logSink, err := log.Init(log.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	logger := log.WithComponent("server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dockerClient, err := docker.NewClient()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize docker")
	}
	version, err := dockerClient.Version(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("docker not responding")
	}
	logger.Info().Str("version", version).Msg("using docker")

	mgr := session.NewManager(cfg, dockerClient)
	rpr := reaper.New(cfg, mgr, dockerClient)

	// Reclaim containers leaked by a previous broker process before any
	// session is accepted.
	removed := rpr.SweepOrphans(ctx)
	logger.Info().Int("removed", removed).Msg("orphan sweep complete")

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		rpr.Run(ctx)
	}()

	srv := httpserver.New(cfg, mgr)
	mgr.EnableHTTP()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server starting")
		serverErr <- srv.Start(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("http server failed")
	}

	// Tear down in reverse order of boot: HTTP server, reaper, sessions.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
	<-reaperDone
	mgr.CloseAll(shutdownCtx)

	logger.Info().Msg("shutdown complete")
	if logSink != nil {
		_ = logSink.Close()
	}
}
