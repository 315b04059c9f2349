package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"go-jobpilot/internal/app"
	"go-jobpilot/internal/config"
	"go-jobpilot/internal/logging"
	"go-jobpilot/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//load config
	path := os.Getenv("JOBPILOT_CONFIG")
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		log.Fatalf("❌ Failed to init logger: %v", err)
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("❌ Failed to init services", zap.Error(err))
	}
	defer a.Close()

	srv := server.New(ctx, a.Tracker, a.Orchestrator, logger)
	if err := srv.ListenAndServe(ctx, cfg.Server.PortAddr(), app.ShutdownTimeout); err != nil {
		logger.Error("❌ Server stopped", zap.Error(err))
	}
}
