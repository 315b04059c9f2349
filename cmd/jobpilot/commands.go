package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"go-jobpilot/internal/app"
	"go-jobpilot/internal/config"
	"go-jobpilot/internal/logging"
	"go-jobpilot/internal/orchestrator"
	"go-jobpilot/internal/server"
)

// setup loads config, builds the logger and connects the backing services.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger.Info("🔧 Config loaded", zap.String("site", cfg.Site.Name), zap.Bool("headless", cfg.Browser.Headless))

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	if path := cmd.String("seed"); path != "" {
		if err := seed(ctx, a, path); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func seed(ctx context.Context, a *app.App, path string) error {
	f, err := app.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := f.Apply(ctx, a.Store); err != nil {
		return err
	}
	a.Log.Info("🌱 Seed applied", zap.Int("users", len(f.Users)), zap.Int("configs", len(f.Configs)))
	return nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Log.Sync()

	submit := cmd.Bool("real")
	var reqs []orchestrator.RunRequest
	switch {
	case cmd.Bool("all"):
		configs, err := a.Store.ListActiveConfigs(ctx)
		if err != nil {
			return err
		}
		for _, c := range configs {
			reqs = append(reqs, orchestrator.RunRequest{ConfigID: c.ID, UseRealAutomation: submit})
		}
		if len(reqs) == 0 {
			a.Log.Warn("⚠️ No active configuration")
			return nil
		}
	case cmd.String("config-id") != "":
		reqs = []orchestrator.RunRequest{{ConfigID: cmd.String("config-id"), UseRealAutomation: submit}}
	default:
		return errors.New("either --config-id or --all is required")
	}
	if !submit {
		a.Log.Info("🧪 Rehearsal mode: applications will not be submitted (pass --real to submit)")
	}

	reports, runErr := a.Orchestrator.RunAll(ctx, reqs, int(cmd.Int("parallel")))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, r := range reports {
		if r == nil {
			continue
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return runErr
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Log.Sync()

	srv := server.New(ctx, a.Tracker, a.Orchestrator, a.Log)
	return srv.ListenAndServe(ctx, a.Config.Server.PortAddr(), app.ShutdownTimeout)
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Migrate(ctx)
}

func seedAction(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return seed(ctx, a, cmd.String("file"))
}
