package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"go-jobpilot/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configFlag := &cli.StringFlag{
		Name:  "config",
		Usage: "path to the runtime YAML config",
		Value: config.DefaultPath,
	}
	seedFlag := &cli.StringFlag{
		Name:  "seed",
		Usage: "YAML file of users and automation configs to upsert first",
	}

	cmd := &cli.Command{
		Name:  "jobpilot",
		Usage: "apply to job board postings on a user's behalf",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the automation for one configuration, or every active one",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config-id", Usage: "automation configuration id"},
					&cli.BoolFlag{Name: "all", Usage: "run every active configuration"},
					&cli.BoolFlag{Name: "real", Usage: "submit applications (default is a rehearsal)"},
					&cli.IntFlag{Name: "parallel", Usage: "concurrent runs with --all", Value: 2},
					seedFlag,
				},
				Action: runAction,
			},
			{
				Name:   "serve",
				Usage:  "serve progress and the run trigger over HTTP",
				Flags:  []cli.Flag{seedFlag},
				Action: serveAction,
			},
			{
				Name:   "migrate",
				Usage:  "create the Postgres schema",
				Action: migrateAction,
			},
			{
				Name:  "seed",
				Usage: "upsert users and automation configs from YAML",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "seed YAML file", Required: true},
				},
				Action: seedAction,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatalf("❌ %v", err)
	}
}
