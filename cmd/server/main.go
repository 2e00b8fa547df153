package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rxtech-lab/argo-fund/internal/app"
	"github.com/rxtech-lab/argo-fund/internal/config"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/version"
	"github.com/urfave/cli/v3"
)

// serveAction loads the configuration and serves the API until interrupted.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Default()

	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		cfg = loaded
	}

	if listen := cmd.String("listen"); listen != "" {
		cfg.Server.ListenAddress = listen
	}

	if level := cmd.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	serverLogger, err := logger.NewLoggerWithLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer serverLogger.Sync() //nolint:errcheck

	application, err := app.New(cfg, serverLogger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func main() {
	cmd := &cli.Command{
		Name:    "argo-fund-server",
		Usage:   "Serve the backtest API",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the server config `FILE`",
				Sources: cli.EnvVars("ARGO_FUND_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Listen address, overrides the config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error), overrides the config file",
			},
		},
		Action: serveAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
