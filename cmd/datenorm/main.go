package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/datenorm/internal/logger"
	"github.com/samcharles93/datenorm/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "datenorm",
		Usage:   "Normalize free-form dates with a character-level seq2seq model",
		Version: version.String(),
		Flags:   loggingFlags(),
		Before:  setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			serveCmd(),
			predictCmd(),
			inspectCmd(),
			initCmd(),
			versionCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setupLogging builds the process logger from the logging flags, falling back
// to the config file for flags left unset, and stores it on the context.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfig(configPath())
	if err != nil {
		return ctx, err
	}
	applyLoggingConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.NewFromFlags(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, err
	}
	// echo's request logger and any library logging through slog share the
	// configured format.
	slog.SetDefault(logger.Slog(log))
	return logger.WithContext(ctx, log), nil
}
