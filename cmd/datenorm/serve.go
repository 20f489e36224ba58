package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/datenorm/internal/api"
	"github.com/samcharles93/datenorm/internal/logger"
	"github.com/samcharles93/datenorm/internal/metrics"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve date normalization over HTTP",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "0.0.0.0:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg, err := loadConfig(configPath())
			if err != nil {
				return err
			}
			applyServeConfig(cmd, cfg, &addr, &readTimeout)
			if strings.TrimSpace(modelDir) == "" {
				return fmt.Errorf("--model-dir is required unless %s is set", envModelDir)
			}

			m := metrics.New()
			provider := api.NewReloadableEngineProvider(api.LoaderFunc(modelLoader()))
			info, err := provider.Reload(ctx)
			m.ObserveReload(err, info.LoadedAt)
			if err != nil {
				return fmt.Errorf("load model from %s: %w", modelDir, err)
			}
			log.Info("model loaded",
				"id", info.ID,
				"dir", info.Dir,
				"hidden_size", info.HiddenSize,
				"layers", info.Layers,
				"attention", info.Attention,
				"input_vocab", info.InputVocab,
				"output_vocab", info.OutputVocab,
			)

			server := api.NewServer(provider, m, log)
			e := echo.New()
			e.Logger = logger.Slog(log)
			server.Register(e)
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
