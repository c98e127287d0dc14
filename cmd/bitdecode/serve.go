package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bitdecode/internal/api"
	"github.com/samcharles93/bitdecode/internal/inference"
	"github.com/samcharles93/bitdecode/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		cfg         = inference.DefaultConfig()
		addr        string
		readTimeout time.Duration
		lazy        bool
		maxLength   int
		storeSize   int
	)

	flags := []cli.Flag{modelFlag(&cfg.ModelPath)}
	flags = append(flags, generationFlags(&cfg)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.BoolFlag{
			Name:        "lazy",
			Usage:       "load the model on the first request instead of at startup",
			Destination: &lazy,
		},
		&cli.IntFlag{
			Name:        "max-length-limit",
			Usage:       "upper bound for max_length in a request",
			Value:       api.DefaultMaxLengthLimit,
			Destination: &maxLength,
		},
		&cli.IntFlag{
			Name:        "store-size",
			Usage:       "number of finished generations kept for GET /v1/generations/:id",
			Value:       256,
			Destination: &storeSize,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generate REST API",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, fileConfig, &cfg, &addr)

			provider := api.NewCachedModelProvider(api.ProviderConfig{
				ModelPath: cfg.ModelPath,
				Loader:    inference.Loader{Dims: fileConfig.Dims},
			})
			defer func() { _ = provider.Close() }()
			if !lazy {
				if err := provider.Preload(ctx); err != nil {
					return cli.Exit(err.Error(), 1)
				}
			}

			service := api.NewGenerationService(provider, cfg)
			service.SetMaxLengthLimit(maxLength)
			server := api.NewServer(api.NewGenerationStore(storeSize), service, provider)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "model", cfg.ModelPath)
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
