package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lmpeek/internal/api"
	"github.com/samcharles93/lmpeek/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)
	return &cli.Command{
		Name:  "serve",
		Usage: "Load a model and serve it over HTTP",
		Flags: concat(loggingFlags(), modelFlags(), workerFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		}),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cfg, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			applyServeConfig(c, cfg, &addr)
			log := logger.FromContext(ctx)

			m, err := openModel(ctx)
			if err != nil {
				return err
			}
			defer m.Dispose()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			api.NewServer(m, log).Register(e)
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
