package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lmpeek/internal/channel"
	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/protocol"
	"github.com/samcharles93/lmpeek/internal/version"
	"github.com/samcharles93/lmpeek/internal/worker"
)

func workerCmd() *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Serve framed commands on stdin/stdout (started by --isolated)",
		Hidden: true,
		Flags:  concat(loggingFlags(), workerFlags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries frames, so the worker always logs JSON to stderr
			// for the parent to relay.
			if !c.IsSet("log-format") {
				_ = c.Set("log-format", "json")
			}
			ctx, _, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx).With("pid", os.Getpid())

			wc, err := protocol.LookupCodec(codec)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			w := worker.New(worker.DefaultDependencies(cacheDir, ortLib, log), log)
			log.Info("worker ready", append(version.LogArgs(), "codec", wc.Name())...)

			if err := channel.ServeStream(ctx, os.Stdin, os.Stdout, wc, w.Serve, log); err != nil && ctx.Err() == nil {
				return cli.Exit(fmt.Sprintf("error: worker: %v", err), 1)
			}
			return nil
		},
	}
}
