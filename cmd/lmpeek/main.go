package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lmpeek/internal/config"
	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/sampling"
	"github.com/samcharles93/lmpeek/pkg/lmpeek"
)

func main() {
	app := &cli.Command{
		Name:  "lmpeek",
		Usage: "Inspect the activations and next-token distribution of a language model",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			workerCmd(),
			encodeCmd(),
			decodeCmd(),
			sampleCmd(),
			forwardCmd(),
			generateCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// prepare loads the config file into unset flags and installs the logger in
// ctx. Logs go to stderr so stdout stays clean for command output.
func prepare(ctx context.Context, c *cli.Command) (context.Context, config.Config, error) {
	cfg, path, err := config.Load()
	if err != nil {
		return ctx, cfg, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if err := applyConfig(c, cfg); err != nil {
		return ctx, cfg, cli.Exit(fmt.Sprintf("error: config %s: %v", path, err), 1)
	}
	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.Build(logFormat, level, os.Stderr)
	if err != nil {
		return ctx, cfg, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if path != "" {
		log.Debug("config loaded", "path", path)
	}
	return logger.WithContext(ctx, log), cfg, nil
}

// openModel starts a worker per the worker flags and loads the model per the
// model flags.
func openModel(ctx context.Context) (*lmpeek.Model, error) {
	log := logger.FromContext(ctx)
	opts := []lmpeek.Option{
		lmpeek.WithLogger(log),
		lmpeek.WithRequestTimeout(timeout),
		lmpeek.WithCacheDir(cacheDir),
		lmpeek.WithRuntimeLibrary(ortLib),
	}
	if isolated {
		level := logLevel
		if debug {
			level = "debug"
		}
		opts = append(opts,
			lmpeek.WithProcess(""),
			lmpeek.WithCodec(codec),
			lmpeek.WithProcessEnv("LMPEEK_LOG_LEVEL="+level),
		)
	}

	loadOpts := []lmpeek.LoadOption{
		lmpeek.WithShape(int(layers), int(heads)),
	}
	if modelURL != "" {
		loadOpts = append(loadOpts, lmpeek.WithModelURL(modelURL))
	}
	if tokenizerRef != "" {
		loadOpts = append(loadOpts, lmpeek.WithTokenizer(tokenizerRef))
	}
	if len(providers) > 0 {
		loadOpts = append(loadOpts, lmpeek.WithExecutionProviders(providers...))
	}
	if sessionLogging {
		loadOpts = append(loadOpts, lmpeek.WithSessionLogging())
	}
	opts = append(opts, lmpeek.WithLoadOptions(loadOpts...))

	m, err := lmpeek.Load(ctx, modelType, opts...)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
	}
	return m, nil
}

func samplingOptions() sampling.Options {
	return sampling.Options{Temperature: temperature, TopK: int(topK), TopP: topP}
}
