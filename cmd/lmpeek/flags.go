package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

var (
	// logging
	logLevel  string
	logFormat string
	debug     bool

	// model
	modelType      string
	modelURL       string
	tokenizerRef   string
	providers      []string
	layers         int64
	heads          int64
	sessionLogging bool

	// worker
	isolated bool
	codec    string
	timeout  time.Duration
	cacheDir string
	ortLib   string

	// sampling
	temperature float64
	topK        int64
	topP        float64
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LMPEEK_LOG_LEVEL"),
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "model type (gpt-2)",
			Destination: &modelType,
		},
		&cli.StringFlag{
			Name:        "model-url",
			Usage:       "override the model graph location (URL or local .onnx file)",
			Destination: &modelURL,
		},
		&cli.StringFlag{
			Name:        "tokenizer",
			Usage:       "tokenizer.json path or Hugging Face repo id",
			Destination: &tokenizerRef,
		},
		&cli.StringSliceFlag{
			Name:        "provider",
			Usage:       "execution provider in preference order (cpu, cuda)",
			Destination: &providers,
		},
		&cli.Int64Flag{
			Name:        "layers",
			Usage:       "override the architecture layer count",
			Destination: &layers,
		},
		&cli.Int64Flag{
			Name:        "heads",
			Usage:       "override the architecture head count",
			Destination: &heads,
		},
		&cli.BoolFlag{
			Name:        "session-logging",
			Usage:       "log worker timings at info level",
			Destination: &sessionLogging,
		},
	}
}

func workerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "isolated",
			Usage:       "run the worker in a subprocess",
			Destination: &isolated,
		},
		&cli.StringFlag{
			Name:        "codec",
			Usage:       "wire codec for the worker subprocess (json, msgpack, cbor)",
			Value:       "json",
			Destination: &codec,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "per-request timeout (0 disables)",
			Destination: &timeout,
		},
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "directory for downloaded models and tokenizers",
			Sources:     cli.EnvVars("LMPEEK_CACHE_DIR"),
			Destination: &cacheDir,
		},
		&cli.StringFlag{
			Name:        "ort-lib",
			Usage:       "path to the onnxruntime shared library",
			Sources:     cli.EnvVars("LMPEEK_ORT_LIB"),
			Destination: &ortLib,
		},
	}
}

func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.FloatFlag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature (0 or 1 disables)",
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "keep only the k highest scores (0 disables)",
			Destination: &topK,
		},
		&cli.FloatFlag{
			Name:        "top-p",
			Usage:       "nucleus threshold in (0, 1) (0 disables)",
			Destination: &topP,
		},
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
