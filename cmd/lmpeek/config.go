package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lmpeek/internal/config"
)

// applyConfig copies config file values into flag variables whose flag was
// not set explicitly. Flags not defined on c report unset and are filled too,
// which is harmless: the command does not read them.
func applyConfig(c *cli.Command, cfg config.Config) error {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
	if cfg.RuntimeLibrary != "" && !c.IsSet("ort-lib") {
		ortLib = cfg.RuntimeLibrary
	}
	if cfg.ModelType != "" && !c.IsSet("model") {
		modelType = cfg.ModelType
	}
	if cfg.ModelURL != "" && !c.IsSet("model-url") {
		modelURL = cfg.ModelURL
	}
	if cfg.Tokenizer != "" && !c.IsSet("tokenizer") {
		tokenizerRef = cfg.Tokenizer
	}
	if len(cfg.ExecutionProviders) > 0 && !c.IsSet("provider") {
		providers = cfg.ExecutionProviders
	}
	if cfg.Isolated != nil && !c.IsSet("isolated") {
		isolated = *cfg.Isolated
	}
	if cfg.Codec != "" && !c.IsSet("codec") {
		codec = cfg.Codec
	}
	if cfg.Timeout != "" && !c.IsSet("timeout") {
		d, err := cfg.RequestTimeout()
		if err != nil {
			return err
		}
		timeout = d
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		topP = *cfg.TopP
	}
	return nil
}

// applyGenerateConfig fills the generate-only flags.
func applyGenerateConfig(c *cli.Command, cfg config.Config, steps, seed *int64) {
	if cfg.Steps != nil && !c.IsSet("steps") {
		*steps = *cfg.Steps
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

// applyServeConfig fills the serve-only flags.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
