// Package config reads the lmpeek configuration file. Every field is
// optional; pointer fields distinguish "not set" from zero values so that
// command-line flags only defer to values the file actually sets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfig   = "LMPEEK_CONFIG"
	EnvCacheDir = "LMPEEK_CACHE_DIR"
	EnvORTLib   = "LMPEEK_ORT_LIB"
)

// Config mirrors ~/.config/lmpeek/config.{yaml,yml,toml,json}.
type Config struct {
	CacheDir       string `yaml:"cache_dir" toml:"cache_dir" json:"cache_dir"`
	RuntimeLibrary string `yaml:"ort_library" toml:"ort_library" json:"ort_library"`

	// Model
	ModelType          string   `yaml:"model_type" toml:"model_type" json:"model_type"`
	ModelURL           string   `yaml:"model_url" toml:"model_url" json:"model_url"`
	Tokenizer          string   `yaml:"tokenizer" toml:"tokenizer" json:"tokenizer"`
	ExecutionProviders []string `yaml:"execution_providers" toml:"execution_providers" json:"execution_providers"`

	// Worker
	Isolated *bool  `yaml:"isolated" toml:"isolated" json:"isolated"`
	Codec    string `yaml:"codec" toml:"codec" json:"codec"`
	Timeout  string `yaml:"timeout" toml:"timeout" json:"timeout"`

	// Sampling defaults
	Temperature *float64 `yaml:"temperature" toml:"temperature" json:"temperature"`
	TopK        *int64   `yaml:"top_k" toml:"top_k" json:"top_k"`
	TopP        *float64 `yaml:"top_p" toml:"top_p" json:"top_p"`
	Steps       *int64   `yaml:"steps" toml:"steps" json:"steps"`
	Seed        *int64   `yaml:"seed" toml:"seed" json:"seed"`

	// Output
	LogLevel  string `yaml:"log_level" toml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format" json:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address" toml:"server_address" json:"server_address"`
}

var extensions = []string{".yaml", ".yml", ".toml", ".json"}

// Dir is the directory searched for the config file.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "lmpeek")
}

// Find returns the config file in use: $LMPEEK_CONFIG when set, otherwise
// the first config.<ext> present in Dir. Empty means none.
func Find() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir := Dir()
	if dir == "" {
		return ""
	}
	for _, ext := range extensions {
		p := filepath.Join(dir, "config"+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads the file found by Find and applies environment overrides. A
// missing file yields a zero Config.
func Load() (Config, string, error) {
	path := Find()
	var cfg Config
	if path != "" {
		var err error
		cfg, err = ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, path, err
		}
	}
	cfg.ApplyEnv()
	return cfg, path, nil
}

// ReadFile parses path, choosing the format from its extension.
func ReadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext (".yaml", ".toml", ...).
func Parse(ext string, data []byte) (Config, error) {
	var cfg Config
	var err error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return Config{}, err
	}
	if _, err := cfg.RequestTimeout(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with LMPEEK_CACHE_DIR and LMPEEK_ORT_LIB.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvORTLib); v != "" {
		c.RuntimeLibrary = v
	}
}

// RequestTimeout parses Timeout. Empty is zero.
func (c Config) RequestTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	return d, nil
}
