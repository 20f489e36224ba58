package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional user config file
// ($XDG_CONFIG_HOME/datenorm/config.yaml). Flags and environment variables
// win over anything set here.
type Config struct {
	ModelDir       string `yaml:"model_dir"`
	MaxLength      *int64 `yaml:"max_length"`
	MaxInputLength *int64 `yaml:"max_input_length"`

	// Server
	ServerAddress string         `yaml:"server_address"`
	ReadTimeout   *time.Duration `yaml:"read_timeout"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "datenorm", "config.yaml")
}

// loadConfig reads path. A missing file yields a zero Config; a malformed one
// is an error.
func loadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig applies config file defaults to the model flags when the
// corresponding flag (or its environment variable) was not set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelDir != "" && !c.IsSet("model-dir") {
		modelDir = cfg.ModelDir
	}
	if cfg.MaxLength != nil && !c.IsSet("max-length") {
		maxLength = *cfg.MaxLength
	}
	if cfg.MaxInputLength != nil && !c.IsSet("max-input-length") {
		maxInputLength = *cfg.MaxInputLength
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, readTimeout *time.Duration) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.ReadTimeout != nil && !c.IsSet("read-timeout") {
		*readTimeout = *cfg.ReadTimeout
	}
}
