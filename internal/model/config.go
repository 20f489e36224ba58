package model

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Reserved decoder indices of the date-normalization checkpoints.
const (
	DefaultSOS = 0
	DefaultEOS = 1
)

var ErrConfig = errors.New("model: invalid config")

// Config holds the hyper-parameters baked into a pair of encoder/decoder
// checkpoints. It is stored as model.yaml next to the weights.
type Config struct {
	HiddenSize int    `yaml:"hidden_size"`
	Layers     int    `yaml:"layers"`
	Attention  Method `yaml:"attention"`
	MaxLength  int    `yaml:"max_length"`
	// MaxInputLength caps accepted input runes; 0 disables the check.
	MaxInputLength int     `yaml:"max_input_length"`
	SOS            int     `yaml:"sos_token"`
	EOS            int     `yaml:"eos_token"`
	Dropout        float64 `yaml:"dropout"` // training only
}

// DefaultConfig returns the configuration of the reference date model.
func DefaultConfig() Config {
	return Config{
		HiddenSize: 500,
		Layers:     2,
		Attention:  MethodGeneral,
		MaxLength:  11,
		// Free-form dates in the training data are well under this.
		MaxInputLength: 64,
		SOS:            DefaultSOS,
		EOS:            DefaultEOS,
		Dropout:        0.05,
	}
}

// LoadConfig reads path and overlays it on DefaultConfig. A missing file
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WriteConfig stores cfg as YAML.
func WriteConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) Validate() error {
	switch {
	case c.HiddenSize <= 0:
		return fmt.Errorf("%w: hidden_size must be positive, got %d", ErrConfig, c.HiddenSize)
	case c.Layers <= 0:
		return fmt.Errorf("%w: layers must be positive, got %d", ErrConfig, c.Layers)
	case c.MaxLength <= 0:
		return fmt.Errorf("%w: max_length must be positive, got %d", ErrConfig, c.MaxLength)
	case c.MaxInputLength < 0:
		return fmt.Errorf("%w: max_input_length must not be negative, got %d", ErrConfig, c.MaxInputLength)
	case c.SOS < 0 || c.EOS < 0:
		return fmt.Errorf("%w: negative reserved token", ErrConfig)
	case c.SOS == c.EOS:
		return fmt.Errorf("%w: sos_token and eos_token are both %d", ErrConfig, c.SOS)
	case !c.Attention.Valid():
		return fmt.Errorf("%w: unknown attention method %d", ErrConfig, c.Attention)
	}
	return nil
}
