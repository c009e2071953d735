// Package config loads lasermx settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the CLI and the control server.
type Config struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	Simulate bool   `yaml:"simulate"`
	SPJS     string `yaml:"spjs"`

	Feed           float64 `yaml:"feed"`
	Power          int     `yaml:"power"`
	SamplesPerUnit float64 `yaml:"samples_per_unit"`

	StreamDelay    time.Duration `yaml:"stream_delay"`
	HomingFallback time.Duration `yaml:"homing_fallback"`
	StatusInterval time.Duration `yaml:"status_interval"`
	Settle         time.Duration `yaml:"settle"`

	// ForceFallback enables the homing fallback for real controllers.
	ForceFallback bool `yaml:"force_fallback"`

	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Baud:           115200,
		Feed:           1000,
		Power:          1000,
		SamplesPerUnit: 50,
		HomingFallback: 1500 * time.Millisecond,
		Settle:         100 * time.Millisecond,
		DataDir:        "./data",
		LogLevel:       "info",
	}
}

// Validate reports the first setting that is out of range.
func (c Config) Validate() error {
	switch {
	case c.Baud <= 0:
		return fmt.Errorf("baud must be positive, got %d", c.Baud)
	case c.Feed <= 0:
		return fmt.Errorf("feed must be positive, got %g", c.Feed)
	case c.Power < 0:
		return fmt.Errorf("power must not be negative, got %d", c.Power)
	case c.SamplesPerUnit <= 0:
		return fmt.Errorf("samples_per_unit must be positive, got %g", c.SamplesPerUnit)
	case c.StreamDelay < 0, c.HomingFallback < 0, c.StatusInterval < 0, c.Settle < 0:
		return errors.New("durations must not be negative")
	}
	return nil
}

// Decode reads YAML from r over the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Load reads the config file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Default(), err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return cfg, fmt.Errorf("config '%s': %w", path, err)
	}
	return cfg, nil
}
