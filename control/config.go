// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Server configuration loaded from an optional YAML file.

package control

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/momentics/busyhttp/api"
)

// FatalPolicy selects what happens when a connection hits an unexpected I/O error.
type FatalPolicy string

const (
	// FatalDrop removes only the offending connection.
	FatalDrop FatalPolicy = "drop"
	// FatalAbort stops the event loop with the error.
	FatalAbort FatalPolicy = "abort"
)

// Defaults.
const (
	DefaultAddr        = "localhost:3000"
	DefaultBufferSize  = 1024
	DefaultHistorySize = 64
)

// Config holds all tunables of the server.
type Config struct {
	Addr          string      `yaml:"addr"`
	BufferSize    int         `yaml:"buffer_size"`
	FatalPolicy   FatalPolicy `yaml:"fatal_policy"`
	LogLevel      string      `yaml:"log_level"`
	LogFormat     string      `yaml:"log_format"`
	StatsInterval uint64      `yaml:"stats_interval"` // ticks between stats log lines, 0 disables
	HistorySize   int         `yaml:"history_size"`
	CPU           int         `yaml:"cpu"` // pin the loop thread, -1 leaves it unpinned
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Addr:        DefaultAddr,
		BufferSize:  DefaultBufferSize,
		FatalPolicy: FatalDrop,
		LogLevel:    "info",
		LogFormat:   "text",
		HistorySize: DefaultHistorySize,
		CPU:         -1,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. An empty path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is empty: %w", api.ErrInvalidArgument)
	}
	if c.BufferSize < 4 {
		return fmt.Errorf("buffer_size %d is below the 4-byte delimiter: %w", c.BufferSize, api.ErrInvalidArgument)
	}
	switch c.FatalPolicy {
	case FatalDrop, FatalAbort:
	default:
		return fmt.Errorf("fatal_policy %q: %w", c.FatalPolicy, api.ErrInvalidArgument)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, api.ErrInvalidArgument)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q: %w", c.LogFormat, api.ErrInvalidArgument)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size %d: %w", c.HistorySize, api.ErrInvalidArgument)
	}
	if c.CPU < -1 {
		return fmt.Errorf("cpu %d: %w", c.CPU, api.ErrInvalidArgument)
	}
	return nil
}

// NewLogger builds a logrus logger from the log_* settings.
func (c Config) NewLogger() (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log_level %q: %w", c.LogLevel, api.ErrInvalidArgument)
	}
	log := logrus.New()
	log.SetLevel(lvl)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
