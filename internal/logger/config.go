package logger

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the logger configuration, loadable from a YAML file.
type Config struct {
	// DefaultLevel is used for loggers whose name has no entry in Levels.
	DefaultLevel string `yaml:"defaultLevel"`
	// ConsoleFormat renders human readable output instead of JSON.
	ConsoleFormat bool `yaml:"consoleFormat"`
	// OutputPath is "stdout", "stderr" or a file path. Empty means stderr.
	OutputPath string `yaml:"outputPath"`
	// Levels overrides the level per logger name.
	Levels map[string]string `yaml:"levels"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logger configuration file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse logger configuration: %w", err)
	}
	return cfg, nil
}

// Build creates a logger with the given name according to the configuration.
func (c *Config) Build(name string) (*ZeroLogger, error) {
	w, err := c.writer()
	if err != nil {
		return nil, err
	}
	level := c.DefaultLevel
	if l, ok := c.Levels[name]; ok {
		level = l
	}
	return New(name, LevelFromString(level), w, c.ConsoleFormat), nil
}

func (c *Config) writer() (io.Writer, error) {
	switch c.OutputPath {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		f, err := os.OpenFile(c.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // -rw-------
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return f, nil
	}
}
