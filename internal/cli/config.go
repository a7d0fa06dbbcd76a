package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment defaults of the CLI. Command-line flags
// override them.
type Config struct {
	Format   string `env:"ENTITYCTL_FORMAT"    envDefault:"yaml"`
	LogLevel string `env:"ENTITYCTL_LOG_LEVEL" envDefault:"warn"`
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// parseLevel maps a level name (debug, info, warn, error) to a slog.Level.
func parseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return l, nil
}
