// Package config loads the command line configuration from the environment
// and store schemas from YAML files.
package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

var ErrInvalidLogLevel = errors.New("invalid log level")

type Config struct {
	// Path of the database file, lemondb.InMemory keeps no file.
	Path     string `env:"LEMONDB_PATH" envDefault:"lemon.ldb"`
	LogLevel string `env:"LEMONDB_LOG_LEVEL" envDefault:"info"`
	// Pretty indents exported documents.
	Pretty bool `env:"LEMONDB_PRETTY"`
	// Typed selects the type preserving serializer.
	Typed bool `env:"LEMONDB_TYPED"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return errors.Wrap(err, "parse env")
	}
	return nil
}

func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ParseLevel accepts the slog level names in any case: debug, info, warn, error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, errors.Wrapf(ErrInvalidLogLevel, "%q", s)
	}

	return level, nil
}

// Logger builds a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
