package lemondb

import (
	"log/slog"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
)

const InMemory = ":memory:"

type Config struct {
	// Logger receives transaction lifecycle events at debug level.
	Logger *slog.Logger

	// NoSync skips fsync after every persisted commit.
	NoSync bool

	// Schema lists stores created on open when they do not exist yet.
	Schema []StoreSchema
}

// prepare returns a copy of cfg with defaults applied,
// so the caller may keep mutating its own value
func (cfg *Config) prepare() (*Config, error) {
	prepared := &Config{}
	if cfg == nil {
		cfg = &Config{}
	}

	prepared.Logger = cfg.Logger
	prepared.NoSync = cfg.NoSync

	if len(cfg.Schema) > 0 {
		if err := copier.CopyWithOption(&prepared.Schema, &cfg.Schema, copier.Option{DeepCopy: true}); err != nil {
			return nil, errors.Wrap(err, "could not copy schema")
		}
	}

	if prepared.Logger == nil {
		prepared.Logger = slog.New(slog.DiscardHandler)
	}

	for _, s := range prepared.Schema {
		if err := s.validate(); err != nil {
			return nil, err
		}
	}

	return prepared, nil
}
