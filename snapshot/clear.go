package snapshot

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

// Clear empties every store inside one read write transaction.
// Store definitions are kept.
func (s *Snapshotter) Clear(ctx context.Context, db Database) error {
	names := db.StoreNames()
	if len(names) == 0 {
		return nil
	}

	tx, err := db.Begin(ctx, names, ReadWrite)
	if err != nil {
		return errors.Wrap(err, "could not begin clear transaction")
	}

	units := make([]unit, len(names))
	for i, name := range names {
		units[i] = unit{store: name, run: func(ctx context.Context) error {
			store, err := tx.Store(name)
			if err != nil {
				return err
			}

			return awaitRequest(ctx, tx, store.Clear(ctx))
		}}
	}

	if err := s.finish(ctx, tx, units); err != nil {
		return errors.Wrap(err, "clear failed")
	}

	s.log.Debug("database cleared", slog.Int("stores", len(names)))
	return nil
}
