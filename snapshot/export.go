package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
)

// Export reads every record of every store inside one read only transaction
// and returns them as a JSON document. A database without stores exports as {}.
// Stores appear in the order the database lists them, records in cursor order.
func (s *Snapshotter) Export(ctx context.Context, db Database) ([]byte, error) {
	names := db.StoreNames()
	doc := NewDocument()
	if len(names) == 0 {
		return doc.MarshalJSON()
	}

	tx, err := db.Begin(ctx, names, ReadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "could not begin export transaction")
	}

	dumped := make([][]json.RawMessage, len(names))
	units := make([]unit, len(names))
	for i, name := range names {
		units[i] = unit{store: name, run: func(ctx context.Context) error {
			records, err := s.dumpStore(ctx, tx, name)
			if err != nil {
				return err
			}

			dumped[i] = records
			return nil
		}}
	}

	if err := s.finish(ctx, tx, units); err != nil {
		return nil, errors.Wrap(err, "export failed")
	}

	total := 0
	for i, name := range names {
		doc.Set(name, dumped[i])
		total += len(dumped[i])
	}

	s.log.Debug("database exported", slog.Int("stores", len(names)), slog.Int("records", total))
	return doc.MarshalJSON()
}

func (s *Snapshotter) dumpStore(ctx context.Context, tx Transaction, name string) ([]json.RawMessage, error) {
	store, err := tx.Store(name)
	if err != nil {
		return nil, err
	}

	cursor, err := store.OpenCursor(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not open cursor")
	}

	records := make([]json.RawMessage, 0)
	for {
		value, ok, err := cursor.Next(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "cursor failed after %d records", len(records))
		}

		if !ok {
			return records, nil
		}

		plain, err := s.serializer.Encode(value)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", len(records))
		}

		b, err := json.Marshal(plain)
		if err != nil {
			return nil, errors.Wrapf(ErrSerialization, "record %d: %v", len(records), err)
		}

		records = append(records, b)
	}
}
