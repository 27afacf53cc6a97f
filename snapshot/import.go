package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
)

// Import inserts every record of data into the store of the same name.
//
// Document keys naming stores the database does not have are skipped silently,
// stores the document does not mention are left untouched and existing records
// are never overwritten. The first record that cannot be inserted aborts the
// transaction, so either the whole document is imported or nothing is.
func (s *Snapshotter) Import(ctx context.Context, db Database, data []byte) error {
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}

	names := db.StoreNames()
	if len(names) == 0 {
		return nil
	}

	live := make(map[string]struct{}, len(names))
	for _, name := range names {
		live[name] = struct{}{}
	}

	doc.Retain(func(name string) bool {
		_, ok := live[name]
		return ok
	})

	if doc.Len() == 0 {
		return nil
	}

	pending := doc.Names()
	sequences := make([][]json.RawMessage, len(pending))
	for i, name := range pending {
		if sequences[i], err = doc.Records(name); err != nil {
			return err
		}
	}

	tx, err := db.Begin(ctx, names, ReadWrite)
	if err != nil {
		return errors.Wrap(err, "could not begin import transaction")
	}

	units := make([]unit, len(pending))
	for i, name := range pending {
		records := sequences[i]
		units[i] = unit{store: name, run: func(ctx context.Context) error {
			return s.loadStore(ctx, tx, name, records)
		}}
	}

	if err := s.finish(ctx, tx, units); err != nil {
		return errors.Wrap(err, "import failed")
	}

	s.log.Debug("database imported", slog.Int("stores", len(pending)))
	return nil
}

// loadStore fires one add per record without waiting for the previous ones,
// then counts completions until it reaches the length of the sequence
func (s *Snapshotter) loadStore(ctx context.Context, tx Transaction, name string, records []json.RawMessage) error {
	if len(records) == 0 {
		return nil
	}

	store, err := tx.Store(name)
	if err != nil {
		return err
	}

	requests := make([]Request, 0, len(records))
	for i, raw := range records {
		var plain any
		if err := json.Unmarshal(raw, &plain); err != nil {
			return &RecordError{Store: name, Index: i, Err: errors.Wrap(ErrMalformedDocument, err.Error())}
		}

		value, err := s.serializer.Decode(plain)
		if err != nil {
			return &RecordError{Store: name, Index: i, Err: err}
		}

		requests = append(requests, store.Add(ctx, value))
	}

	inserted := 0
	for i, req := range requests {
		if err := awaitRequest(ctx, tx, req); err != nil {
			s.log.Error("record could not be imported",
				slog.String("store", name),
				slog.Int("index", i),
				slog.String("err", err.Error()),
			)
			return &RecordError{Store: name, Index: i, Err: err}
		}
		inserted++
	}

	if inserted != len(records) {
		return errors.Wrapf(ErrIncomplete, "%d of %d records", inserted, len(records))
	}

	return nil
}

// awaitRequest prefers the outcome of req over the transaction finishing,
// since a failed request is usually what aborted the transaction
func awaitRequest(ctx context.Context, tx Transaction, req Request) error {
	select {
	case <-req.Done():
		return req.Err()
	default:
	}

	select {
	case <-req.Done():
		return req.Err()
	case <-tx.Done():
		select {
		case <-req.Done():
			return req.Err()
		default:
		}

		if err := tx.Err(); err != nil {
			return err
		}
		return ErrTransactionFinished
	case <-ctx.Done():
		return ctx.Err()
	}
}
