// Package snapshot dumps every object store of a database into one JSON document
// and replays such a document back into a database.
//
// Each operation opens exactly one transaction spanning all the stores it touches
// and resolves only when every store has completed, or on the first failure.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Snapshotter runs export, import and clear operations with its own serializer and logger.
type Snapshotter struct {
	serializer Serializer
	log        *slog.Logger
}

type Option func(s *Snapshotter)

func WithSerializer(serializer Serializer) Option {
	return func(s *Snapshotter) {
		if serializer != nil {
			s.serializer = serializer
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Snapshotter) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Snapshotter using the Identity serializer unless told otherwise.
func New(opts ...Option) *Snapshotter {
	s := &Snapshotter{
		serializer: Identity{},
		log:        slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RecordError reports the record that made an import fail.
type RecordError struct {
	Store string
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d of store %s: %v", e.Index, e.Store, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// ExportToJSON is Export with a one-off Snapshotter.
func ExportToJSON(ctx context.Context, db Database, serializer Serializer) ([]byte, error) {
	return New(WithSerializer(serializer)).Export(ctx, db)
}

// ImportFromJSON is Import with a one-off Snapshotter.
func ImportFromJSON(ctx context.Context, db Database, data []byte, serializer Serializer) error {
	return New(WithSerializer(serializer)).Import(ctx, db, data)
}

// ClearDatabase is Clear with a one-off Snapshotter.
func ClearDatabase(ctx context.Context, db Database) error {
	return New().Clear(ctx, db)
}

// finish waits for the units, then commits, or aborts on failure
func (s *Snapshotter) finish(ctx context.Context, tx Transaction, units []unit) error {
	j := newJoin(tx, units)
	if err := j.wait(ctx); err != nil {
		tx.Abort(err)
		return err
	}

	if err := ctx.Err(); err != nil {
		err = errors.Wrap(err, "snapshot interrupted")
		tx.Abort(err)
		return err
	}

	return tx.Commit()
}
