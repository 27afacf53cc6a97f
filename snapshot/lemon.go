package snapshot

import (
	"context"

	"github.com/denismitr/lemondb"
)

// FromLemon exposes a lemondb database to the snapshot operations.
func FromLemon(db *lemondb.DB) Database {
	return lemonDatabase{db: db}
}

type lemonDatabase struct {
	db *lemondb.DB
}

func (d lemonDatabase) StoreNames() []string {
	return d.db.StoreNames()
}

func (d lemonDatabase) Begin(ctx context.Context, stores []string, mode Mode) (Transaction, error) {
	m := lemondb.ReadOnly
	if mode == ReadWrite {
		m = lemondb.ReadWrite
	}

	tx, err := d.db.Begin(ctx, stores, m)
	if err != nil {
		return nil, err
	}

	return lemonTx{tx: tx}, nil
}

type lemonTx struct {
	tx *lemondb.Tx
}

func (t lemonTx) Store(name string) (Store, error) {
	s, err := t.tx.ObjectStore(name)
	if err != nil {
		return nil, err
	}

	return lemonStore{s: s}, nil
}

func (t lemonTx) Done() <-chan struct{} { return t.tx.Done() }
func (t lemonTx) Err() error            { return t.tx.Err() }
func (t lemonTx) Commit() error         { return t.tx.Commit() }
func (t lemonTx) Abort(cause error)     { t.tx.Abort(cause) }

type lemonStore struct {
	s *lemondb.ObjectStore
}

func (s lemonStore) OpenCursor(context.Context) (Cursor, error) {
	return lemonCursor{c: s.s.OpenCursor()}, nil
}

func (s lemonStore) Add(_ context.Context, value any) Request {
	return s.s.Add(value)
}

func (s lemonStore) Clear(context.Context) Request {
	return s.s.Clear()
}

type lemonCursor struct {
	c *lemondb.Cursor
}

func (c lemonCursor) Next(ctx context.Context) (any, bool, error) {
	if c.c.Next(ctx) {
		return c.c.Value(), true, nil
	}

	return nil, false, c.c.Err()
}
