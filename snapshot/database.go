package snapshot

import "context"

type Mode uint8

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Database is the storage engine seen by the snapshot operations.
type Database interface {
	// StoreNames is the live set of store names.
	StoreNames() []string
	// Begin opens one transaction over stores. Engines may reject an empty scope.
	Begin(ctx context.Context, stores []string, mode Mode) (Transaction, error)
}

// Transaction is owned by the operation that opened it.
type Transaction interface {
	Store(name string) (Store, error)
	// Done is closed once the transaction has committed or aborted.
	Done() <-chan struct{}
	// Err is the abort reason.
	Err() error
	Commit() error
	Abort(cause error)
}

type Store interface {
	OpenCursor(ctx context.Context) (Cursor, error)
	// Add must fail when the key of value already exists.
	Add(ctx context.Context, value any) Request
	Clear(ctx context.Context) Request
}

// Cursor walks records in the engine native key order.
type Cursor interface {
	// Next returns the next value, ok is false once the cursor is exhausted.
	Next(ctx context.Context) (value any, ok bool, err error)
}

// Request is a pending write.
type Request interface {
	Done() <-chan struct{}
	Err() error
}
