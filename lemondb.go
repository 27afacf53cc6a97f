package lemondb

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrDatabaseAlreadyClosed = errors.New("database already closed")
var ErrStoreAlreadyExists = errors.New("object store already exists")

// DB is an embedded database made of named object stores.
type DB struct {
	path string
	cfg  *Config
	log  *slog.Logger
	p    *persistence

	// writeMu is held by the running read write transaction or schema change
	writeMu sync.Mutex

	mu     sync.RWMutex
	stores map[string]*storeState
	closed bool
}

type UserCallback func(tx *Tx) error

type Closer func() error

func NullCloser() error { return nil }

// Open loads the database at path or creates it. Use InMemory for a database without a file.
func Open(path string, cfgs ...*Config) (*DB, Closer, error) {
	var cfg *Config
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}

	prepared, err := cfg.prepare()
	if err != nil {
		return nil, NullCloser, err
	}

	db := &DB{
		path:   path,
		cfg:    prepared,
		log:    prepared.Logger.With(slog.String("db", path)),
		stores: make(map[string]*storeState),
	}

	if path != InMemory {
		db.p = newPersistence(path, prepared.NoSync)
		if db.p.exists() {
			stores, err := db.p.load()
			if err != nil {
				return nil, NullCloser, errors.Wrapf(err, "could not open %s", path)
			}
			db.stores = stores
		}
	}

	created := false
	for _, s := range prepared.Schema {
		if _, ok := db.stores[s.Name]; !ok {
			db.stores[s.Name] = newStoreState(s)
			created = true
		}
	}

	if db.p != nil && (created || !db.p.exists()) {
		if err := db.p.write(db.stores); err != nil {
			return nil, NullCloser, err
		}
	}

	return db, db.close, nil
}

func (db *DB) close() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	db.closed = true
	db.stores = nil
	return nil
}

// StoreNames returns the names of the existing stores in ascending order.
func (db *DB) StoreNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.stores))
	for name := range db.stores {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

func (db *DB) Schema(name string) (StoreSchema, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s, ok := db.stores[name]
	if !ok {
		return StoreSchema{}, false
	}

	return s.schema, true
}

// CreateStore adds an empty store. It waits for the running read write transaction.
func (db *DB) CreateStore(schema StoreSchema) error {
	if err := schema.validate(); err != nil {
		return err
	}

	return db.changeSchema(func(stores map[string]*storeState) error {
		if _, ok := stores[schema.Name]; ok {
			return errors.Wrapf(ErrStoreAlreadyExists, "%s", schema.Name)
		}

		stores[schema.Name] = newStoreState(schema)
		return nil
	})
}

// DeleteStore drops the store with all its records.
func (db *DB) DeleteStore(name string) error {
	return db.changeSchema(func(stores map[string]*storeState) error {
		if _, ok := stores[name]; !ok {
			return errors.Wrapf(ErrStoreNotFound, "%s", name)
		}

		delete(stores, name)
		return nil
	})
}

func (db *DB) changeSchema(change func(stores map[string]*storeState) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	next := make(map[string]*storeState, len(db.stores)+1)
	for name, s := range db.stores {
		next[name] = s
	}

	if err := change(next); err != nil {
		return err
	}

	if db.p != nil {
		if err := db.p.write(next); err != nil {
			return err
		}
	}

	db.stores = next
	return nil
}

// Begin starts a transaction over the given stores.
// A read write transaction blocks until the previous one has finished.
func (db *DB) Begin(ctx context.Context, storeNames []string, mode Mode) (*Tx, error) {
	if len(storeNames) == 0 {
		return nil, ErrInvalidAccess
	}

	if mode == ReadWrite {
		db.writeMu.Lock()
	}

	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		if mode == ReadWrite {
			db.writeMu.Unlock()
		}
		return nil, ErrDatabaseAlreadyClosed
	}

	scope := make([]string, 0, len(storeNames))
	stores := make(map[string]*storeState, len(storeNames))
	for _, name := range storeNames {
		s, ok := db.stores[name]
		if !ok {
			db.mu.RUnlock()
			if mode == ReadWrite {
				db.writeMu.Unlock()
			}
			return nil, errors.Wrapf(ErrStoreNotFound, "%s", name)
		}

		if _, dup := stores[name]; dup {
			continue
		}

		scope = append(scope, name)
		stores[name] = s.copy()
	}
	db.mu.RUnlock()

	tx := newTx(db, mode, scope, stores)
	tx.log.Debug("transaction started", slog.Any("stores", scope))
	tx.watch(ctx)

	return tx, nil
}

// commit persists and publishes the working copies of a read write transaction.
// The caller holds writeMu.
func (db *DB) commit(changed map[string]*storeState) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	next := make(map[string]*storeState, len(db.stores))
	for name, s := range db.stores {
		next[name] = s
	}

	for name, s := range changed {
		next[name] = s
	}

	if db.p != nil {
		if err := db.p.write(next); err != nil {
			return err
		}
	}

	db.stores = next
	return nil
}

// View runs cb inside a read only transaction over the given stores,
// or over all of them when none are given.
func (db *DB) View(ctx context.Context, cb UserCallback, storeNames ...string) error {
	return db.run(ctx, ReadOnly, cb, storeNames)
}

// Update runs cb inside a read write transaction and commits it when cb succeeds.
func (db *DB) Update(ctx context.Context, cb UserCallback, storeNames ...string) error {
	return db.run(ctx, ReadWrite, cb, storeNames)
}

func (db *DB) run(ctx context.Context, mode Mode, cb UserCallback, storeNames []string) error {
	if len(storeNames) == 0 {
		storeNames = db.StoreNames()
	}

	tx, err := db.Begin(ctx, storeNames, mode)
	if err != nil {
		return err
	}

	if err := cb(tx); err != nil {
		tx.Abort(err)
		return errors.Wrapf(err, "db %s failed. rolled back", mode)
	}

	return tx.Commit()
}
