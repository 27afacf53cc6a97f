package snapshot

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var errQuota = errors.New("quota exceeded")
var errFakeInactive = errors.New("fake transaction inactive")

// fakeDB is an engine whose requests may complete asynchronously and out of order.
type fakeDB struct {
	mu       sync.Mutex
	records  map[string][]any
	begins   int
	commits  int
	async    bool
	rejectTx error

	// addErr fails an add without aborting the transaction
	addErr func(store string, value any) error
	// abortOnStep aborts the transaction with errQuota on the n-th cursor step
	abortOnStep int
}

func newFakeDB(stores ...string) *fakeDB {
	db := &fakeDB{records: make(map[string][]any)}
	for _, s := range stores {
		db.records[s] = nil
	}
	return db
}

func (db *fakeDB) seed(store string, values ...any) *fakeDB {
	db.records[store] = append(db.records[store], values...)
	return db
}

func (db *fakeDB) snapshot(store string) []any {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]any, len(db.records[store]))
	copy(out, db.records[store])
	return out
}

func (db *fakeDB) beginCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.begins
}

func (db *fakeDB) StoreNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.records))
	for name := range db.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (db *fakeDB) Begin(_ context.Context, stores []string, mode Mode) (Transaction, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.begins++
	if len(stores) == 0 {
		return nil, errors.New("empty scope")
	}

	if db.rejectTx != nil {
		return nil, db.rejectTx
	}

	working := make(map[string][]any, len(stores))
	for _, s := range stores {
		current, ok := db.records[s]
		if !ok {
			return nil, errors.Errorf("no store %s", s)
		}
		cp := make([]any, len(current))
		copy(cp, current)
		working[s] = cp
	}

	return &fakeTx{db: db, mode: mode, records: working, done: make(chan struct{})}, nil
}

type fakeTx struct {
	db      *fakeDB
	mode    Mode
	mu      sync.Mutex
	records map[string][]any
	done    chan struct{}
	err     error
	over    bool
	steps   int
}

func (tx *fakeTx) Store(name string) (Store, error) {
	if _, ok := tx.records[name]; !ok {
		return nil, errors.Errorf("store %s not in scope", name)
	}
	return &fakeStore{tx: tx, name: name}, nil
}

func (tx *fakeTx) Done() <-chan struct{} { return tx.done }

func (tx *fakeTx) Err() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.err
}

func (tx *fakeTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.over {
		if tx.err != nil {
			return tx.err
		}
		return errFakeInactive
	}

	if tx.mode == ReadWrite {
		tx.db.mu.Lock()
		for name, values := range tx.records {
			tx.db.records[name] = values
		}
		tx.db.commits++
		tx.db.mu.Unlock()
	}

	tx.over = true
	close(tx.done)
	return nil
}

func (tx *fakeTx) Abort(cause error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.abortUnderLock(cause)
}

func (tx *fakeTx) abortUnderLock(cause error) {
	if tx.over {
		return
	}
	tx.over = true
	tx.err = errors.Wrap(cause, "fake transaction aborted")
	close(tx.done)
}

type fakeStore struct {
	tx   *fakeTx
	name string
}

type fakeRequest struct {
	done chan struct{}
	err  error
}

func (r *fakeRequest) Done() <-chan struct{} { return r.done }

func (r *fakeRequest) Err() error {
	<-r.done
	return r.err
}

func (s *fakeStore) resolveLater(apply func() error) Request {
	req := &fakeRequest{done: make(chan struct{})}
	run := func() {
		req.err = apply()
		close(req.done)
	}

	if s.tx.db.async {
		go func() {
			time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
			run()
		}()
	} else {
		run()
	}

	return req
}

func (s *fakeStore) Add(_ context.Context, value any) Request {
	return s.resolveLater(func() error {
		s.tx.mu.Lock()
		defer s.tx.mu.Unlock()

		if s.tx.over {
			return errFakeInactive
		}

		if s.tx.mode != ReadWrite {
			return errors.New("read only")
		}

		if s.tx.db.addErr != nil {
			if err := s.tx.db.addErr(s.name, value); err != nil {
				return err
			}
		}

		s.tx.records[s.name] = append(s.tx.records[s.name], value)
		return nil
	})
}

func (s *fakeStore) Clear(context.Context) Request {
	return s.resolveLater(func() error {
		s.tx.mu.Lock()
		defer s.tx.mu.Unlock()

		if s.tx.over {
			return errFakeInactive
		}

		s.tx.records[s.name] = nil
		return nil
	})
}

func (s *fakeStore) OpenCursor(context.Context) (Cursor, error) {
	return &fakeCursor{store: s}, nil
}

type fakeCursor struct {
	store *fakeStore
	pos   int
}

func (c *fakeCursor) Next(context.Context) (any, bool, error) {
	if c.store.tx.db.async {
		time.Sleep(time.Duration(rand.Intn(100)) * time.Microsecond)
	}

	tx := c.store.tx
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.over {
		return nil, false, errFakeInactive
	}

	tx.steps++
	if tx.db.abortOnStep > 0 && tx.steps == tx.db.abortOnStep {
		tx.abortUnderLock(errQuota)
		return nil, false, errFakeInactive
	}

	values := tx.records[c.store.name]
	if c.pos >= len(values) {
		return nil, false, nil
	}

	v := values[c.pos]
	c.pos++
	return v, true, nil
}
