package lemondb

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrTxIsReadOnly = errors.New("transaction is read only")
var ErrTransactionInactive = errors.New("transaction is not active")
var ErrTransactionAborted = errors.New("transaction aborted")
var ErrInvalidAccess = errors.New("transaction needs at least one store")

type Mode uint8

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}

	return "readonly"
}

type txState uint8

const (
	txActive txState = iota
	txCommitted
	txAborted
)

// Tx is a unit of work over a fixed set of object stores.
//
// Read only transactions see the snapshot taken when they began.
// Read write transactions are exclusive and become visible atomically on Commit.
// Operations of one transaction never run in parallel, even when
// issued from different goroutines.
type Tx struct {
	id     string
	db     *DB
	mode   Mode
	scope  []string
	stores map[string]*storeState
	log    *slog.Logger

	mu    sync.Mutex
	state txState
	err   error
	done  chan struct{}
}

func newTx(db *DB, mode Mode, scope []string, stores map[string]*storeState) *Tx {
	id := uuid.NewString()
	return &Tx{
		id:     id,
		db:     db,
		mode:   mode,
		scope:  scope,
		stores: stores,
		done:   make(chan struct{}),
		log:    db.log.With(slog.String("tx", id), slog.String("mode", mode.String())),
	}
}

// watch aborts the transaction when ctx is done before the transaction finishes
func (x *Tx) watch(ctx context.Context) {
	if ctx.Done() == nil {
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			x.Abort(ctx.Err())
		case <-x.done:
		}
	}()
}

func (x *Tx) ID() string {
	return x.id
}

func (x *Tx) Mode() Mode {
	return x.mode
}

// StoreNames returns the scope of the transaction.
func (x *Tx) StoreNames() []string {
	names := make([]string, len(x.scope))
	copy(names, x.scope)
	return names
}

// Done is closed when the transaction commits or aborts.
func (x *Tx) Done() <-chan struct{} {
	return x.done
}

// Err returns the reason of the abort, nil while the transaction is active or after commit.
func (x *Tx) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}

// ObjectStore returns a handle on a store of the scope. It fails with
// ErrTransactionInactive once the transaction has committed or aborted.
func (x *Tx) ObjectStore(name string) (*ObjectStore, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.state != txActive {
		if x.err != nil {
			return nil, errors.Wrapf(ErrTransactionInactive, "transaction %s: %v", x.id, x.err)
		}
		return nil, errors.Wrapf(ErrTransactionInactive, "transaction %s", x.id)
	}

	if _, ok := x.stores[name]; !ok {
		return nil, errors.Wrapf(ErrStoreNotFound, "store %s is not in the scope of transaction %s", name, x.id)
	}

	return &ObjectStore{tx: x, name: name}, nil
}

func (x *Tx) Commit() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.state != txActive {
		if x.err != nil {
			return x.err
		}
		return ErrTransactionInactive
	}

	if x.mode == ReadWrite {
		if err := x.db.commit(x.stores); err != nil {
			x.finishUnderLock(txAborted, errors.Wrapf(err, "transaction %s commit failed", x.id))
			return x.err
		}
	}

	x.finishUnderLock(txCommitted, nil)
	x.log.Debug("transaction committed")
	return nil
}

// Abort discards all the changes. Aborting a finished transaction is a no-op.
func (x *Tx) Abort(cause error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.abortUnderLock(cause)
}

func (x *Tx) abortUnderLock(cause error) {
	if x.state != txActive {
		return
	}

	if cause == nil {
		cause = ErrTransactionAborted
	}

	x.finishUnderLock(txAborted, errors.Wrapf(cause, "transaction %s aborted", x.id))
	x.log.Debug("transaction aborted", slog.String("reason", cause.Error()))
}

func (x *Tx) finishUnderLock(state txState, err error) {
	x.state = state
	x.err = err
	x.stores = nil
	close(x.done)

	if x.mode == ReadWrite {
		x.db.writeMu.Unlock()
	}
}

// exec runs op against the state of one store under the transaction lock.
// Data errors abort the transaction, usage errors only fail the request.
func (x *Tx) exec(name string, write bool, op func(s *storeState) (Key, interface{}, error)) *Request {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.state != txActive {
		return failedRequest(errors.Wrapf(ErrTransactionInactive, "transaction %s", x.id))
	}

	if write && x.mode != ReadWrite {
		return failedRequest(errors.Wrapf(ErrTxIsReadOnly, "transaction %s", x.id))
	}

	s, ok := x.stores[name]
	if !ok {
		return failedRequest(errors.Wrapf(ErrStoreNotFound, "store %s", name))
	}

	k, result, err := op(s)
	if err != nil && isDataError(err) {
		x.log.Debug("request failed", slog.String("store", name), slog.String("err", err.Error()))
		x.abortUnderLock(err)
	}

	r := newRequest()
	r.resolve(k, result, err)
	return r
}

func isDataError(err error) bool {
	return errors.Is(err, ErrConstraint) || errors.Is(err, ErrData) || errors.Is(err, ErrDataClone)
}
