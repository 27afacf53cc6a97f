package snapshot

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var ErrTransactionFinished = errors.New("transaction finished before all stores completed")
var ErrIncomplete = errors.New("not every store completed")

// unit is the share of work of one store inside a transaction
type unit struct {
	store string
	run   func(ctx context.Context) error
}

// join waits for a fixed set of units that all run against the same transaction.
// It resolves once every unit has completed, or on the first failure:
// a unit error, the transaction finishing early, or ctx being done.
// No unit is still running when wait returns.
type join struct {
	tx        Transaction
	units     []unit
	completed atomic.Int64

	mu   sync.Mutex
	errs []error
}

func newJoin(tx Transaction, units []unit) *join {
	return &join{tx: tx, units: units}
}

// completedUnits is the number of units that finished successfully so far.
func (j *join) completedUnits() int {
	return int(j.completed.Load())
}

func (j *join) totalUnits() int {
	return len(j.units)
}

func (j *join) wait(ctx context.Context) error {
	unitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(unitCtx)
	for _, u := range j.units {
		g.Go(func() error {
			if err := u.run(gctx); err != nil {
				err = errors.Wrapf(err, "store %s", u.store)
				j.mu.Lock()
				j.errs = append(j.errs, err)
				j.mu.Unlock()
				return err
			}

			j.completed.Add(1)
			return nil
		})
	}

	finished := make(chan error, 1)
	go func() {
		finished <- g.Wait()
	}()

	select {
	case err := <-finished:
		if err != nil {
			return j.cause()
		}

		if j.completedUnits() != j.totalUnits() {
			return errors.Wrapf(ErrIncomplete, "%d of %d", j.completedUnits(), j.totalUnits())
		}

		return nil
	case <-j.tx.Done():
		cancel()
		<-finished

		if j.tx.Err() != nil {
			return j.cause()
		}

		return ErrTransactionFinished
	case <-ctx.Done():
		err := errors.Wrap(ctx.Err(), "snapshot interrupted")
		j.tx.Abort(err)
		cancel()
		<-finished

		return err
	}
}

// cause picks the error to report once all units have returned.
// A record error that made the transaction abort wins over the errors
// the other units saw because of that abort.
func (j *join) cause() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	txErr := j.tx.Err()
	if txErr != nil {
		for _, err := range j.errs {
			var recErr *RecordError
			if errors.As(err, &recErr) && recErr.Err != nil && errors.Is(txErr, recErr.Err) {
				return err
			}
		}

		return txErr
	}

	if len(j.errs) > 0 {
		return j.errs[0]
	}

	return nil
}
