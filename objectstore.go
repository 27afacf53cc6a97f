package lemondb

import (
	"context"

	"github.com/pkg/errors"
)

var ErrStoreNotFound = errors.New("object store not found")
var ErrKeyDoesNotExist = errors.New("key does not exist in store")

// ObjectStore is a handle to one store inside a transaction.
// Every operation returns a Request that is resolved once the operation has run.
type ObjectStore struct {
	tx   *Tx
	name string
}

func (s *ObjectStore) Name() string {
	return s.name
}

// Add inserts value and fails with ErrConstraint when its key is already taken.
func (s *ObjectStore) Add(value interface{}) *Request {
	return s.tx.exec(s.name, true, func(st *storeState) (Key, interface{}, error) {
		k, err := st.put(value, false)
		return k, nil, err
	})
}

// Put inserts value or replaces the record with the same key.
func (s *ObjectStore) Put(value interface{}) *Request {
	return s.tx.exec(s.name, true, func(st *storeState) (Key, interface{}, error) {
		k, err := st.put(value, true)
		return k, nil, err
	})
}

// Get resolves with the value stored under key, or ErrKeyDoesNotExist.
func (s *ObjectStore) Get(key interface{}) *Request {
	k, err := KeyOf(key)
	if err != nil {
		return failedRequest(err)
	}

	return s.tx.exec(s.name, false, func(st *storeState) (Key, interface{}, error) {
		rec, ok := st.get(k)
		if !ok {
			return k, nil, errors.Wrapf(ErrKeyDoesNotExist, "%s in %s", k.String(), s.name)
		}

		v, err := decodeValue(rec.value)
		return k, v, err
	})
}

func (s *ObjectStore) Delete(key interface{}) *Request {
	k, err := KeyOf(key)
	if err != nil {
		return failedRequest(err)
	}

	return s.tx.exec(s.name, true, func(st *storeState) (Key, interface{}, error) {
		return k, st.delete(k), nil
	})
}

// Count resolves with the number of records as an int.
func (s *ObjectStore) Count() *Request {
	return s.tx.exec(s.name, false, func(st *storeState) (Key, interface{}, error) {
		return Key{}, st.count(), nil
	})
}

// Clear removes every record of the store. The store itself stays.
func (s *ObjectStore) Clear() *Request {
	return s.tx.exec(s.name, true, func(st *storeState) (Key, interface{}, error) {
		st.clear()
		return Key{}, nil, nil
	})
}

func (s *ObjectStore) OpenCursor() *Cursor {
	return &Cursor{store: s}
}

// Cursor iterates records of a store in ascending key order.
// It positions itself after the last returned key, so writes made
// through the same transaction between two steps are tolerated.
type Cursor struct {
	store   *ObjectStore
	current Key
	value   interface{}
	err     error
	done    bool
}

func (c *Cursor) Next(ctx context.Context) bool {
	if c.done || c.err != nil {
		return false
	}

	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}

	x := c.store.tx
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.state != txActive {
		c.err = errors.Wrapf(ErrTransactionInactive, "transaction %s", x.id)
		return false
	}

	st, ok := x.stores[c.store.name]
	if !ok {
		c.err = errors.Wrapf(ErrStoreNotFound, "store %s", c.store.name)
		return false
	}

	rec, ok := st.after(c.current)
	if !ok {
		c.done = true
		c.value = nil
		return false
	}

	v, err := decodeValue(rec.value)
	if err != nil {
		c.err = err
		return false
	}

	c.current = rec.key
	c.value = v
	return true
}

func (c *Cursor) Key() Key {
	return c.current
}

func (c *Cursor) Value() interface{} {
	return c.value
}

func (c *Cursor) Err() error {
	return c.err
}
