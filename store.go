package lemondb

import (
	"math"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"
)

var ErrConstraint = errors.New("constraint violated")
var ErrData = errors.New("invalid data")

// keys above 2^53 cannot be generated without losing precision
const maxGeneratedKey float64 = 1 << 53

type record struct {
	key   Key
	value []byte
}

func byKeys(a, b *record) bool {
	return a.key.Less(b.key)
}

// storeState is the content of one object store: its schema,
// the key generator and the records ordered by key
type storeState struct {
	schema  StoreSchema
	current float64
	records *btree.BTreeG[*record]
}

func newStoreState(schema StoreSchema) *storeState {
	return &storeState{
		schema:  schema,
		records: btree.NewBTreeG[*record](byKeys),
	}
}

// copy is O(1), the trees share nodes until one of them is written
func (s *storeState) copy() *storeState {
	return &storeState{
		schema:  s.schema,
		current: s.current,
		records: s.records.Copy(),
	}
}

func (s *storeState) put(value interface{}, overwrite bool) (Key, error) {
	plain, err := cloneValue(value)
	if err != nil {
		return Key{}, err
	}

	var key Key
	if s.schema.inline() {
		k, ok, err := s.schema.extractKey(plain)
		if err != nil {
			return Key{}, err
		}

		if !ok {
			if !s.schema.AutoIncrement {
				return Key{}, errors.Wrapf(ErrData, "value has no key at %v", s.schema.KeyPath)
			}

			if k, err = s.nextKey(); err != nil {
				return Key{}, err
			}

			if err := injectKey(plain, s.schema.KeyPath[0], k); err != nil {
				return Key{}, err
			}
		}

		key = k
	} else {
		if key, err = s.nextKey(); err != nil {
			return Key{}, err
		}
	}

	raw, err := encodeValue(plain)
	if err != nil {
		return Key{}, err
	}

	rec := &record{key: key, value: raw}
	if !overwrite {
		if _, exists := s.records.Get(rec); exists {
			return Key{}, errors.Wrapf(ErrConstraint, "key %s already exists in store %s", key.String(), s.schema.Name)
		}
	}

	s.records.Set(rec)

	if s.schema.AutoIncrement && key.IsNumber() && key.Number() > s.current {
		s.current = math.Min(math.Floor(key.Number()), maxGeneratedKey)
	}

	return key, nil
}

func (s *storeState) nextKey() (Key, error) {
	if s.current >= maxGeneratedKey {
		return Key{}, errors.Wrapf(ErrConstraint, "key generator of store %s is exhausted", s.schema.Name)
	}

	return NumberKey(s.current + 1), nil
}

func (s *storeState) get(k Key) (*record, bool) {
	return s.records.Get(&record{key: k})
}

func (s *storeState) delete(k Key) bool {
	_, deleted := s.records.Delete(&record{key: k})
	return deleted
}

// clear drops every record, the key generator keeps its position
func (s *storeState) clear() {
	s.records = btree.NewBTreeG[*record](byKeys)
}

func (s *storeState) count() int {
	return s.records.Len()
}

// after returns the first record with a key greater than k,
// or the very first record when k is zero
func (s *storeState) after(k Key) (*record, bool) {
	var found *record
	if k.IsZero() {
		s.records.Scan(func(r *record) bool {
			found = r
			return false
		})
	} else {
		s.records.Ascend(&record{key: k}, func(r *record) bool {
			if r.key.Equal(k) {
				return true
			}

			found = r
			return false
		})
	}

	return found, found != nil
}
