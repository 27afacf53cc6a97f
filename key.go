package lemondb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidKey = errors.New("invalid key")

type keyKind uint8

// key kinds are declared in their sort order
const (
	invalidKey keyKind = iota
	numberKey
	dateKey
	stringKey
	binaryKey
	arrayKey
)

// Key is a primary key of a record inside an object store.
// Keys of different kinds compare as number < date < string < binary < array.
type Key struct {
	kind keyKind
	num  float64
	date time.Time
	str  string
	bin  []byte
	arr  []Key
}

func NumberKey(n float64) Key {
	return Key{kind: numberKey, num: n}
}

func StringKey(s string) Key {
	return Key{kind: stringKey, str: s}
}

// KeyOf converts a plain value into a key.
func KeyOf(v interface{}) (Key, error) {
	switch typedValue := v.(type) {
	case Key:
		if typedValue.kind == invalidKey {
			return Key{}, ErrInvalidKey
		}
		return typedValue, nil
	case float64:
		return numberKeyOf(typedValue)
	case float32:
		return numberKeyOf(float64(typedValue))
	case int:
		return NumberKey(float64(typedValue)), nil
	case int8:
		return NumberKey(float64(typedValue)), nil
	case int16:
		return NumberKey(float64(typedValue)), nil
	case int32:
		return NumberKey(float64(typedValue)), nil
	case int64:
		return NumberKey(float64(typedValue)), nil
	case uint:
		return NumberKey(float64(typedValue)), nil
	case uint8:
		return NumberKey(float64(typedValue)), nil
	case uint16:
		return NumberKey(float64(typedValue)), nil
	case uint32:
		return NumberKey(float64(typedValue)), nil
	case uint64:
		return NumberKey(float64(typedValue)), nil
	case json.Number:
		f, err := typedValue.Float64()
		if err != nil {
			return Key{}, errors.Wrapf(ErrInvalidKey, "number %s", typedValue.String())
		}
		return numberKeyOf(f)
	case string:
		return StringKey(typedValue), nil
	case time.Time:
		return Key{kind: dateKey, date: typedValue}, nil
	case []byte:
		cp := make([]byte, len(typedValue))
		copy(cp, typedValue)
		return Key{kind: binaryKey, bin: cp}, nil
	case []interface{}:
		arr := make([]Key, len(typedValue))
		for i := range typedValue {
			k, err := KeyOf(typedValue[i])
			if err != nil {
				return Key{}, errors.Wrapf(err, "array key element %d", i)
			}
			arr[i] = k
		}
		return Key{kind: arrayKey, arr: arr}, nil
	}

	return Key{}, errors.Wrapf(ErrInvalidKey, "type %T cannot be used as a key", v)
}

func numberKeyOf(f float64) (Key, error) {
	if math.IsNaN(f) {
		return Key{}, errors.Wrap(ErrInvalidKey, "NaN is not a valid key")
	}

	return NumberKey(f), nil
}

func (k Key) IsZero() bool {
	return k.kind == invalidKey
}

func (k Key) IsNumber() bool {
	return k.kind == numberKey
}

func (k Key) Number() float64 {
	return k.num
}

// Value returns the plain representation of the key,
// the one that gets injected into records and persisted.
func (k Key) Value() interface{} {
	switch k.kind {
	case numberKey:
		return k.num
	case dateKey:
		return k.date
	case stringKey:
		return k.str
	case binaryKey:
		return k.bin
	case arrayKey:
		vs := make([]interface{}, len(k.arr))
		for i := range k.arr {
			vs[i] = k.arr[i].Value()
		}
		return vs
	}

	return nil
}

func (k Key) String() string {
	switch k.kind {
	case numberKey:
		return strconv.FormatFloat(k.num, 'f', -1, 64)
	case dateKey:
		return k.date.Format(time.RFC3339Nano)
	case stringKey:
		return strconv.Quote(k.str)
	case binaryKey:
		return fmt.Sprintf("0x%x", k.bin)
	case arrayKey:
		parts := make([]string, len(k.arr))
		for i := range k.arr {
			parts[i] = k.arr[i].String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}

	return "<invalid>"
}

func (k Key) Compare(other Key) int {
	if k.kind != other.kind {
		if k.kind < other.kind {
			return -1
		}
		return 1
	}

	switch k.kind {
	case numberKey:
		switch {
		case k.num < other.num:
			return -1
		case k.num > other.num:
			return 1
		}
		return 0
	case dateKey:
		return k.date.Compare(other.date)
	case stringKey:
		return strings.Compare(k.str, other.str)
	case binaryKey:
		return bytes.Compare(k.bin, other.bin)
	case arrayKey:
		l := smallestLen(k.arr, other.arr)
		for i := 0; i < l; i++ {
			if c := k.arr[i].Compare(other.arr[i]); c != 0 {
				return c
			}
		}

		switch {
		case len(k.arr) < len(other.arr):
			return -1
		case len(k.arr) > len(other.arr):
			return 1
		}
	}

	return 0
}

func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

func (k Key) Equal(other Key) bool {
	return k.Compare(other) == 0
}

func smallestLen(a, b []Key) int {
	if len(a) > len(b) {
		return len(b)
	}

	return len(a)
}
