package snapshot

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrSerialization = errors.New("value could not be serialized")

// Serializer turns stored values into JSON safe plain values and back.
type Serializer interface {
	Encode(value any) (any, error)
	Decode(plain any) (any, error)
}

// Identity passes values through unchanged. It fits stores whose values
// are already JSON native.
type Identity struct{}

func (Identity) Encode(value any) (any, error) { return value, nil }
func (Identity) Decode(plain any) (any, error) { return plain, nil }

const (
	// TypesKey holds the type side-channel of a record encoded by Typed.
	TypesKey = "$types"
	wrapKey  = "$"
)

const (
	dateType   = "date"
	binaryType = "binary"
	numberType = "number"
)

// Typed preserves times, byte slices and non finite floats.
// Every converted value is listed under TypesKey as path -> type name,
// paths are dot separated with "~0" for "~", "~1" for "." and "~2" for an empty key.
// A value that is not an object is wrapped as {"$": value, "$types": {...}}.
// Top level keys of an object that start with "$" get one more "$" so they
// never collide with the wrapper or the side-channel.
type Typed struct{}

func (Typed) Encode(value any) (any, error) {
	types := make(map[string]any)
	plain := encodeTyped(value, "", types)

	if m, ok := plain.(map[string]any); ok {
		escaped := make(map[string]any, len(m)+1)
		for k, v := range m {
			if strings.HasPrefix(k, wrapKey) {
				k = wrapKey + k
			}
			escaped[k] = v
		}

		if len(types) > 0 {
			escaped[TypesKey] = types
		}
		return escaped, nil
	}

	if len(types) == 0 {
		return plain, nil
	}

	return map[string]any{wrapKey: plain, TypesKey: types}, nil
}

func encodeTyped(v any, path string, types map[string]any) any {
	switch typedValue := v.(type) {
	case time.Time:
		types[path] = dateType
		return typedValue.UTC().Format(time.RFC3339Nano)
	case []byte:
		types[path] = binaryType
		return base64.StdEncoding.EncodeToString(typedValue)
	case float64:
		if math.IsNaN(typedValue) || math.IsInf(typedValue, 0) {
			types[path] = numberType
			return strconv.FormatFloat(typedValue, 'g', -1, 64)
		}
		return typedValue
	case map[string]any:
		out := make(map[string]any, len(typedValue))
		for k, e := range typedValue {
			out[k] = encodeTyped(e, joinPath(path, k), types)
		}
		return out
	case []any:
		out := make([]any, len(typedValue))
		for i, e := range typedValue {
			out[i] = encodeTyped(e, joinPath(path, strconv.Itoa(i)), types)
		}
		return out
	}

	return v
}

func (Typed) Decode(plain any) (any, error) {
	m, ok := plain.(map[string]any)
	if !ok {
		return plain, nil
	}

	rawTypes, typed := m[TypesKey]

	var root any
	if inner, wrapped := m[wrapKey]; wrapped && typed && len(m) == 2 {
		root = inner
	} else {
		unescaped := make(map[string]any, len(m))
		for k, v := range m {
			switch {
			case k == TypesKey:
			case strings.HasPrefix(k, wrapKey+wrapKey):
				unescaped[k[len(wrapKey):]] = v
			default:
				unescaped[k] = v
			}
		}
		root = unescaped
	}

	if !typed {
		return root, nil
	}

	types, ok := rawTypes.(map[string]any)
	if !ok {
		return nil, errors.Wrapf(ErrSerialization, "%s must be an object, got %T", TypesKey, rawTypes)
	}

	for path, rawName := range types {
		name, ok := rawName.(string)
		if !ok {
			return nil, errors.Wrapf(ErrSerialization, "type of %q must be a string", path)
		}

		revived, err := reviveAt(root, splitPath(path), name)
		if err != nil {
			return nil, errors.Wrapf(err, "path %q", path)
		}
		root = revived
	}

	return root, nil
}

func reviveAt(v any, segments []string, name string) (any, error) {
	if len(segments) == 0 {
		return revive(v, name)
	}

	switch container := v.(type) {
	case map[string]any:
		child, ok := container[segments[0]]
		if !ok {
			return nil, errors.Wrapf(ErrSerialization, "missing field %q", segments[0])
		}

		revived, err := reviveAt(child, segments[1:], name)
		if err != nil {
			return nil, err
		}

		container[segments[0]] = revived
		return container, nil
	case []any:
		i, err := strconv.Atoi(segments[0])
		if err != nil || i < 0 || i >= len(container) {
			return nil, errors.Wrapf(ErrSerialization, "invalid index %q", segments[0])
		}

		revived, err := reviveAt(container[i], segments[1:], name)
		if err != nil {
			return nil, err
		}

		container[i] = revived
		return container, nil
	}

	return nil, errors.Wrapf(ErrSerialization, "cannot descend into %T", v)
}

func revive(v any, name string) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.Wrapf(ErrSerialization, "%s must be encoded as a string, got %T", name, v)
	}

	switch name {
	case dateType:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, errors.Wrapf(ErrSerialization, "invalid date %q", s)
		}
		return t, nil
	case binaryType:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Wrapf(ErrSerialization, "invalid base64 %q", s)
		}
		return b, nil
	case numberType:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrSerialization, "invalid number %q", s)
		}
		return f, nil
	}

	return nil, errors.Wrapf(ErrSerialization, "unknown type %q", name)
}

func joinPath(path, segment string) string {
	segment = strings.ReplaceAll(segment, "~", "~0")
	segment = strings.ReplaceAll(segment, ".", "~1")
	if segment == "" {
		segment = "~2"
	}

	if path == "" {
		return segment
	}

	return path + "." + segment
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}

	segments := strings.Split(path, ".")
	for i, s := range segments {
		if s == "~2" {
			segments[i] = ""
			continue
		}

		s = strings.ReplaceAll(s, "~1", ".")
		segments[i] = strings.ReplaceAll(s, "~0", "~")
	}

	return segments
}
