package lemondb

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidSchema = errors.New("invalid store schema")

// StoreSchema describes an object store.
// A KeyPath with a single element is an in-line key (dots separate nested fields),
// several elements make a compound key. AutoIncrement enables the key generator.
type StoreSchema struct {
	Name          string   `yaml:"name"`
	KeyPath       []string `yaml:"key_path"`
	AutoIncrement bool     `yaml:"auto_increment"`
}

func (s StoreSchema) validate() error {
	if s.Name == "" {
		return errors.Wrap(ErrInvalidSchema, "store name cannot be empty")
	}

	if len(s.KeyPath) == 0 && !s.AutoIncrement {
		return errors.Wrapf(ErrInvalidSchema, "store %s needs a key path or auto increment", s.Name)
	}

	if len(s.KeyPath) > 1 && s.AutoIncrement {
		return errors.Wrapf(ErrInvalidSchema, "store %s cannot auto increment a compound key", s.Name)
	}

	for _, p := range s.KeyPath {
		if p == "" {
			return errors.Wrapf(ErrInvalidSchema, "store %s has an empty key path segment", s.Name)
		}
	}

	return nil
}

// String renders the schema as the compact definition ParseSchema accepts.
func (s StoreSchema) String() string {
	var primary string
	switch {
	case len(s.KeyPath) > 1:
		primary = "[" + strings.Join(s.KeyPath, "+") + "]"
	case len(s.KeyPath) == 1:
		primary = s.KeyPath[0]
	}

	if s.AutoIncrement {
		primary += "++"
	}

	return primary
}

func (s StoreSchema) inline() bool {
	return len(s.KeyPath) > 0
}

// ParseSchema parses a compact store definition such as "id++, name",
// "++", "[shape+color]" or "code". Only the primary key part (the first
// comma separated field) is significant, the remaining fields are index hints.
func ParseSchema(name, definition string) (StoreSchema, error) {
	schema := StoreSchema{Name: name}

	primary := strings.TrimSpace(strings.SplitN(definition, ",", 2)[0])
	if strings.HasPrefix(primary, "++") {
		schema.AutoIncrement = true
		primary = strings.TrimPrefix(primary, "++")
	} else if strings.HasSuffix(primary, "++") {
		schema.AutoIncrement = true
		primary = strings.TrimSuffix(primary, "++")
	}

	primary = strings.TrimPrefix(primary, "&")

	switch {
	case strings.HasPrefix(primary, "[") && strings.HasSuffix(primary, "]"):
		for _, p := range strings.Split(strings.Trim(primary, "[]"), "+") {
			schema.KeyPath = append(schema.KeyPath, strings.TrimSpace(p))
		}
	case primary != "":
		schema.KeyPath = []string{primary}
	}

	if err := schema.validate(); err != nil {
		return StoreSchema{}, errors.Wrapf(err, "definition %q", definition)
	}

	return schema, nil
}

// ParseSchemas parses a map of store name to compact definitions.
func ParseSchemas(definitions map[string]string) ([]StoreSchema, error) {
	schemas := make([]StoreSchema, 0, len(definitions))
	for name, definition := range definitions {
		s, err := ParseSchema(name, definition)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}

	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Name < schemas[j].Name
	})

	return schemas, nil
}

// extractKey evaluates the key path of the schema against a cloned value.
// The second result is false when an in-line key is missing from the value.
func (s StoreSchema) extractKey(v interface{}) (Key, bool, error) {
	if len(s.KeyPath) == 1 {
		raw, ok := lookupPath(v, s.KeyPath[0])
		if !ok {
			return Key{}, false, nil
		}

		k, err := KeyOf(raw)
		if err != nil {
			return Key{}, true, errors.Wrapf(ErrData, "key path %s: %v", s.KeyPath[0], err)
		}

		return k, true, nil
	}

	parts := make([]interface{}, len(s.KeyPath))
	for i, p := range s.KeyPath {
		raw, ok := lookupPath(v, p)
		if !ok {
			return Key{}, false, nil
		}
		parts[i] = raw
	}

	k, err := KeyOf(parts)
	if err != nil {
		return Key{}, true, errors.Wrapf(ErrData, "compound key %v: %v", s.KeyPath, err)
	}

	return k, true, nil
}

func lookupPath(v interface{}, path string) (interface{}, bool) {
	current := v
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}

		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// injectKey writes a generated key into the value at the key path,
// creating intermediate objects when they are missing.
func injectKey(v interface{}, path string, k Key) error {
	m, ok := v.(map[string]interface{})
	if !ok {
		return errors.Wrapf(ErrData, "cannot inject key into a value of type %T", v)
	}

	segments := strings.Split(path, ".")
	for _, segment := range segments[:len(segments)-1] {
		next, exists := m[segment]
		if !exists {
			child := make(map[string]interface{})
			m[segment] = child
			m = child
			continue
		}

		child, ok := next.(map[string]interface{})
		if !ok {
			return errors.Wrapf(ErrData, "key path %s crosses a non object value", path)
		}
		m = child
	}

	m[segments[len(segments)-1]] = k.Value()
	return nil
}
