package snapshot

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var ErrMalformedDocument = errors.New("malformed export document")

// Document maps store names to sequences of serialized records.
// Top level entries that are not sequences (a serializer side-channel, for example)
// are kept verbatim and written back unchanged.
type Document struct {
	entries []docEntry
	index   map[string]int
}

type docEntry struct {
	name string
	raw  json.RawMessage
}

func NewDocument() *Document {
	return &Document{index: make(map[string]int)}
}

// ParseDocument validates data and splits it into top level entries.
// When a name repeats, the last value wins.
func ParseDocument(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.Wrap(ErrMalformedDocument, "invalid json")
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.Wrapf(ErrMalformedDocument, "top level value must be an object, got %s", root.Type)
	}

	d := NewDocument()
	root.ForEach(func(key, value gjson.Result) bool {
		d.SetRaw(key.String(), json.RawMessage(value.Raw))
		return true
	})

	return d, nil
}

func (d *Document) Len() int {
	return len(d.entries)
}

// Names lists the top level keys in document order.
func (d *Document) Names() []string {
	names := make([]string, len(d.entries))
	for i := range d.entries {
		names[i] = d.entries[i].name
	}

	return names
}

func (d *Document) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Raw returns the verbatim value stored under name.
func (d *Document) Raw(name string) (json.RawMessage, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}

	return d.entries[i].raw, true
}

// Records splits the sequence stored under name. A missing or null entry is an empty sequence.
func (d *Document) Records(name string) ([]json.RawMessage, error) {
	raw, ok := d.Raw(name)
	if !ok {
		return nil, nil
	}

	value := gjson.ParseBytes(raw)
	switch {
	case value.Type == gjson.Null:
		return nil, nil
	case !value.IsArray():
		return nil, errors.Wrapf(ErrMalformedDocument, "%s must be an array, got %s", name, value.Type)
	}

	elements := value.Array()
	records := make([]json.RawMessage, len(elements))
	for i := range elements {
		records[i] = json.RawMessage(elements[i].Raw)
	}

	return records, nil
}

func (d *Document) Set(name string, records []json.RawMessage) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(records[i])
	}
	buf.WriteByte(']')

	d.SetRaw(name, buf.Bytes())
}

func (d *Document) SetRaw(name string, raw json.RawMessage) {
	if i, ok := d.index[name]; ok {
		d.entries[i].raw = raw
		return
	}

	d.index[name] = len(d.entries)
	d.entries = append(d.entries, docEntry{name: name, raw: raw})
}

// Retain drops every entry for which keep returns false.
func (d *Document) Retain(keep func(name string) bool) {
	kept := d.entries[:0]
	d.index = make(map[string]int, len(d.entries))
	for _, e := range d.entries {
		if keep(e.name) {
			d.index[e.name] = len(kept)
			kept = append(kept, e)
		}
	}

	d.entries = kept
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d.entries {
		if i > 0 {
			buf.WriteByte(',')
		}

		name, err := json.Marshal(e.name)
		if err != nil {
			return nil, errors.Wrapf(err, "could not encode name %q", e.name)
		}

		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(e.raw)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
