package lemondb

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/denismitr/lemondb/internal/storage"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var ErrDbFileWriteFailed = errors.New("database write failed")
var ErrCorruptFile = errors.New("database file is corrupt")

const (
	fileMagic     = "LDB1"
	fileVersion   = 1
	checksumBytes = 8
)

// fileModel is the on disk layout:
// magic | cbor(fileModel) | little endian xxhash64 of the cbor payload
type fileModel struct {
	Version int          `cbor:"v"`
	Stores  []storeModel `cbor:"s"`
}

type storeModel struct {
	Name          string        `cbor:"n"`
	KeyPath       []string      `cbor:"kp,omitempty"`
	AutoIncrement bool          `cbor:"ai,omitempty"`
	Current       float64       `cbor:"c"`
	Records       []recordModel `cbor:"r"`
}

type recordModel struct {
	Key   interface{}     `cbor:"k"`
	Value cbor.RawMessage `cbor:"v"`
}

type persistence struct {
	mu       sync.Mutex
	fullPath string
	tmpPath  string
	sync     bool
}

func newPersistence(fullPath string, noSync bool) *persistence {
	tmpPath := strings.TrimSuffix(fullPath, ".ldb") + ".tmp"
	if tmpPath == fullPath {
		tmpPath += ".tmp"
	}

	return &persistence{fullPath: fullPath, tmpPath: tmpPath, sync: !noSync}
}

func (p *persistence) exists() bool {
	return storage.FileExists(p.fullPath)
}

func (p *persistence) load() (map[string]*storeState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := storage.ReadFile(p.fullPath)
	if err != nil {
		return nil, err
	}

	payload, err := verifyChecksum(data)
	if err != nil {
		return nil, errors.Wrapf(err, "file %s", p.fullPath)
	}

	var fm fileModel
	if err := valueDecMode.Unmarshal(payload, &fm); err != nil {
		return nil, errors.Wrapf(ErrCorruptFile, "could not decode %s: %v", p.fullPath, err)
	}

	if fm.Version != fileVersion {
		return nil, errors.Wrapf(ErrCorruptFile, "unsupported file version %d", fm.Version)
	}

	stores := make(map[string]*storeState, len(fm.Stores))
	for _, sm := range fm.Stores {
		schema := StoreSchema{Name: sm.Name, KeyPath: sm.KeyPath, AutoIncrement: sm.AutoIncrement}
		if err := schema.validate(); err != nil {
			return nil, errors.Wrapf(ErrCorruptFile, "%v", err)
		}

		s := newStoreState(schema)
		s.current = sm.Current
		for i, rm := range sm.Records {
			k, err := KeyOf(rm.Key)
			if err != nil {
				return nil, errors.Wrapf(ErrCorruptFile, "store %s record %d: %v", sm.Name, i, err)
			}
			s.records.Set(&record{key: k, value: []byte(rm.Value)})
		}

		stores[sm.Name] = s
	}

	return stores, nil
}

func (p *persistence) write(stores map[string]*storeState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)

	fm := fileModel{Version: fileVersion, Stores: make([]storeModel, 0, len(names))}
	for _, name := range names {
		s := stores[name]
		sm := storeModel{
			Name:          s.schema.Name,
			KeyPath:       s.schema.KeyPath,
			AutoIncrement: s.schema.AutoIncrement,
			Current:       s.current,
			Records:       make([]recordModel, 0, s.count()),
		}

		s.records.Scan(func(r *record) bool {
			sm.Records = append(sm.Records, recordModel{Key: r.key.Value(), Value: r.value})
			return true
		})

		fm.Stores = append(fm.Stores, sm)
	}

	payload, err := valueEncMode.Marshal(&fm)
	if err != nil {
		return errors.Wrapf(ErrDbFileWriteFailed, "could not encode: %v", err)
	}

	if err := storage.WriteAtomic(p.fullPath, p.tmpPath, withChecksum(payload), p.sync); err != nil {
		return errors.Wrap(ErrDbFileWriteFailed, err.Error())
	}

	return nil
}

func withChecksum(payload []byte) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(fileMagic)+len(payload)+checksumBytes))
	buf.WriteString(fileMagic)
	buf.Write(payload)

	sum := make([]byte, checksumBytes)
	binary.LittleEndian.PutUint64(sum, xxhash.Sum64(payload))
	buf.Write(sum)

	return buf.Bytes()
}

func verifyChecksum(data []byte) ([]byte, error) {
	if len(data) < len(fileMagic)+checksumBytes || string(data[:len(fileMagic)]) != fileMagic {
		return nil, errors.Wrap(ErrCorruptFile, "missing file header")
	}

	payload := data[len(fileMagic) : len(data)-checksumBytes]
	expected := binary.LittleEndian.Uint64(data[len(data)-checksumBytes:])
	if xxhash.Sum64(payload) != expected {
		return nil, errors.Wrap(ErrCorruptFile, "checksum mismatch")
	}

	return payload, nil
}
