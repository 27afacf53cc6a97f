package storage

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

const DefaultFilePerm os.FileMode = 0666

type CloseFn func() error

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !info.IsDir()
}

func OpenFile(path string) (*os.File, CloseFn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open file %s", path)
	}

	return f, f.Close, nil
}

func CreateFile(path string, perm os.FileMode) (*os.File, CloseFn, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, perm)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not create file %s", path)
	}

	return f, f.Close, nil
}

func FileSize(f *os.File) (int, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "could not measure file %s size", f.Name())
	}

	size64 := info.Size()
	if int64(int(size64)) != size64 {
		return 0, errors.Errorf("file %s is too large", f.Name())
	}

	return int(size64), nil
}

// ReadFile reads the whole file, sizing the buffer from the file stats.
func ReadFile(path string) ([]byte, error) {
	f, fClose, err := OpenFile(path)
	if err != nil {
		return nil, err
	}

	defer fClose()

	size, err := FileSize(f)
	if err != nil {
		return nil, err
	}

	size++ // one byte for final read at EOF

	// If a file claims a small size, read at least 512 bytes.
	// In particular, files in Linux's /proc claim size 0 but
	// then do not work right if read in small pieces,
	// so an initial read of 1 byte would not work correctly.
	if size < 512 {
		size = 512
	}

	data := make([]byte, 0, size)
	for {
		if len(data) >= cap(data) {
			d := append(data[:cap(data)], 0)
			data = d[:len(data)]
		}
		n, err := f.Read(data[len(data):cap(data)])
		data = data[:len(data)+n]
		if err != nil {
			if err == io.EOF {
				break
			}

			return nil, errors.Wrapf(err, "could not read file %s", path)
		}
	}

	return data, nil
}

// WriteAtomic writes data into tmpPath and renames it over fullPath,
// so readers never observe a half written file.
func WriteAtomic(fullPath, tmpPath string, data []byte, sync bool) error {
	tmpF, tmpClose, err := CreateFile(tmpPath, DefaultFilePerm)
	if err != nil {
		return err
	}

	if _, err := tmpF.Write(data); err != nil {
		_ = tmpClose()
		_ = os.Remove(tmpF.Name())
		return errors.Wrapf(err, "could not write to tmp file %s", tmpF.Name())
	}

	if sync {
		if err := tmpF.Sync(); err != nil {
			_ = tmpClose()
			_ = os.Remove(tmpF.Name())
			return errors.Wrapf(err, "could not sync tmp file %s", tmpF.Name())
		}
	}

	if err := tmpClose(); err != nil {
		_ = os.Remove(tmpF.Name())
		return errors.Wrapf(err, "could not close tmp file %s", tmpF.Name())
	}

	if err := os.Rename(tmpF.Name(), fullPath); err != nil {
		_ = os.Remove(tmpF.Name())
		return errors.Wrapf(err, "could not replace %s with %s", fullPath, tmpF.Name())
	}

	return nil
}
