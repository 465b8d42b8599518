package bootshell

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileRecordStore keeps the boot record in a file. Stores go through a
// temporary file and a rename so an interrupted write never leaves a torn
// record behind.
type FileRecordStore struct {
	path string
}

// NewFileRecordStore creates a store backed by path. The file is created on
// the first Store.
func NewFileRecordStore(path string) *FileRecordStore {
	return &FileRecordStore{path: path}
}

func (f *FileRecordStore) Load() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading boot record")
	}
	return data, nil
}

func (f *FileRecordStore) Store(data []byte) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".bootrecord-*")
	if err != nil {
		return errors.Wrap(err, "storing boot record")
	}
	name := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.Wrap(err, "storing boot record")
	}
	if err = tmp.Close(); err != nil {
		os.Remove(name)
		return errors.Wrap(err, "storing boot record")
	}
	if err = os.Rename(name, f.path); err != nil {
		os.Remove(name)
		return errors.Wrap(err, "storing boot record")
	}
	return nil
}
