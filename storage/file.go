package storage

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"

	"github.com/numbleroot/handoff/crdt"
	"github.com/pkg/errors"
)

// Structs

// FileStore keeps one JSON file per replica in Dir.
type FileStore struct {
	Dir string
}

// Functions

// NewFileStore makes sure dir exists and returns
// a store writing into it.
func NewFileStore(dir string) (*FileStore, error) {

	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, errors.Wrapf(err, "[storage.NewFileStore] creating directory %s failed", dir)
	}

	return &FileStore{
		Dir: dir,
	}, nil
}

// path maps a replica name to its file. Names are
// escaped so that they cannot leave Dir.
func (s *FileStore) path(id string) string {
	return filepath.Join(s.Dir, url.PathEscape(id)+".json")
}

// Load reads the snapshot of replica id.
func (s *FileStore) Load(id string) (*crdt.Snapshot[string], error) {

	raw, err := os.ReadFile(s.path(id))
	if err != nil {

		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrapf(err, "[storage.Load] reading state of %s failed", id)
	}

	snap := new(crdt.Snapshot[string])

	err = json.Unmarshal(raw, snap)
	if err != nil {
		return nil, errors.Wrapf(err, "[storage.Load] decoding state of %s failed", id)
	}

	return snap, nil
}

// Save writes snap to a temporary file next to the
// final one and renames it into place afterwards.
// Readers therefore see either the old or the new
// state, never a partial one.
func (s *FileStore) Save(snap *crdt.Snapshot[string]) error {

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "[storage.Save] encoding state of %s failed", snap.ID)
	}

	tmp, err := os.CreateTemp(s.Dir, ".handoff-*.tmp")
	if err != nil {
		return errors.Wrap(err, "[storage.Save] creating temporary file failed")
	}

	// Remove the temporary file on every failure below.
	// After the rename this is a no-op.
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(raw)
	if err != nil {
		tmp.Close()
		return errors.Wrapf(err, "[storage.Save] writing state of %s failed", snap.ID)
	}

	err = tmp.Sync()
	if err != nil {
		tmp.Close()
		return errors.Wrapf(err, "[storage.Save] syncing state of %s failed", snap.ID)
	}

	err = tmp.Close()
	if err != nil {
		return errors.Wrapf(err, "[storage.Save] closing state file of %s failed", snap.ID)
	}

	err = os.Rename(tmp.Name(), s.path(snap.ID))
	if err != nil {
		return errors.Wrapf(err, "[storage.Save] replacing state of %s failed", snap.ID)
	}

	return nil
}

// Close is a no-op for file stores.
func (s *FileStore) Close() error {
	return nil
}
