package cache

import (
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"

	domainerrors "github.com/plugforge/plugforge/domain/errors"
)

// ErrNotFound is returned by Store.Load when no valid entry exists for a
// fingerprint. A stored entry whose content no longer hashes to its key is
// treated the same way, forcing recompilation rather than crashing.
var ErrNotFound = stdErrors.New("cache: module not found")

const moduleExt = ".wasm"

// Store is a content-addressed store of bytecode modules. Entries are keyed
// by fingerprint and published atomically (write-to-temp-then-rename), so a
// concurrent reader never observes a partially written entry. Entries are
// immutable once published; no further synchronization is needed.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a module store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &domainerrors.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the storage location for a fingerprint.
func (s *Store) Path(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+moduleExt)
}

// Contains reports whether an entry exists for the fingerprint. It does not
// verify content integrity; Load does.
func (s *Store) Contains(fingerprint string) bool {
	_, err := os.Stat(s.Path(fingerprint))
	return err == nil
}

// Load reads the module stored under fingerprint and verifies its content
// still hashes to that fingerprint. A missing or corrupted entry yields
// ErrNotFound; callers recompile from source bytecode instead of failing.
func (s *Store) Load(fingerprint string) ([]byte, error) {
	path := s.Path(fingerprint)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &domainerrors.IOError{Op: "read", Path: path, Err: err}
	}
	if Fingerprint(data) != fingerprint {
		return nil, fmt.Errorf("%w: content of %s does not match its fingerprint", ErrNotFound, path)
	}
	return data, nil
}

// Put publishes a bytecode module under its content fingerprint and returns
// that fingerprint. Publication is atomic: the bytes are written to a
// temporary file in the same directory and renamed into place, so concurrent
// writers for the same fingerprint cannot corrupt the entry.
func (s *Store) Put(bytecode []byte) (string, error) {
	fingerprint := Fingerprint(bytecode)
	path := s.Path(fingerprint)

	if s.Contains(fingerprint) {
		return fingerprint, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", &domainerrors.IOError{Op: "create", Path: s.dir, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(bytecode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &domainerrors.IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &domainerrors.IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", &domainerrors.IOError{Op: "rename", Path: path, Err: err}
	}
	return fingerprint, nil
}
