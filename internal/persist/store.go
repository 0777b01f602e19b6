package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
)

// Store persists named JSON documents under a state directory.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load decodes the named document into out. It reports false when the document is missing.
func (s *Store) Load(name string, out any) (bool, error) {
	path := s.pathFor(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "name", name)
			}
			return false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "name", name, "err", err)
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "name", name, "err", err)
		}
		return false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "name", name)
	}
	return true, nil
}

// Save encodes value and replaces the named document atomically.
func (s *Store) Save(name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "name", name, "err", err)
		}
		return err
	}
	if err := WriteFileAtomic(s.pathFor(name), data, 0o600); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "name", name, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "name", name)
	}
	return nil
}

// Remove deletes the named document. Removing a missing document is not an error.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.pathFor(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("state remove failed", "name", name, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Debug("state removed", "name", name)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file in the target directory and renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *Store) pathFor(name string) string {
	clean := sanitize(name)
	if clean == "" {
		clean = "unknown"
	}
	return filepath.Join(s.dir, clean+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
