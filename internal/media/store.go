package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalidName = errors.New("invalid file name")

// keepFile survives cleanup so the directory stays in version control.
const keepFile = ".gitkeep"

// LocalStore keeps uploads and archived media in one flat directory.
type LocalStore struct {
	dir string
	now func() time.Time
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, now: time.Now}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Path resolves a bare file name inside the store. Anything that could
// escape the directory is rejected.
func (s *LocalStore) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// Save copies r into name and returns the full path.
func (s *LocalStore) Save(name string, r io.Reader) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path, nil
}

// Remove deletes path, ignoring files that are already gone.
func (s *LocalStore) Remove(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// Purge deletes every file in the store and returns how many were removed.
func (s *LocalStore) Purge() (int, error) {
	return s.purge(func(os.FileInfo) bool { return true })
}

// PurgeOlderThan deletes files whose modification time is older than age.
func (s *LocalStore) PurgeOlderThan(age time.Duration) (int, error) {
	if age <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-age)
	return s.purge(func(info os.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	})
}

func (s *LocalStore) purge(match func(os.FileInfo) bool) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	deleted := 0
	for _, e := range entries {
		if e.IsDir() || e.Name() == keepFile {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !match(info) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return deleted, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		deleted++
	}
	return deleted, nil
}
