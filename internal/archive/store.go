// Package archive stores uploaded copy bundles on disk.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store writes and locates the tar.gz bundle attached to a copy. One file per
// slug; a re-upload overwrites the previous bundle.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive: directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Save(slug string, data []byte) error {
	path := s.Path(slug)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("archive: write bundle for %q: %w", slug, err)
	}
	return nil
}

func (s *Store) Path(slug string) string {
	return filepath.Join(s.dir, slug+".tar.gz")
}

func (s *Store) Exists(slug string) bool {
	_, err := os.Stat(s.Path(slug))
	return err == nil
}
