package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Store manages per-session temp directories holding the uploaded
// document and its rendered page images. Artifacts are discarded, not
// reused, once a new document replaces the active one.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the base directory, used by the server to resolve image
// URLs back to files.
func (s *Store) Root() string { return s.root }

// CreateWorkDir makes a fresh directory for one processed document.
func (s *Store) CreateWorkDir(sessionID string) (string, error) {
	dir, err := os.MkdirTemp(s.root, sessionID+"-")
	if err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}
	return dir, nil
}

// SaveUpload writes the uploaded document into dir and returns its
// path.
func (s *Store) SaveUpload(dir, filename string, r io.Reader) (string, error) {
	path := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return path, nil
}

// Cleanup removes a work dir and everything rendered into it. Failures
// are logged, not surfaced; stale temp files must never fail a
// request.
func (s *Store) Cleanup(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("cleaning up work dir")
	}
}
