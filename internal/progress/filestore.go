package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/conorfennell/coursedeck/internal/domain"
)

// FileStore keeps every user's progress in a single JSON document.
// Each Put rewrites the whole file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the file at path. The file is
// created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the score recorded for (user, cardID).
func (s *FileStore) Get(ctx context.Context, user, cardID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return 0, false, err
	}
	score, ok := all[user][cardID]
	return score, ok, nil
}

// Put records score for (user, cardID) and persists the entire store.
func (s *FileStore) Put(ctx context.Context, user, cardID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if all[user] == nil {
		all[user] = make(map[string]int)
	}
	all[user][cardID] = Clamp(score)
	return s.write(all)
}

// LoadAll returns a copy of user's scores.
func (s *FileStore) LoadAll(ctx context.Context, user string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(all[user]))
	for card, score := range all[user] {
		snap[card] = score
	}
	return snap, nil
}

func (s *FileStore) read() (map[string]map[string]int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]map[string]int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrStorageUnavailable, s.path, err)
	}

	all := make(map[string]map[string]int)
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrStorageCorrupt, s.path, err)
	}
	if all == nil {
		all = make(map[string]map[string]int)
	}
	return all, nil
}

// write replaces the file through a temporary sibling so readers never see
// a half-written document.
func (s *FileStore) write(all map[string]map[string]int) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode progress: %w", domain.ErrStorageUnavailable, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrStorageUnavailable, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", domain.ErrStorageUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", domain.ErrStorageUnavailable, tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrStorageUnavailable, tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", domain.ErrStorageUnavailable, s.path, err)
	}
	return nil
}
