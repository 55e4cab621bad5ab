package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the draft state. Save replaces the whole record.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// FileStore keeps the drafts in a single JSON file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record. A missing file is an empty state.
func (s *FileStore) Load(_ context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{Drafts: []DraftOrder{}}, nil
		}
		return State{}, fmt.Errorf("failed to read drafts: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("failed to decode drafts %s: %w", s.path, err)
	}
	if st.Drafts == nil {
		st.Drafts = []DraftOrder{}
	}
	return st, nil
}

// Save writes the record to a temp file in the same directory and renames
// it over the previous one, so readers see either the old or the new state.
func (s *FileStore) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode drafts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create drafts directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".drafts-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write drafts: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync drafts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close drafts: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace drafts: %w", err)
	}
	return nil
}

// MemoryStore keeps the drafts in process memory
type MemoryStore struct {
	mu    sync.Mutex
	state State
	saves int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: State{Drafts: []DraftOrder{}}}
}

func (s *MemoryStore) Load(_ context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st.clone()
	s.saves++
	return nil
}

// Saves returns how many times the state was written
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
