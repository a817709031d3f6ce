package beacon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// State is what the beacon persists between runs, the equivalent of the
// browser's local storage.
type State struct {
	SessionID    string         `yaml:"session_id,omitempty"`
	UserID       string         `yaml:"user_id,omitempty"`
	LastActivity time.Time      `yaml:"last_activity,omitempty"`
	Pending      []QueuedAction `yaml:"pending,omitempty"`
}

// QueuedAction is a user action that could not be delivered.
type QueuedAction struct {
	Action    string         `yaml:"action"`
	Page      string         `yaml:"page,omitempty"`
	SessionID string         `yaml:"session_id"`
	UserID    string         `yaml:"user_id,omitempty"`
	Data      map[string]any `yaml:"data,omitempty"`
	Timestamp time.Time      `yaml:"timestamp"`
}

// Store persists beacon state.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// MemoryStore keeps state for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(m.state), nil
}

func (m *MemoryStore) Save(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = cloneState(s)
	return nil
}

// FileStore keeps state in a YAML file. A missing file is an empty state.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s State
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("beacon: read state: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("beacon: parse state %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes the state through a temporary file so readers never see a
// partial document.
func (f *FileStore) Save(s State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("beacon: encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("beacon: create state dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("beacon: write state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("beacon: replace state: %w", err)
	}
	return nil
}

func cloneState(s State) State {
	if s.Pending != nil {
		s.Pending = append([]QueuedAction(nil), s.Pending...)
	}
	return s
}
