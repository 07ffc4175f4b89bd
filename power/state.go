package power

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// State survives suspension and restarts but not a hardware reset. The file
// store keeps it on tmpfs, which is cleared on power loss.
type State struct {
	BootCount           int `json:"boot_count"`
	SleepInterval       int `json:"sleep_interval"` // seconds
	AssociationFailures int `json:"association_failures"`
}

func DefaultState(interval int) State {
	return State{SleepInterval: interval}
}

type Store interface {
	Load() (State, error)
	Save(State) error
}

type FileStore struct {
	path     string
	defaults State
}

func NewFileStore(path string, defaultInterval int) *FileStore {
	return &FileStore{path: path, defaults: DefaultState(defaultInterval)}
}

// Load returns the defaults when no state has been saved since power on.
func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return f.defaults, nil
	}
	if err != nil {
		return f.defaults, fmt.Errorf("reading state: %w", err)
	}
	s := f.defaults
	if err := json.Unmarshal(data, &s); err != nil {
		return f.defaults, fmt.Errorf("parsing state: %w", err)
	}
	return s, nil
}

// Save writes via a temp file so a cut in the middle leaves the old state.
func (f *FileStore) Save(s State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing state: %w", err)
	}
	return nil
}

// MemoryStore keeps the state for as long as the process lives. The simulated
// platform restarts in process, so this behaves like RTC memory.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	saved bool
}

func NewMemoryStore(defaultInterval int) *MemoryStore {
	return &MemoryStore{state: DefaultState(defaultInterval)}
}

func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *MemoryStore) Save(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.saved = true
	return nil
}

// Saved reports whether Save has been called.
func (m *MemoryStore) Saved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}
