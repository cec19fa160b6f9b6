// Package slots persists the mapping from display slot names to session
// ids so a slot can reattach to its shell across client restarts.
package slots

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/termdeck/internal/shared/paths"
)

// Entry is one slot binding.
type Entry struct {
	SessionID string    `toml:"session_id"`
	UpdatedAt time.Time `toml:"updated_at"`
}

type document struct {
	Slots map[string]Entry `toml:"slots"`
}

// Store is a TOML file of slot bindings. The store is the file's only
// writer; every mutation rewrites the file atomically.
type Store struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// Open returns a store backed by path. The file is created on first write.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("slot store path is empty")
	}
	return &Store{path: path, now: time.Now}, nil
}

// OpenDefault opens the store at the default state location.
func OpenDefault() (*Store, error) {
	path, err := paths.SlotsFile()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the session bound to name.
func (s *Store) Get(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return "", false, err
	}
	e, ok := doc.Slots[name]
	return e.SessionID, ok && e.SessionID != "", nil
}

// Set binds name to sessionID.
func (s *Store) Set(name, sessionID string) error {
	if err := paths.ValidateSlotName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Slots[name] = Entry{SessionID: sessionID, UpdatedAt: s.now().UTC().Truncate(time.Second)}
	return s.save(doc)
}

// Delete removes a binding. Deleting a missing slot is not an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Slots[name]; !ok {
		return nil
	}
	delete(doc.Slots, name)
	return s.save(doc)
}

// DeleteSession removes every slot bound to sessionID.
func (s *Store) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	changed := false
	for name, e := range doc.Slots {
		if e.SessionID == sessionID {
			delete(doc.Slots, name)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(doc)
}

// Binding is a named entry.
type Binding struct {
	Name string
	Entry
}

// List returns every binding sorted by name.
func (s *Store) List() ([]Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Binding, 0, len(doc.Slots))
	for name, e := range doc.Slots {
		out = append(out, Binding{Name: name, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) load() (*document, error) {
	doc := &document{Slots: make(map[string]Entry)}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot store: %w", err)
	}
	if err := toml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse slot store %s: %w", s.path, err)
	}
	if doc.Slots == nil {
		doc.Slots = make(map[string]Entry)
	}
	return doc, nil
}

func (s *Store) save(doc *document) error {
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode slot store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create slot store dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".slots-*.toml")
	if err != nil {
		return fmt.Errorf("create slot store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write slot store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write slot store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace slot store: %w", err)
	}
	return nil
}
