package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valetd/valet/internal/store"
)

// JSONStore keeps each session as sessions/<id>.json under a state
// directory. It is the default backend.
type JSONStore struct {
	dir string
}

// NewJSONStore creates the sessions directory if needed.
func NewJSONStore(stateDir string) (*JSONStore, error) {
	dir := filepath.Join(stateDir, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

func (j *JSONStore) path(id string) string {
	return filepath.Join(j.dir, id+".json")
}

// Save writes the session atomically.
func (j *JSONStore) Save(s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("session: empty id")
	}
	return store.WriteJSON(j.path(s.ID), s)
}

// Load reads one session.
func (j *JSONStore) Load(id string) (*Session, error) {
	var s Session
	if err := store.ReadJSON(j.path(id), &s); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &s, nil
}

// List returns summaries of every stored session, most recently
// updated first.
func (j *JSONStore) List() ([]Summary, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		var s Session
		if err := store.ReadJSON(filepath.Join(j.dir, name), &s); err != nil {
			// Skip unreadable entries rather than failing the listing.
			continue
		}
		out = append(out, Summary{
			ID:        s.ID,
			Agent:     s.Agent,
			UpdatedAt: s.UpdatedAt,
			Messages:  len(s.Messages),
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	return out, nil
}

// Delete removes a session. Deleting an absent id is an error.
func (j *JSONStore) Delete(id string) error {
	err := os.Remove(j.path(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// Close is a no-op for the JSON backend.
func (j *JSONStore) Close() error { return nil }
