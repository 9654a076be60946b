package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valetd/valet/internal/metrics"
	"github.com/valetd/valet/internal/store"
)

// MaxVersions caps the retained version history. The store behaves as a
// ring buffer: committing past the cap evicts the oldest version and
// deletes its file.
const MaxVersions = 100

// ErrSnapshotNotFound is returned when no version matches an id prefix.
var ErrSnapshotNotFound = fmt.Errorf("memory: snapshot not found")

// Version is a content-addressed snapshot of all memory blocks.
// Versions form a singly-linked chain through ParentID.
type Version struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Blocks    map[string]string `json:"blocks"`
	ParentID  string            `json:"parent_id,omitempty"`
	Message   string            `json:"message"`
}

// DiffChange classifies a per-label difference between two versions.
type DiffChange string

const (
	DiffAdded    DiffChange = "added"
	DiffRemoved  DiffChange = "removed"
	DiffModified DiffChange = "modified"
)

// DiffEntry describes how one label changed between two versions.
type DiffEntry struct {
	Label  string     `json:"label"`
	Change DiffChange `json:"change"`
	Old    string     `json:"old,omitempty"`
	New    string     `json:"new,omitempty"`
}

// VersionStore persists memory versions, one JSON file per version,
// newest first in memory.
type VersionStore struct {
	mu       sync.Mutex
	dir      string
	versions []*Version // index 0 is head
	logger   *slog.Logger
}

// NewVersionStore opens (or creates) a version store rooted at dir and
// loads any existing versions from disk.
func NewVersionStore(dir string, logger *slog.Logger) (*VersionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &VersionStore{
		dir:    dir,
		logger: logger.With("component", "memory_versions"),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create version dir: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VersionStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read version dir: %w", err)
	}

	var versions []*Version
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "v_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var v Version
		if err := store.ReadJSON(filepath.Join(s.dir, name), &v); err != nil {
			s.logger.Warn("skipping unreadable version file", "file", name, "error", err)
			continue
		}
		versions = append(versions, &v)
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Timestamp.After(versions[j].Timestamp)
	})
	s.versions = versions
	return nil
}

// HashBlocks computes the content hash of a block snapshot: labels are
// sorted, each contributes "label:value", and the lines are joined with
// newlines before hashing with SHA-256.
func HashBlocks(blocks map[string]string) string {
	labels := make([]string, 0, len(blocks))
	for label := range blocks {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	for i, label := range labels {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(label)
		b.WriteByte(':')
		b.WriteString(blocks[label])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Commit records a snapshot of blocks. Committing a snapshot whose hash
// equals the current head is a no-op and returns the head unchanged.
func (s *VersionStore) Commit(blocks map[string]string, message string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := HashBlocks(blocks)
	if len(s.versions) > 0 && s.versions[0].ID == id {
		return s.versions[0], nil
	}

	snapshot := make(map[string]string, len(blocks))
	for label, value := range blocks {
		snapshot[label] = value
	}

	v := &Version{
		ID:        id,
		Timestamp: time.Now(),
		Blocks:    snapshot,
		Message:   message,
	}
	if len(s.versions) > 0 {
		v.ParentID = s.versions[0].ID
	}

	if err := store.WriteJSON(s.filePath(v.ID), v); err != nil {
		return nil, fmt.Errorf("write version: %w", err)
	}

	s.versions = append([]*Version{v}, s.versions...)
	metrics.MemorySnapshotsTotal.Inc()
	for len(s.versions) > MaxVersions {
		oldest := s.versions[len(s.versions)-1]
		s.versions = s.versions[:len(s.versions)-1]
		if err := os.Remove(s.filePath(oldest.ID)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove evicted version", "id", oldest.ID, "error", err)
		}
	}
	return v, nil
}

// Head returns the most recent version, or nil when the store is empty.
func (s *VersionStore) Head() *Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.versions) == 0 {
		return nil
	}
	return s.versions[0]
}

// Find returns the first version whose ID starts with prefix.
func (s *VersionStore) Find(prefix string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(prefix)
}

func (s *VersionStore) findLocked(prefix string) (*Version, error) {
	if prefix == "" {
		return nil, ErrSnapshotNotFound
	}
	for _, v := range s.versions {
		if strings.HasPrefix(v.ID, prefix) {
			return v, nil
		}
	}
	return nil, ErrSnapshotNotFound
}

// Rollback returns the block snapshot of the version matching the id
// prefix. The store itself is unchanged; the caller decides whether to
// adopt the snapshot as the current block set.
func (s *VersionStore) Rollback(prefix string) (map[string]string, error) {
	v, err := s.Find(prefix)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]string, len(v.Blocks))
	for label, value := range v.Blocks {
		snapshot[label] = value
	}
	return snapshot, nil
}

// Diff compares two versions by id prefix. Unchanged labels are
// omitted; entries are sorted by label.
func (s *VersionStore) Diff(fromPrefix, toPrefix string) ([]DiffEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.findLocked(fromPrefix)
	if err != nil {
		return nil, err
	}
	to, err := s.findLocked(toPrefix)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]struct{}, len(from.Blocks)+len(to.Blocks))
	for label := range from.Blocks {
		labels[label] = struct{}{}
	}
	for label := range to.Blocks {
		labels[label] = struct{}{}
	}

	var entries []DiffEntry
	for label := range labels {
		oldVal, inFrom := from.Blocks[label]
		newVal, inTo := to.Blocks[label]
		switch {
		case !inFrom:
			entries = append(entries, DiffEntry{Label: label, Change: DiffAdded, New: newVal})
		case !inTo:
			entries = append(entries, DiffEntry{Label: label, Change: DiffRemoved, Old: oldVal})
		case oldVal != newVal:
			entries = append(entries, DiffEntry{Label: label, Change: DiffModified, Old: oldVal, New: newVal})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Label < entries[j].Label })
	return entries, nil
}

// Log returns up to limit versions, most recent first. A non-positive
// limit defaults to 20.
func (s *VersionStore) Log(limit int) []*Version {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	if limit > len(s.versions) {
		limit = len(s.versions)
	}
	out := make([]*Version, limit)
	copy(out, s.versions[:limit])
	return out
}

// Len returns the number of retained versions.
func (s *VersionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions)
}

func (s *VersionStore) filePath(id string) string {
	short := id
	if len(short) > 16 {
		short = short[:16]
	}
	return filepath.Join(s.dir, "v_"+short+".json")
}
