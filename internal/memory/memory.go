// Package memory implements block-oriented long-term context: labeled,
// size-bounded blocks that compile into every prompt, with
// content-addressed version history.
package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/valetd/valet/internal/store"
)

// Mutation errors surfaced to the agent as tool errors.
var (
	ErrBlockNotFound = errors.New("memory: block not found")
	ErrReadOnly      = errors.New("memory: block is read-only")
	ErrOverLimit     = errors.New("memory: block over character limit")
)

// Block is one labeled unit of long-term memory. Value never exceeds
// Limit characters after a successful mutation.
type Block struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Limit       int    `json:"limit"`
	Description string `json:"description,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty"`
}

// Memory owns the block set for one agent. All mutations are
// serialized, persisted through a debounced saver, and committed to the
// version store.
type Memory struct {
	mu       sync.Mutex
	agent    string
	blocks   map[string]*Block
	versions *VersionStore
	saver    *store.Saver
	path     string
	logger   *slog.Logger
}

// Open loads (or seeds) the core memory for the named agent under dir.
func Open(dir, agent string, logger *slog.Logger) (*Memory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	versions, err := NewVersionStore(filepath.Join(dir, "memory_versions"), logger)
	if err != nil {
		return nil, err
	}

	m := &Memory{
		agent:    agent,
		blocks:   make(map[string]*Block),
		versions: versions,
		path:     filepath.Join(dir, fmt.Sprintf("core_memory_%s.json", agent)),
		logger:   logger.With("component", "memory", "agent", agent),
	}
	m.saver = store.NewSaver(store.DefaultSaveWindow, m.save, m.logger)

	var persisted []*Block
	if err := store.ReadJSON(m.path, &persisted); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load core memory: %w", err)
		}
		m.seedDefaults()
		if err := m.save(); err != nil {
			return nil, err
		}
	} else {
		for _, b := range persisted {
			m.blocks[b.Label] = b
		}
	}
	return m, nil
}

// seedDefaults installs the initial block set on first run.
func (m *Memory) seedDefaults() {
	defaults := []*Block{
		{
			Label:       "persona",
			Value:       "I am a helpful personal assistant. I am direct, resourceful, and careful with the user's data.",
			Limit:       2000,
			Description: "The agent's own persona and voice.",
		},
		{
			Label:       "human",
			Value:       "I don't know much about the user yet.",
			Limit:       2000,
			Description: "Durable facts about the user.",
		},
		{
			Label:       "short_term",
			Value:       "",
			Limit:       3000,
			Description: "Scratch space for the current task.",
		},
		{
			Label:       "knowledge",
			Value:       "",
			Limit:       3000,
			Description: "Accumulated facts and references.",
		},
		{
			Label:       "system",
			Value:       "Use memory tools to keep these blocks current. Keep entries short and factual.",
			Limit:       500,
			Description: "Standing instructions.",
			ReadOnly:    true,
		},
		{
			Label:       "capabilities",
			Value:       "Tools may read and write files, run shell commands, fetch URLs, and call external MCP servers.",
			Limit:       1000,
			Description: "What the runtime can do.",
			ReadOnly:    true,
		},
	}
	for _, b := range defaults {
		m.blocks[b.Label] = b
	}
}

// Compile renders all blocks as prompt text: sorted by label, each as
//
//	<label>
//	value
//	</label>
//
// separated by blank lines.
func (m *Memory) Compile() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	labels := m.sortedLabelsLocked()
	var b strings.Builder
	for i, label := range labels {
		if i > 0 {
			b.WriteString("\n\n")
		}
		block := m.blocks[label]
		b.WriteString("<")
		b.WriteString(label)
		b.WriteString(">\n")
		b.WriteString(block.Value)
		b.WriteString("\n</")
		b.WriteString(label)
		b.WriteString(">")
	}
	return b.String()
}

// Append adds content to a block on a new line. Fails with ErrOverLimit
// when the result would exceed the block's character limit.
func (m *Memory) Append(label, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	block, err := m.mutableBlockLocked(label)
	if err != nil {
		return err
	}

	next := block.Value
	if next != "" {
		next += "\n"
	}
	next += content
	if len(next) > block.Limit {
		return fmt.Errorf("%w: %s would be %d chars, limit %d", ErrOverLimit, label, len(next), block.Limit)
	}
	block.Value = next
	m.mutatedLocked()
	return nil
}

// Replace substitutes every occurrence of old with new in the block.
func (m *Memory) Replace(label, old, new string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	block, err := m.mutableBlockLocked(label)
	if err != nil {
		return err
	}

	next := strings.ReplaceAll(block.Value, old, new)
	if len(next) > block.Limit {
		return fmt.Errorf("%w: %s would be %d chars, limit %d", ErrOverLimit, label, len(next), block.Limit)
	}
	block.Value = next
	m.mutatedLocked()
	return nil
}

// Clear resets a block's value to empty.
func (m *Memory) Clear(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	block, err := m.mutableBlockLocked(label)
	if err != nil {
		return err
	}
	block.Value = ""
	m.mutatedLocked()
	return nil
}

// Create adds a new block. Creating a label that already exists is a
// no-op.
func (m *Memory) Create(label, value string, limit int, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.blocks[label]; exists {
		return nil
	}
	if limit <= 0 {
		limit = 2000
	}
	if len(value) > limit {
		return fmt.Errorf("%w: %s seeded with %d chars, limit %d", ErrOverLimit, label, len(value), limit)
	}
	m.blocks[label] = &Block{
		Label:       label,
		Value:       value,
		Limit:       limit,
		Description: description,
	}
	m.mutatedLocked()
	return nil
}

// Get returns a copy of the named block.
func (m *Memory) Get(label string) (Block, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.blocks[label]
	if !ok {
		return Block{}, false
	}
	return *block, true
}

// List returns copies of all blocks sorted by label.
func (m *Memory) List() []Block {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Block, 0, len(m.blocks))
	for _, label := range m.sortedLabelsLocked() {
		out = append(out, *m.blocks[label])
	}
	return out
}

// Commit snapshots the current block values into the version store.
func (m *Memory) Commit(message string) (*Version, error) {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	return m.versions.Commit(snapshot, message)
}

// Restore replaces current block values with a rollback snapshot.
// Labels absent from the snapshot keep their current value; read-only
// blocks are restored as well since rollback is an operator action, not
// an agent mutation.
func (m *Memory) Restore(snapshot map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for label, value := range snapshot {
		if block, ok := m.blocks[label]; ok {
			block.Value = value
		} else {
			m.blocks[label] = &Block{Label: label, Value: value, Limit: maxInt(len(value), 2000)}
		}
	}
	m.mutatedLocked()
}

// Versions exposes the underlying version store for log/diff/rollback.
func (m *Memory) Versions() *VersionStore {
	return m.versions
}

// InheritFrom imports the parent's persona, human, knowledge, and
// capabilities blocks as read-only copies, for sub-agent composition.
func (m *Memory) InheritFrom(parent *Memory) {
	inherited := []string{"persona", "human", "knowledge", "capabilities"}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, label := range inherited {
		block, ok := parent.Get(label)
		if !ok {
			continue
		}
		block.ReadOnly = true
		m.blocks[label] = &block
	}
	m.mutatedLocked()
}

// Flush writes any pending state to disk. Call before shutdown.
func (m *Memory) Flush() {
	m.saver.Flush()
}

func (m *Memory) mutableBlockLocked(label string) (*Block, error) {
	block, ok := m.blocks[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, label)
	}
	if block.ReadOnly {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, label)
	}
	return block, nil
}

func (m *Memory) mutatedLocked() {
	m.saver.Schedule()
}

func (m *Memory) snapshotLocked() map[string]string {
	snapshot := make(map[string]string, len(m.blocks))
	for label, block := range m.blocks {
		snapshot[label] = block.Value
	}
	return snapshot
}

func (m *Memory) sortedLabelsLocked() []string {
	labels := make([]string, 0, len(m.blocks))
	for label := range m.blocks {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func (m *Memory) save() error {
	m.mu.Lock()
	blocks := make([]*Block, 0, len(m.blocks))
	for _, label := range m.sortedLabelsLocked() {
		b := *m.blocks[label]
		blocks = append(blocks, &b)
	}
	path := m.path
	m.mu.Unlock()

	return store.WriteJSON(path, blocks)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
