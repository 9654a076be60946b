package store

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSaveWindow is the coalescing window for debounced saves.
const DefaultSaveWindow = 2 * time.Second

// Saver coalesces rapid successive save requests into a single write.
// Callers mark state dirty with Schedule; the save function runs once
// the window elapses with no further Schedule calls, or immediately on
// Flush. Save errors are logged and otherwise swallowed: durable state
// stays in memory and the next write retries.
type Saver struct {
	mu      sync.Mutex
	timer   *time.Timer
	dirty   bool
	stopped bool

	window time.Duration
	save   func() error
	logger *slog.Logger
}

// NewSaver creates a debounced saver around the given save function.
// A zero window disables debouncing; Schedule then saves inline.
func NewSaver(window time.Duration, save func() error, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{
		window: window,
		save:   save,
		logger: logger,
	}
}

// Schedule marks state dirty and (re)arms the flush timer.
func (s *Saver) Schedule() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.window <= 0 {
		s.dirty = false
		s.mu.Unlock()
		s.run()
		return
	}

	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.window, s.flushTimer)
	s.mu.Unlock()
}

func (s *Saver) flushTimer() {
	s.mu.Lock()
	if s.stopped || !s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	s.mu.Unlock()
	s.run()
}

// Flush writes pending state immediately. Safe to call at shutdown; it
// guarantees that every Schedule issued before Flush has been written
// (or its error logged) by the time Flush returns.
func (s *Saver) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	pending := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if pending {
		s.run()
	}
}

// Stop flushes pending state and prevents further scheduling.
func (s *Saver) Stop() {
	s.Flush()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Dirty reports whether a save is pending.
func (s *Saver) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Saver) run() {
	if s.save == nil {
		return
	}
	if err := s.save(); err != nil {
		s.logger.Warn("debounced save failed", "error", err)
	}
}
