// Package session persists conversation transcripts so a chat can be
// resumed across restarts.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/valetd/valet/internal/provider"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session: not found")

// Session is one conversation transcript.
type Session struct {
	ID        string             `json:"id"`
	Agent     string             `json:"agent"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Messages  []provider.Message `json:"messages"`
}

// Summary is the listing view of a session.
type Summary struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  int       `json:"messages"`
}

// Store persists sessions. Save is an upsert keyed by ID.
type Store interface {
	Save(s *Session) error
	Load(id string) (*Session, error)
	List() ([]Summary, error)
	Delete(id string) error
	Close() error
}

// New creates an empty session for an agent.
func New(agent string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Agent:     agent,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds messages and bumps the update time.
func (s *Session) Append(msgs ...provider.Message) {
	s.Messages = append(s.Messages, msgs...)
	s.UpdatedAt = time.Now().UTC()
}
