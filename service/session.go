package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"incident-report-service/llm"
	"incident-report-service/parser"
)

// ChatSession is the transient state of one slot-filling conversation. Fields
// holds the slot state re-derived from the latest assistant turn; it is
// replaced on every turn, never merged.
type ChatSession struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []llm.Message
	Fields    parser.TurnFields
	Completed bool
}

// SessionStore keeps chat sessions in memory with a fixed lifetime. The app
// is single-user and operations are user-triggered; overlapping writes to one
// session are accepted as last-writer-wins.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*ChatSession
}

// NewSessionStore creates a session store with the given lifetime.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*ChatSession),
	}
}

// Create starts a new session seeded with the system prompt.
func (s *SessionStore) Create(systemPrompt string) *ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()

	now := time.Now()
	session := &ChatSession{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []llm.Message{{Role: "system", Content: systemPrompt}},
		Fields:    parser.EmptyTurnFields(),
	}
	s.sessions[session.ID] = session
	return session
}

// Get returns the session with the given id, if it exists and has not
// expired.
func (s *SessionStore) Get(id string) (*ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	session, ok := s.sessions[id]
	return session, ok
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *SessionStore) pruneLocked() {
	cutoff := time.Now().Add(-s.ttl)
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
