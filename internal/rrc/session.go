package rrc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/cerr"
)

// SessionManager owns a bounded set of session-scoped Correlator
// instances, each with its own reply topic so concurrent callers (e.g.
// distinct client connections sharing a connector) don't see each other's
// replies.
type SessionManager struct {
	br            broker.Broker
	replyTopicFmt string
	maxSessions   int

	mu       sync.Mutex
	sessions map[string]*Correlator
}

// NewSessionManager creates a manager that derives each session's reply
// topic from replyTopicFmt, a fmt.Sprintf pattern taking the session ID
// (e.g. "reply/%s"). maxSessions <= 0 means unlimited.
func NewSessionManager(br broker.Broker, replyTopicFmt string, maxSessions int) *SessionManager {
	return &SessionManager{
		br:            br,
		replyTopicFmt: replyTopicFmt,
		maxSessions:   maxSessions,
		sessions:      make(map[string]*Correlator),
	}
}

// CreateSession allocates a new session-scoped correlator and returns its
// ID, failing with ErrSessionLimitReached if maxSessions is already in
// use (the original's create_request_response_session / SessionLimitExceeded).
func (m *SessionManager) CreateSession() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return "", cerr.New(cerr.Runtime, "rrc.CreateSession", cerr.ErrSessionLimitReached)
	}

	id := uuid.NewString()
	c, err := New(m.br, fmt.Sprintf(m.replyTopicFmt, id))
	if err != nil {
		return "", err
	}
	m.sessions[id] = c
	return id, nil
}

// Session returns the correlator for id, or ErrSessionNotFound.
func (m *SessionManager) Session(id string) (*Correlator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.sessions[id]
	if !ok {
		return nil, cerr.New(cerr.Runtime, "rrc.Session", cerr.ErrSessionNotFound)
	}
	return c, nil
}

// CloseSession tears down and forgets id's correlator.
func (m *SessionManager) CloseSession(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return cerr.New(cerr.Runtime, "rrc.CloseSession", cerr.ErrSessionNotFound)
	}
	return c.Close()
}

// CloseAll tears down every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Correlator)
	m.mu.Unlock()

	for _, c := range sessions {
		_ = c.Close()
	}
}
