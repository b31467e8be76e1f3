package app

import (
	"sync"

	"telegram-quiz-bot/internal/domain"
)

// Registry maps chat IDs to their quiz sessions. It is the only structure
// shared across chats; per-chat state is serialized by each session's own
// mutex, so operations on different chats never block each other.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Start creates a fresh session for the chat. Fails with
// domain.ErrSessionAlreadyActive when a quiz is still running there,
// leaving the existing session untouched.
func (r *Registry) Start(chatID int64, questions []domain.Question, maxQuestions int) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[chatID]; ok && cur.Active() {
		return nil, domain.ErrSessionAlreadyActive
	}
	session := newSession(chatID, questions, maxQuestions)
	r.sessions[chatID] = session
	return session, nil
}

// Restart always succeeds: any running session is stopped (its pending
// timers detect the supersession by token mismatch) and replaced by a
// fresh one with empty scores and index zero.
func (r *Registry) Restart(chatID int64, questions []domain.Question, maxQuestions int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[chatID]; ok {
		cur.stop()
	}
	session := newSession(chatID, questions, maxQuestions)
	r.sessions[chatID] = session
	return session
}

// Stop marks the chat's session stopped. Idempotent; the stopped session
// is kept around so its final scores remain readable.
func (r *Registry) Stop(chatID int64) {
	r.mu.RLock()
	session, ok := r.sessions[chatID]
	r.mu.RUnlock()
	if ok {
		session.stop()
	}
}

// Get returns the chat's session, if any.
func (r *Registry) Get(chatID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[chatID]
	return session, ok
}
