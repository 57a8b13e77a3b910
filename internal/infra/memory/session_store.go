package memory

import (
	"sort"
	"sync"

	"classroom-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(quizID string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[quizID]; ok {
		return session
	}
	session := app.NewSession(quizID)
	s.sessions[quizID] = session
	return session
}

func (s *SessionStore) Get(quizID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[quizID]
	return session, ok
}

// DeleteIfIdle drops the session unless a question cycle is running.
func (s *SessionStore) DeleteIfIdle(quizID string) {
	s.mu.RLock()
	session, ok := s.sessions[quizID]
	s.mu.RUnlock()
	if !ok || !session.Idle() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[quizID] == session {
		delete(s.sessions, quizID)
	}
}

// IDs lists the quiz ids with a session, sorted.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
