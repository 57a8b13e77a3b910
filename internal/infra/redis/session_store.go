package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"classroom-quiz-service/internal/app"

	"github.com/redis/go-redis/v9"
)

// markerTimeout bounds each liveness marker round trip.
const markerTimeout = 2 * time.Second

// SessionStore is a Redis-aware implementation of SessionRepository.
// Notes:
//   - Session state stays in a local map; the question cycle is single-process.
//   - Redis holds a liveness marker per session so operators can see which
//     quizzes are live on which instance.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(quizID string) *app.Session {
	s.mu.Lock()
	if session, ok := s.sessions[quizID]; ok {
		s.mu.Unlock()
		return session
	}
	session := app.NewSession(quizID)
	s.sessions[quizID] = session
	s.mu.Unlock()

	// best-effort liveness marker
	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()
	_ = s.client.Set(ctx, s.key(quizID), "1", s.ttl).Err()
	return session
}

func (s *SessionStore) Get(quizID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[quizID]
	return session, ok
}

func (s *SessionStore) DeleteIfIdle(quizID string) {
	s.mu.RLock()
	session, ok := s.sessions[quizID]
	s.mu.RUnlock()
	if !ok || !session.Idle() {
		return
	}

	s.mu.Lock()
	if s.sessions[quizID] != session {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, quizID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()
	_ = s.client.Del(ctx, s.key(quizID)).Err()
}

// IDs lists local sessions and refreshes their liveness markers.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	if s.ttl > 0 && len(ids) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
		defer cancel()
		pipe := s.client.Pipeline()
		for _, id := range ids {
			pipe.Expire(ctx, s.key(id), s.ttl)
		}
		_, _ = pipe.Exec(ctx)
	}
	return ids
}

func (s *SessionStore) key(quizID string) string {
	return "quiz:session:" + quizID
}
