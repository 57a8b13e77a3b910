package app

import (
	"log/slog"
	"sync"
)

// Conn is a connected client that can receive room events.
type Conn interface {
	ID() string
	// Send enqueues an event; an error means the connection is gone.
	Send(Event) error
}

// Registry maps quiz ids to the connections subscribed to them.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Conn
	// memberships is the reverse index used on disconnect.
	memberships map[string]map[string]struct{}
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:      logger.With("component", "registry"),
		rooms:       make(map[string]map[string]Conn),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Register adds conn to the quiz room. Registering twice is a no-op.
func (r *Registry) Register(quizID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[quizID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[quizID] = room
	}
	room[conn.ID()] = conn

	quizzes, ok := r.memberships[conn.ID()]
	if !ok {
		quizzes = make(map[string]struct{})
		r.memberships[conn.ID()] = quizzes
	}
	quizzes[quizID] = struct{}{}
}

// Unregister removes conn from every room it joined.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn.ID())
}

func (r *Registry) removeLocked(connID string) {
	for quizID := range r.memberships[connID] {
		room := r.rooms[quizID]
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, quizID)
		}
	}
	delete(r.memberships, connID)
}

// Broadcast delivers event to every connection in the room. Connections that
// fail to accept it are dropped.
func (r *Registry) Broadcast(quizID string, event Event) {
	r.mu.RLock()
	room := r.rooms[quizID]
	targets := make([]Conn, 0, len(room))
	for _, conn := range room {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	var dead []string
	for _, conn := range targets {
		if err := conn.Send(event); err != nil {
			dead = append(dead, conn.ID())
		}
	}
	if len(dead) == 0 {
		return
	}

	r.mu.Lock()
	for _, id := range dead {
		r.removeLocked(id)
	}
	r.mu.Unlock()
	r.logger.Debug("dropped dead connections", "quiz_id", quizID, "count", len(dead), "event", event.Type)
}

// Count returns the number of connections in the room.
func (r *Registry) Count(quizID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[quizID])
}
