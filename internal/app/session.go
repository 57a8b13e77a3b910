package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/domain"
)

// Phase is a step of the per-question cycle.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseStarting Phase = "STARTING"
	PhaseOpen     Phase = "OPEN"
	PhaseReveal   Phase = "REVEAL"
	PhasePause    Phase = "PAUSE"
	PhaseFinished Phase = "FINISHED"
	PhaseStopped  Phase = "STOPPED"
)

// CycleState is an inspectable snapshot of a quiz's cycle.
type CycleState struct {
	Phase         Phase
	QuestionIndex int
	QuestionID    string
	OpenedAt      time.Time
	Deadline      time.Time
}

// Session is the in-memory runtime state of one quiz. The sequencer is its
// only writer; submissions read it under the read lock.
type Session struct {
	id string

	mu          sync.RWMutex
	cycle       *cycle
	completedAt time.Time
	// retired is set by the sweeper before the session leaves the repository;
	// released is closed once it has left.
	retired  bool
	released chan struct{}
}

// cycle is one run of the question sequence. A new cycle replaces the old one
// on start; steps scheduled by a replaced or stopped cycle do nothing.
type cycle struct {
	quiz     domain.Quiz
	index    int
	phase    Phase
	openedAt time.Time
	deadline time.Time
	timer    clock.Timer
	answered map[string]*atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id string) *Session {
	return &Session{id: id, released: make(chan struct{})}
}

// ID returns the quiz id of the session.
func (s *Session) ID() string {
	return s.id
}

// Idle reports whether no cycle is running.
func (s *Session) Idle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle == nil || !s.cycle.running()
}

// CompletedAt returns when the quiz was completed through this session.
func (s *Session) CompletedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedAt
}

func (s *Session) stateLocked() CycleState {
	c := s.cycle
	if c == nil {
		return CycleState{Phase: PhaseIdle, QuestionIndex: -1}
	}
	state := CycleState{
		Phase:         c.phase,
		QuestionIndex: c.index,
		OpenedAt:      c.openedAt,
		Deadline:      c.deadline,
	}
	if c.index >= 0 && c.index < len(c.quiz.Questions) {
		state.QuestionID = c.quiz.Questions[c.index].ID
	}
	return state
}

func newCycle(quiz domain.Quiz) *cycle {
	ctx, cancel := context.WithCancel(context.Background())
	return &cycle{
		quiz:     quiz,
		index:    -1,
		phase:    PhaseStarting,
		answered: make(map[string]*atomic.Int64, len(quiz.Questions)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *cycle) running() bool {
	return c.phase != PhaseFinished && c.phase != PhaseStopped
}

// stop cancels the pending step and the cycle context.
func (c *cycle) stop() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel()
	c.phase = PhaseStopped
}

// openQuestion returns the live question if questionID is open.
func (c *cycle) openQuestion(questionID string) (domain.Question, bool) {
	if c.phase != PhaseOpen || c.index < 0 {
		return domain.Question{}, false
	}
	q := c.quiz.Questions[c.index]
	if q.ID != questionID {
		return domain.Question{}, false
	}
	return q, true
}
