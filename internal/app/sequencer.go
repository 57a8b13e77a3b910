package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/domain"
)

const (
	defaultInterQuestionPause = 2 * time.Second
	defaultNotifyTimeout      = 10 * time.Second
)

// SequencerConfig tunes the question cycle.
type SequencerConfig struct {
	// InterQuestionPause is waited before every question after the first.
	InterQuestionPause time.Duration
	// NotifyTimeout bounds the results notification sent on completion.
	NotifyTimeout time.Duration
}

// SequencerDeps are the collaborators of a Sequencer. Notifier may be nil.
type SequencerDeps struct {
	Store       Store
	Sessions    SessionRepository
	Ledger      *AnswerLedger
	Ranking     *RankingEngine
	Broadcaster Broadcaster
	Notifier    Notifier
	Clock       clock.Clock
	Logger      *slog.Logger
}

// ConnCounter reports how many connections are subscribed to a quiz.
type ConnCounter interface {
	Count(quizID string) int
}

// Sequencer owns quiz status and drives each active quiz through its
// questions on the server clock.
type Sequencer struct {
	store       Store
	sessions    SessionRepository
	ledger      *AnswerLedger
	ranking     *RankingEngine
	broadcaster Broadcaster
	notifier    Notifier
	clock       clock.Clock
	logger      *slog.Logger
	cfg         SequencerConfig

	notifications sync.WaitGroup
}

func NewSequencer(deps SequencerDeps, cfg SequencerConfig) *Sequencer {
	if cfg.InterQuestionPause <= 0 {
		cfg.InterQuestionPause = defaultInterQuestionPause
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sequencer{
		store:       deps.Store,
		sessions:    deps.Sessions,
		ledger:      deps.Ledger,
		ranking:     deps.Ranking,
		broadcaster: deps.Broadcaster,
		notifier:    deps.Notifier,
		clock:       clk,
		logger:      deps.Logger.With("component", "sequencer"),
		cfg:         cfg,
	}
}

// lockSession returns the live session for quizID with its write lock held.
// A session being swept is waited out and replaced by a fresh one.
func (s *Sequencer) lockSession(ctx context.Context, quizID string) (*Session, error) {
	for {
		session := s.sessions.GetOrCreate(quizID)
		session.mu.Lock()
		if !session.retired {
			return session, nil
		}
		session.mu.Unlock()
		select {
		case <-session.released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Start moves a DRAFT quiz to ACTIVE and schedules its first question. It
// returns once the transition is stored; the cycle runs on the clock.
func (s *Sequencer) Start(ctx context.Context, quizID string) (domain.Quiz, error) {
	session, err := s.lockSession(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	defer session.mu.Unlock()

	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := startable(quiz); err != nil {
		return domain.Quiz{}, err
	}

	started, err := s.store.TransitionQuiz(ctx, quizID, domain.QuizStatusDraft, domain.QuizStatusActive, s.clock.Now())
	if errors.Is(err, domain.ErrStatusConflict) {
		current, getErr := s.store.GetQuiz(ctx, quizID)
		if getErr != nil {
			return domain.Quiz{}, getErr
		}
		if stateErr := startable(current); stateErr != nil {
			return domain.Quiz{}, stateErr
		}
		return domain.Quiz{}, err
	}
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Status = started.Status
	quiz.StartedAt = started.StartedAt

	if session.cycle != nil {
		session.cycle.stop()
	}
	c := newCycle(quiz)
	session.cycle = c

	startedAt := s.clock.Now()
	if quiz.StartedAt != nil {
		startedAt = *quiz.StartedAt
	}
	s.broadcaster.Broadcast(quizID, Event{Type: EventQuizStarted, Payload: QuizStarted{
		QuizID:        quizID,
		StartedAt:     startedAt,
		FirstQuestion: quiz.Questions[0].Public(),
	}})
	c.timer = s.clock.AfterFunc(0, func() { s.openQuestion(session, c, 0) })

	s.logger.Info("quiz started", "quiz_id", quizID, "questions", len(quiz.Questions))
	return quiz, nil
}

func startable(quiz domain.Quiz) error {
	switch quiz.Status {
	case domain.QuizStatusActive:
		return domain.ErrAlreadyActive
	case domain.QuizStatusCompleted:
		return domain.ErrAlreadyCompleted
	}
	if len(quiz.Questions) == 0 {
		return domain.ErrNoQuestions
	}
	return nil
}

// openQuestion broadcasts question idx and schedules its reveal.
func (s *Sequencer) openQuestion(session *Session, c *cycle, idx int) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.cycle != c || !c.running() {
		return
	}

	question := c.quiz.Questions[idx]
	limit := c.quiz.TimeLimit(question)
	now := s.clock.Now()

	c.index = idx
	c.phase = PhaseOpen
	c.openedAt = now
	c.deadline = now.Add(limit)
	c.answered[question.ID] = new(atomic.Int64)

	s.broadcaster.Broadcast(c.quiz.ID, Event{Type: EventNewQuestion, Payload: newQuestionEvent(c.quiz, idx, c.deadline)})
	c.timer = s.clock.AfterFunc(limit, func() { s.revealQuestion(session, c, idx) })

	s.logger.Debug("question opened", "quiz_id", c.quiz.ID, "question", idx+1, "limit", limit)
}

// revealQuestion closes question idx, publishes its results and the
// leaderboard, then schedules the next question or finishes the cycle.
func (s *Sequencer) revealQuestion(session *Session, c *cycle, idx int) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.cycle != c || !c.running() || c.phase != PhaseOpen || c.index != idx {
		return
	}
	c.phase = PhaseReveal
	quizID := c.quiz.ID
	question := c.quiz.Questions[idx]

	stats, err := s.ledger.StatsFor(c.ctx, question)
	if err != nil {
		s.logger.Error("question stats", "quiz_id", quizID, "question_id", question.ID, "error", err)
		stats = computeStats(question, nil)
	}
	correct, _ := question.CorrectOption()
	s.broadcaster.Broadcast(quizID, Event{Type: EventQuestionResults, Payload: QuestionResults{
		QuestionID:    question.ID,
		Stats:         stats,
		CorrectOption: correct,
	}})

	lb, err := s.ranking.LeaderboardFor(c.ctx, c.quiz)
	if err != nil {
		s.logger.Error("leaderboard", "quiz_id", quizID, "error", err)
		lb = emptyLeaderboard(c.quiz)
	}
	s.broadcaster.Broadcast(quizID, Event{Type: EventLeaderboardUpdate, Payload: lb})

	next := idx + 1
	if next >= len(c.quiz.Questions) {
		c.phase = PhaseFinished
		c.timer = nil
		c.cancel()
		s.logger.Info("question cycle finished", "quiz_id", quizID)
		return
	}
	c.phase = PhasePause
	c.timer = s.clock.AfterFunc(s.cfg.InterQuestionPause, func() { s.openQuestion(session, c, next) })
}

// Complete moves an ACTIVE quiz to COMPLETED, stops its cycle and publishes
// the final leaderboard. The results notification runs in the background.
func (s *Sequencer) Complete(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	session, err := s.lockSession(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	defer session.mu.Unlock()

	now := s.clock.Now()
	quiz, err := s.store.TransitionQuiz(ctx, quizID, domain.QuizStatusActive, domain.QuizStatusCompleted, now)
	if errors.Is(err, domain.ErrStatusConflict) {
		return domain.Leaderboard{}, domain.ErrNotActive
	}
	if err != nil {
		return domain.Leaderboard{}, err
	}

	if session.cycle != nil {
		session.cycle.stop()
	}
	session.completedAt = now

	lb, err := s.ranking.LeaderboardFor(ctx, quiz)
	if err != nil {
		s.logger.Error("final leaderboard", "quiz_id", quizID, "error", err)
		lb = emptyLeaderboard(quiz)
	}
	completedAt := now
	if quiz.CompletedAt != nil {
		completedAt = *quiz.CompletedAt
	}
	s.broadcaster.Broadcast(quizID, Event{Type: EventQuizCompleted, Payload: QuizCompleted{
		QuizID:      quizID,
		CompletedAt: completedAt,
		Leaderboard: lb,
	}})
	s.notify(quiz, lb)

	s.logger.Info("quiz completed", "quiz_id", quizID, "participants", len(lb.Participants))
	return lb, nil
}

func (s *Sequencer) notify(quiz domain.Quiz, lb domain.Leaderboard) {
	if s.notifier == nil {
		return
	}
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.NotifyTimeout)
		defer cancel()

		teacher, err := s.store.GetTeacher(ctx, quiz.TeacherID)
		if err != nil {
			s.logger.Warn("load teacher for notification", "quiz_id", quiz.ID, "teacher_id", quiz.TeacherID, "error", err)
			return
		}
		if teacher.TelegramChatID == "" {
			return
		}
		if err := s.notifier.SendQuizResults(ctx, teacher.TelegramChatID, quiz.Title, len(lb.Participants), lb.Top(3)); err != nil {
			s.logger.Warn("send quiz results", "quiz_id", quiz.ID, "error", err)
		}
	}()
}

// SubmitAnswer records an answer while its question window is open and tells
// the room how many answers the question has.
func (s *Sequencer) SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.Answer, int, error) {
	session, ok := s.sessions.Get(sub.QuizID)
	if !ok {
		return domain.Answer{}, 0, s.closedError(ctx, sub.QuizID, sub.QuestionID)
	}

	session.mu.RLock()
	defer session.mu.RUnlock()

	c := session.cycle
	if c == nil {
		return domain.Answer{}, 0, s.closedError(ctx, sub.QuizID, sub.QuestionID)
	}
	question, open := c.openQuestion(sub.QuestionID)
	if !open {
		if _, known := c.quiz.Question(sub.QuestionID); !known {
			return domain.Answer{}, 0, domain.ErrQuestionNotFound
		}
		return domain.Answer{}, 0, domain.ErrQuestionClosed
	}
	if s.clock.Now().After(c.deadline) {
		return domain.Answer{}, 0, domain.ErrQuestionClosed
	}

	sub.OpenedAt = c.openedAt
	answer, score, err := s.ledger.Submit(ctx, sub)
	if err != nil {
		return domain.Answer{}, 0, err
	}

	count := c.answered[question.ID].Add(1)
	s.broadcaster.Broadcast(sub.QuizID, Event{Type: EventAnswerReceived, Payload: AnswerReceived{
		QuestionID:    question.ID,
		AnsweredCount: count,
	}})
	return answer, score, nil
}

func (s *Sequencer) closedError(ctx context.Context, quizID, questionID string) error {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if _, ok := quiz.Question(questionID); !ok {
		return domain.ErrQuestionNotFound
	}
	return domain.ErrQuestionClosed
}

// State returns a snapshot of the quiz's cycle.
func (s *Sequencer) State(quizID string) CycleState {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return CycleState{Phase: PhaseIdle, QuestionIndex: -1}
	}
	session.mu.RLock()
	defer session.mu.RUnlock()
	return session.stateLocked()
}

// CurrentQuestion returns the live question for late joiners.
func (s *Sequencer) CurrentQuestion(quizID string) (NewQuestion, bool) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return NewQuestion{}, false
	}
	session.mu.RLock()
	defer session.mu.RUnlock()
	c := session.cycle
	if c == nil || c.phase != PhaseOpen {
		return NewQuestion{}, false
	}
	return newQuestionEvent(c.quiz, c.index, c.deadline), true
}

// Sweep drops sessions of quizzes completed more than retention ago that no
// connection watches any more, along with their answer claims. Sessions that
// never ran a cycle and have no watchers are dropped too. It returns the
// number of sessions removed.
func (s *Sequencer) Sweep(ctx context.Context, retention time.Duration, watchers ConnCounter) int {
	now := s.clock.Now()
	removed := 0
	for _, quizID := range s.sessions.IDs() {
		session, ok := s.sessions.Get(quizID)
		if !ok || watchers.Count(quizID) > 0 {
			continue
		}

		session.mu.Lock()
		if session.retired {
			session.mu.Unlock()
			continue
		}
		expired := !session.completedAt.IsZero() && now.Sub(session.completedAt) >= retention
		unused := session.cycle == nil && session.completedAt.IsZero()
		if !expired && !unused {
			session.mu.Unlock()
			continue
		}
		var questionIDs []string
		if session.cycle != nil {
			for _, q := range session.cycle.quiz.Questions {
				questionIDs = append(questionIDs, q.ID)
			}
		}
		session.retired = true
		session.mu.Unlock()

		s.sessions.DeleteIfIdle(quizID)
		close(session.released)
		removed++

		if len(questionIDs) > 0 {
			if err := s.ledger.Forget(ctx, questionIDs); err != nil {
				s.logger.Warn("forget answer claims", "quiz_id", quizID, "error", err)
			}
		}
	}
	if removed > 0 {
		s.logger.Info("swept sessions", "count", removed)
	}
	return removed
}

// Wait blocks until background notifications have finished.
func (s *Sequencer) Wait() {
	s.notifications.Wait()
}

func emptyLeaderboard(quiz domain.Quiz) domain.Leaderboard {
	return domain.Leaderboard{QuizID: quiz.ID, QuizTitle: quiz.Title, Participants: []domain.LeaderboardEntry{}}
}
