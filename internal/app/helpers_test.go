package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"

	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type harness struct {
	ctx       context.Context
	clock     *clock.Fake
	store     *memory.Store
	sessions  *memory.SessionStore
	registry  *app.Registry
	ledger    *app.AnswerLedger
	ranking   *app.RankingEngine
	sequencer *app.Sequencer
	quizzes   *app.QuizService
	gateway   *app.Gateway
	notifier  *fakeNotifier
	watcher   *recorder
}

type harnessOption func(*app.GatewayDeps)

func withAuth() harnessOption {
	return func(d *app.GatewayDeps) { d.RequireAuth = true }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	logger := discardLogger()
	clk := clock.NewFake(testStart)
	store := memory.NewStore()
	sessions := memory.NewSessionStore()
	registry := app.NewRegistry(logger)
	ledger := app.NewAnswerLedger(store, memory.NewOptionCache(store, time.Minute), memory.NewAnswerGuard(), clk, logger)
	ranking := app.NewRankingEngine(store)
	notifier := &fakeNotifier{}
	sequencer := app.NewSequencer(app.SequencerDeps{
		Store:       store,
		Sessions:    sessions,
		Ledger:      ledger,
		Ranking:     ranking,
		Broadcaster: registry,
		Notifier:    notifier,
		Clock:       clk,
		Logger:      logger,
	}, app.SequencerConfig{InterQuestionPause: 2 * time.Second})
	quizzes := app.NewQuizService(store, clk, logger)

	deps := app.GatewayDeps{
		Quizzes:   quizzes,
		Sequencer: sequencer,
		Ranking:   ranking,
		Registry:  registry,
		Clock:     clk,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	h := &harness{
		ctx:       context.Background(),
		clock:     clk,
		store:     store,
		sessions:  sessions,
		registry:  registry,
		ledger:    ledger,
		ranking:   ranking,
		sequencer: sequencer,
		quizzes:   quizzes,
		gateway:   app.NewGateway(deps),
		notifier:  notifier,
		watcher:   newRecorder("watcher"),
	}
	t.Cleanup(sequencer.Wait)
	return h
}

// seed stores testQuiz and subscribes the watcher connection to its room.
func (h *harness) seed(t *testing.T) domain.Quiz {
	t.Helper()
	quiz := testQuiz()
	require.NoError(t, h.store.CreateQuiz(h.ctx, quiz))
	require.NoError(t, h.store.SaveTeacher(h.ctx, domain.Teacher{ID: "teacher-1", Name: "Ms. Rivera", TelegramChatID: "chat-1"}))
	h.registry.Register(quiz.ID, h.watcher)
	return quiz
}

func (h *harness) join(t *testing.T, quizID, userID string) domain.Participant {
	t.Helper()
	quiz, err := h.store.GetQuiz(h.ctx, quizID)
	require.NoError(t, err)
	p, _, err := h.quizzes.Join(h.ctx, quiz, userID, userID, "")
	require.NoError(t, err)
	// distinct join timestamps
	h.clock.Advance(time.Millisecond)
	return p
}

func (h *harness) submit(quizID, questionID, userID, optionID string) (domain.Answer, int, error) {
	return h.sequencer.SubmitAnswer(h.ctx, domain.AnswerSubmission{
		QuizID:     quizID,
		QuestionID: questionID,
		UserID:     userID,
		OptionID:   optionID,
	})
}

// testQuiz has two questions of 5 seconds each; o2 and o3 are correct.
func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:                  "quiz-1",
		Title:               "Arithmetic",
		Code:                "123456",
		TeacherID:           "teacher-1",
		Type:                domain.QuizTypeIndividual,
		Status:              domain.QuizStatusDraft,
		DefaultQuestionTime: 30,
		CreatedAt:           testStart,
		Questions: []domain.Question{
			{
				ID: "q1", QuizID: "quiz-1", Text: "2 + 2?", Order: 1, TimeLimit: 5,
				Options: []domain.Option{
					{ID: "o1", QuestionID: "q1", Label: "A", Text: "3"},
					{ID: "o2", QuestionID: "q1", Label: "B", Text: "4", Correct: true},
				},
			},
			{
				ID: "q2", QuizID: "quiz-1", Text: "3 + 3?", Order: 2, TimeLimit: 5,
				Options: []domain.Option{
					{ID: "o3", QuestionID: "q2", Label: "A", Text: "6", Correct: true},
					{ID: "o4", QuestionID: "q2", Label: "B", Text: "7"},
				},
			},
		},
	}
}

type recorder struct {
	id string

	mu     sync.Mutex
	events []app.Event
	closed bool
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(event app.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("connection closed")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) types() []app.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]app.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) ofType(t app.EventType) []app.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []app.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type notification struct {
	target           string
	title            string
	participantCount int
	top              []domain.LeaderboardEntry
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *fakeNotifier) SendQuizResults(_ context.Context, target, title string, count int, top []domain.LeaderboardEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{target: target, title: title, participantCount: count, top: top})
	return n.err
}

func (n *fakeNotifier) calls() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}
