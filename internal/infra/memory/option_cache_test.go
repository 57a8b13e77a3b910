package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"classroom-quiz-service/internal/domain"
)

func TestOptionCacheCaches(t *testing.T) {
	store := NewStore()
	if err := store.CreateQuiz(context.Background(), sampleQuiz()); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	loader := &countingLoader{OptionLoader: store}
	cache := NewOptionCache(loader, time.Minute)

	opt, err := cache.ResolveOption(context.Background(), "quiz-1", "o2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !opt.Correct || opt.QuestionID != "q1" {
		t.Fatalf("unexpected option %+v", opt)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := cache.ResolveOption(context.Background(), "quiz-1", "o1"); err != nil {
		t.Fatalf("resolve 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestOptionCacheUnknownOption(t *testing.T) {
	store := NewStore()
	_ = store.CreateQuiz(context.Background(), sampleQuiz())
	cache := NewOptionCache(store, time.Minute)

	if _, err := cache.ResolveOption(context.Background(), "quiz-1", "nope"); !errors.Is(err, domain.ErrUnknownOption) {
		t.Fatalf("expected unknown option, got %v", err)
	}
	if _, err := cache.ResolveOption(context.Background(), "missing", "o1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestOptionCacheExpires(t *testing.T) {
	store := NewStore()
	_ = store.CreateQuiz(context.Background(), sampleQuiz())
	loader := &countingLoader{OptionLoader: store}
	cache := NewOptionCache(loader, time.Minute)

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, _ = cache.ResolveOption(context.Background(), "quiz-1", "o1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.ResolveOption(context.Background(), "quiz-1", "o1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

type countingLoader struct {
	OptionLoader
	calls atomic.Int32
}

func (l *countingLoader) ListOptions(ctx context.Context, quizID string) ([]domain.Option, error) {
	l.calls.Add(1)
	return l.OptionLoader.ListOptions(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:     "quiz-1",
		Title:  "Arithmetic",
		Code:   "123456",
		Type:   domain.QuizTypeIndividual,
		Status: domain.QuizStatusDraft,
		Questions: []domain.Question{
			{
				ID:        "q1",
				QuizID:    "quiz-1",
				Text:      "What is 2 + 2?",
				Order:     1,
				TimeLimit: 5,
				Options: []domain.Option{
					{ID: "o1", QuestionID: "q1", Label: "A", Text: "3"},
					{ID: "o2", QuestionID: "q1", Label: "B", Text: "4", Correct: true},
				},
			},
			{
				ID:        "q2",
				QuizID:    "quiz-1",
				Text:      "What is 3 + 3?",
				Order:     2,
				TimeLimit: 5,
				Options: []domain.Option{
					{ID: "o3", QuestionID: "q2", Label: "A", Text: "6", Correct: true},
					{ID: "o4", QuestionID: "q2", Label: "B", Text: "7"},
				},
			},
		},
	}
}
