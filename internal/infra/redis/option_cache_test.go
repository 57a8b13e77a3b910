package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestOptionCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{OptionLoader: seededStore(t)}
	cache := NewOptionCache(client, loader, time.Minute)

	opt, err := cache.ResolveOption(context.Background(), "quiz-1", "o2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !opt.Correct || opt.QuestionID != "q1" {
		t.Fatalf("unexpected option %+v", opt)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("quiz:quiz-1:options") {
		t.Fatalf("expected options hash in redis")
	}
	if ttl := mr.TTL("quiz:quiz-1:options"); ttl < time.Minute {
		t.Fatalf("expected ttl with jitter >= 1m, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	opt, err = cache.ResolveOption(context.Background(), "quiz-1", "o1")
	if err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if opt.Correct || opt.Label != "A" {
		t.Fatalf("unexpected cached option %+v", opt)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
}

func TestOptionCacheUnknownOptionSkipsLoader(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{OptionLoader: seededStore(t)}
	cache := NewOptionCache(newClient(mr), loader, time.Minute)

	if _, err := cache.ResolveOption(context.Background(), "quiz-1", "nope"); !errors.Is(err, domain.ErrUnknownOption) {
		t.Fatalf("expected unknown option on cold cache, got %v", err)
	}
	if _, err := cache.ResolveOption(context.Background(), "quiz-1", "nope"); !errors.Is(err, domain.ErrUnknownOption) {
		t.Fatalf("expected unknown option on warm cache, got %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls.Load())
	}

	if _, err := cache.ResolveOption(context.Background(), "missing", "o1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
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

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	if err := store.CreateQuiz(context.Background(), sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return store
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:     "quiz-1",
		Title:  "Arithmetic",
		Code:   "123456",
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
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
