package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	_ = store.GetOrCreate("quiz-1")
	if !mr.Exists("quiz:session:quiz-1") {
		t.Fatalf("expected redis key to be set")
	}

	mr.FastForward(30 * time.Second)
	if ids := store.IDs(); len(ids) != 1 || ids[0] != "quiz-1" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if ttl := mr.TTL("quiz:session:quiz-1"); ttl != time.Minute {
		t.Fatalf("expected marker refreshed to 1m, got %v", ttl)
	}

	store.DeleteIfIdle("quiz-1")
	if mr.Exists("quiz:session:quiz-1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("quiz-1"); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStoreToleratesRedisOutage(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewSessionStore(client, time.Minute)
	mr.Close()

	session := store.GetOrCreate("quiz-1")
	if got, ok := store.Get("quiz-1"); !ok || got != session {
		t.Fatalf("expected session kept locally while redis is down")
	}
	if ids := store.IDs(); len(ids) != 1 {
		t.Fatalf("unexpected ids %v", ids)
	}
	store.DeleteIfIdle("quiz-1")
	if _, ok := store.Get("quiz-1"); ok {
		t.Fatalf("expected session removed while redis is down")
	}
}
