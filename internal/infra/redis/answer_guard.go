package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AnswerGuard claims (question, user) pairs with SETNX so exactly one
// submission per pair reaches the store.
// Claims are stored as: SET quiz:answer:{questionID}:{userID} 1 NX EX ttl
type AnswerGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAnswerGuard(client *redis.Client, ttl time.Duration) *AnswerGuard {
	return &AnswerGuard{client: client, ttl: ttl}
}

func (g *AnswerGuard) Claim(ctx context.Context, questionID, userID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(questionID, userID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim answer: %w", err)
	}
	return ok, nil
}

func (g *AnswerGuard) Release(ctx context.Context, questionID, userID string) error {
	if err := g.client.Del(ctx, g.key(questionID, userID)).Err(); err != nil {
		return fmt.Errorf("release answer: %w", err)
	}
	return nil
}

// Forget deletes every claim of the given questions.
func (g *AnswerGuard) Forget(ctx context.Context, questionIDs []string) error {
	for _, questionID := range questionIDs {
		iter := g.client.Scan(ctx, 0, g.key(questionID, "*"), 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan answer claims: %w", err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := g.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete answer claims: %w", err)
		}
	}
	return nil
}

func (g *AnswerGuard) key(questionID, userID string) string {
	return "quiz:answer:" + questionID + ":" + userID
}
