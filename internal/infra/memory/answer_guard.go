package memory

import (
	"context"
	"sync"
)

type answerKey struct {
	questionID string
	userID     string
}

// AnswerGuard claims (question, user) pairs with a lock-free map. Different
// pairs never contend.
type AnswerGuard struct {
	claims sync.Map
}

func NewAnswerGuard() *AnswerGuard {
	return &AnswerGuard{}
}

func (g *AnswerGuard) Claim(_ context.Context, questionID, userID string) (bool, error) {
	_, loaded := g.claims.LoadOrStore(answerKey{questionID, userID}, struct{}{})
	return !loaded, nil
}

func (g *AnswerGuard) Release(_ context.Context, questionID, userID string) error {
	g.claims.Delete(answerKey{questionID, userID})
	return nil
}

func (g *AnswerGuard) Forget(_ context.Context, questionIDs []string) error {
	drop := make(map[string]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		drop[id] = struct{}{}
	}
	g.claims.Range(func(key, _ any) bool {
		if _, ok := drop[key.(answerKey).questionID]; ok {
			g.claims.Delete(key)
		}
		return true
	})
	return nil
}
