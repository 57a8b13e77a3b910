package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"classroom-quiz-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// OptionLoader fetches the options of every question of a quiz.
type OptionLoader interface {
	ListOptions(ctx context.Context, quizID string) ([]domain.Option, error)
}

// OptionCache caches quiz options with TTL to keep answer resolution off the
// store. Quiz content is immutable once created, so entries only expire.
type OptionCache struct {
	loader OptionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedOptions
}

type cachedOptions struct {
	byID      map[string]domain.Option
	expiresAt time.Time
}

func NewOptionCache(loader OptionLoader, ttl time.Duration) *OptionCache {
	return &OptionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedOptions),
	}
}

// ResolveOption implements app.OptionResolver.
func (c *OptionCache) ResolveOption(ctx context.Context, quizID, optionID string) (domain.Option, error) {
	options, err := c.options(ctx, quizID)
	if err != nil {
		return domain.Option{}, err
	}
	opt, ok := options[optionID]
	if !ok {
		return domain.Option{}, domain.ErrUnknownOption
	}
	return opt, nil
}

func (c *OptionCache) options(ctx context.Context, quizID string) (map[string]domain.Option, error) {
	if options, ok := c.lookup(quizID); ok {
		return options, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		if options, ok := c.lookup(quizID); ok {
			return options, nil
		}

		list, err := c.loader.ListOptions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]domain.Option, len(list))
		for _, opt := range list {
			byID[opt.ID] = opt
		}

		c.mu.Lock()
		c.cache[quizID] = cachedOptions{
			byID:      byID,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return byID, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]domain.Option), nil
}

func (c *OptionCache) lookup(quizID string) (map[string]domain.Option, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[quizID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return entry.byID, true
}

func (c *OptionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
