package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"classroom-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// OptionLoader fetches the options of every question of a quiz.
type OptionLoader interface {
	ListOptions(ctx context.Context, quizID string) ([]domain.Option, error)
}

// OptionCache keeps quiz options in Redis (hash per quiz) and falls back to
// a loader on cache miss.
// Options are stored as: HSET quiz:{quizID}:options {optionID} {option JSON}
type OptionCache struct {
	client *redis.Client
	loader OptionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewOptionCache(client *redis.Client, loader OptionLoader, ttl time.Duration) *OptionCache {
	return &OptionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ResolveOption implements app.OptionResolver.
func (c *OptionCache) ResolveOption(ctx context.Context, quizID, optionID string) (domain.Option, error) {
	key := c.key(quizID)

	raw, err := c.client.HGet(ctx, key, optionID).Result()
	if err == nil {
		return decodeOption(raw)
	}
	if !errors.Is(err, redis.Nil) {
		return domain.Option{}, fmt.Errorf("read option cache: %w", err)
	}

	// a present hash without the field means the option is not part of the quiz
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return domain.Option{}, fmt.Errorf("check option cache: %w", err)
	}
	if exists > 0 {
		return domain.Option{}, domain.ErrUnknownOption
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		options, err := c.loader.ListOptions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if len(options) == 0 {
			return options, nil
		}

		fields := make(map[string]interface{}, len(options))
		for _, opt := range options {
			encoded, err := json.Marshal(opt)
			if err != nil {
				return nil, fmt.Errorf("encode option: %w", err)
			}
			fields[opt.ID] = encoded
		}
		pipe := c.client.Pipeline()
		pipe.HSet(ctx, key, fields)
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// the cache is an optimisation; a failed fill only costs a reload
		_, _ = pipe.Exec(ctx)
		return options, nil
	})
	if err != nil {
		return domain.Option{}, err
	}

	for _, opt := range result.([]domain.Option) {
		if opt.ID == optionID {
			return opt, nil
		}
	}
	return domain.Option{}, domain.ErrUnknownOption
}

func (c *OptionCache) key(quizID string) string {
	return "quiz:" + quizID + ":options"
}

func decodeOption(raw string) (domain.Option, error) {
	var opt domain.Option
	if err := json.Unmarshal([]byte(raw), &opt); err != nil {
		return domain.Option{}, fmt.Errorf("decode cached option: %w", err)
	}
	return opt, nil
}

func (c *OptionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
