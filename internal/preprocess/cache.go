package preprocess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/social"
)

const cacheKeyPrefix = "analytica:tr:"

// CachedTranslator is a read-through Redis cache in front of another Translator.
// Cache faults fall through to the wrapped translator.
type CachedTranslator struct {
	next   Translator
	rdb    redis.Cmdable
	hasher social.Hasher
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTranslator wraps next with a Redis cache.
func NewCachedTranslator(
	next Translator,
	rdb redis.Cmdable,
	hasher social.Hasher,
	ttl time.Duration,
	logger *zap.Logger,
) *CachedTranslator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedTranslator{next: next, rdb: rdb, hasher: hasher, ttl: ttl, logger: logger}
}

// Translate serves from cache when possible and stores fresh translations.
func (c *CachedTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	key, err := c.key(text, target)
	if err != nil {
		return c.next.Translate(ctx, text, target)
	}
	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("translation cache read failed", zap.Error(err))
	}

	translated, err := c.next.Translate(ctx, text, target)
	if err != nil {
		return "", err
	}
	if err := c.rdb.Set(ctx, key, translated, c.ttl).Err(); err != nil {
		c.logger.Warn("translation cache write failed", zap.Error(err))
	}
	return translated, nil
}

func (c *CachedTranslator) key(text, target string) (string, error) {
	sum, err := c.hasher.Hash([]byte(text))
	if err != nil {
		return "", fmt.Errorf("hash text: %w", err)
	}
	return cacheKeyPrefix + target + ":" + sum, nil
}
