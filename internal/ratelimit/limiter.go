package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
)

const (
	defaultKeyPrefix = "nft-indexer:limiter:"

	// redisRetryInterval is how long the limiter stays on the local fallback after a redis error
	redisRetryInterval = 30 * time.Second
)

// Limiter bounds the rate of requests against a shared upstream (the chain RPC)
// across every process using the same key.
//
//go:generate mockgen -source=limiter.go -destination=../mocks/ratelimit_limiter.go -package=mocks -mock_names=Limiter=MockRateLimiter
type Limiter interface {
	// Wait blocks until a request token is acquired or ctx is done
	Wait(ctx context.Context) error
}

// Config holds limiter configuration
type Config struct {
	// Name identifies the upstream, it becomes part of the redis key
	Name string
	// RequestsPerSecond is the shared budget; zero or negative disables limiting
	RequestsPerSecond int
	// KeyPrefix is prepended to Name to build the redis key
	KeyPrefix string
}

type limiter struct {
	key         string
	perSecond   int
	distributed adapter.RedisRateLimiter
	local       *rate.Limiter
	clock       adapter.Clock

	// fallbackUntil holds the unix nano time until which the local limiter is used
	fallbackUntil atomic.Int64
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Unlimited returns a limiter that never blocks
func Unlimited() Limiter {
	return unlimited{}
}

// NewLimiter creates a redis backed limiter with a per-process fallback.
// A nil redis rate limiter makes the limiter local only.
func NewLimiter(cfg Config, distributed adapter.RedisRateLimiter, clock adapter.Clock) (Limiter, error) {
	if cfg.RequestsPerSecond <= 0 {
		return Unlimited(), nil
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("limiter name is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &limiter{
		key:         prefix + cfg.Name,
		perSecond:   cfg.RequestsPerSecond,
		distributed: distributed,
		local:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond),
		clock:       clock,
	}, nil
}

// Wait acquires a token from redis, falling back to the local limiter while redis is failing
func (l *limiter) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if l.distributed == nil || l.clock.Now().UnixNano() < l.fallbackUntil.Load() {
			return l.local.Wait(ctx)
		}

		res, err := l.distributed.Allow(ctx, l.key, redis_rate.PerSecond(l.perSecond))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Redis rate limiter error, falling back to local",
				zap.String("key", l.key),
				zap.Error(err))
			l.fallbackUntil.Store(l.clock.Now().Add(redisRetryInterval).UnixNano())
			continue
		}

		if res.Allowed > 0 {
			return nil
		}

		// Spread retries over 50-150% of the advertised wait
		jitter := time.Duration(float64(res.RetryAfter) * (0.5 + rand.Float64())) //nolint:gosec,G404
		logger.Debug("Rate limit token unavailable, waiting",
			zap.String("key", l.key),
			zap.Duration("retry_after", jitter))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(jitter):
		}
	}
}
