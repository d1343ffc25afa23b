package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pipetrade/internal/config"
	"go.uber.org/fx"
)

const keyActorMutations = "pipetrade:mutations:actor:%s"

// ActorLimiter caps how fast one actor can create, amend and transition
// documents. A nil limiter allows everything.
type ActorLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewActorLimiter(lc fx.Lifecycle, cfg config.Config) (*ActorLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.ActorRate <= 0 || limitCfg.ActorBurst <= 0 {
		return nil, errors.New("actor rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return NewActorLimiterWithBucket(NewTokenBucket(client), limitCfg.ActorRate, limitCfg.ActorBurst), nil
}

func NewActorLimiterWithBucket(bucket *TokenBucket, rate float64, burst int) *ActorLimiter {
	return &ActorLimiter{bucket: bucket, rate: rate, burst: burst}
}

func (l *ActorLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *ActorLimiter) Allow(ctx context.Context, actorID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Result{}, ErrInvalidKey
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyActorMutations, actorID), l.rate, l.burst)
}
