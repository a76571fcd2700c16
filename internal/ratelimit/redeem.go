package ratelimit

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/andinolabs/canje/internal/config"
	obsmetrics "github.com/andinolabs/canje/internal/observability/metrics"
)

// ErrRateLimited is returned when a user exhausts their redemption budget.
var ErrRateLimited = errors.New("rate_limited")

// NewRedisClient connects to redis when the limiter is enabled; a nil client
// means the limiter runs in allow-all mode.
func NewRedisClient(cfg config.Config) *redis.Client {
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
}

type RedeemLimiterParams struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Redis      *redis.Client       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// RedeemLimiter throttles redemption attempts per user. Redemptions are the
// only write with real contention, so it is the only rate-limited surface.
type RedeemLimiter struct {
	log        *zap.Logger
	bucket     *TokenBucket
	rate       float64
	burst      int
	obsMetrics *obsmetrics.Metrics
}

func NewRedeemLimiter(p RedeemLimiterParams) *RedeemLimiter {
	return &RedeemLimiter{
		log:        p.Log.Named("ratelimit.redeem"),
		bucket:     NewTokenBucket(p.Redis),
		rate:       p.Config.RateLimit.RedeemRate,
		burst:      p.Config.RateLimit.RedeemBurst,
		obsMetrics: p.ObsMetrics,
	}
}

// Allow takes one token from the user's bucket. With no backing redis the
// limiter admits everything. A redis failure also admits the request: the
// points ledger stays correct without the limiter, so availability wins.
func (l *RedeemLimiter) Allow(ctx context.Context, userID string) (*RateLimitResult, error) {
	if l == nil || l.bucket == nil {
		return &RateLimitResult{Allowed: true}, nil
	}

	result, err := l.bucket.Allow(ctx, "redeem:"+userID, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.String("user_id", userID), zap.Error(err))
		return &RateLimitResult{Allowed: true}, nil
	}

	if !result.Allowed {
		if l.obsMetrics != nil {
			l.obsMetrics.RecordRateLimitDenied(ctx)
		}
		return result, ErrRateLimited
	}
	return result, nil
}
