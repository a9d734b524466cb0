package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/coursepay/internal/config"
	"go.uber.org/zap"
)

const (
	keyPublicEndpoint = "coursepay:rl:%s:%s"
	keyPromoSettle    = "coursepay:lock:promo:%s"

	promoLockAttempts = 5
	promoLockBackoff  = 50 * time.Millisecond
)

// Limiter throttles public endpoints per scope and client address. A nil or
// disabled limiter allows everything.
type Limiter struct {
	counter *windowCounter
	log     *zap.Logger
}

func NewLimiter(client *redis.Client, cfg config.Config, log *zap.Logger) *Limiter {
	if client == nil || !cfg.RateLimit.Enabled || cfg.RateLimit.Rate <= 0 || cfg.RateLimit.Burst <= 0 {
		return nil
	}
	return &Limiter{
		counter: newWindowCounter(client, cfg.RateLimit.Rate, cfg.RateLimit.Burst),
		log:     log.Named("ratelimit"),
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.counter != nil
}

// Allow fails open: a Redis error is logged and the request goes through.
func (l *Limiter) Allow(ctx context.Context, scope, clientIP string) (*Decision, bool) {
	if !l.Enabled() {
		return nil, true
	}
	key := fmt.Sprintf(keyPublicEndpoint, scope, strings.TrimSpace(clientIP))
	d, err := l.counter.hit(ctx, key)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.String("scope", scope), zap.Error(err))
		return nil, true
	}
	return &d, d.Allowed
}

// PromoLocker serializes promo settlement per code across instances.
type PromoLocker struct {
	locker *settleLock
	ttl    time.Duration
	log    *zap.Logger
}

func NewPromoLocker(client *redis.Client, cfg config.Config, log *zap.Logger) *PromoLocker {
	ttl := cfg.RateLimit.PromoLockTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if client == nil {
		return &PromoLocker{log: log.Named("ratelimit.promo_lock")}
	}
	return &PromoLocker{
		locker: &settleLock{client: client},
		ttl:    ttl,
		log:    log.Named("ratelimit.promo_lock"),
	}
}

// Acquire takes the lock for code, retrying briefly. Any Redis trouble yields a
// no-op release and nil error; the promo cap is best effort.
func (p *PromoLocker) Acquire(ctx context.Context, code string) (func(), error) {
	noop := func() {}
	if p == nil || p.locker == nil {
		return noop, nil
	}

	key := fmt.Sprintf(keyPromoSettle, strings.ToUpper(strings.TrimSpace(code)))
	for attempt := 0; attempt < promoLockAttempts; attempt++ {
		token, ok, err := p.locker.tryLock(ctx, key, p.ttl)
		if err != nil {
			p.log.Warn("promo lock unavailable", zap.String("code", code), zap.Error(err))
			return noop, nil
		}
		if ok {
			return func() {
				if err := p.locker.release(context.WithoutCancel(ctx), key, token); err != nil {
					p.log.Warn("promo lock release failed", zap.String("code", code), zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return noop, ctx.Err()
		case <-time.After(promoLockBackoff):
		}
	}

	p.log.Warn("promo lock busy, settling without it", zap.String("code", code))
	return noop, nil
}
