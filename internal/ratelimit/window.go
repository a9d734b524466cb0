package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var errWindowKeyEmpty = errors.New("rate_limit_key_empty")

// Decision is the outcome of a single limiter check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// windowCounter counts hits per key in fixed windows. The first hit of a
// window sets the key expiry; the counter resets when the key expires.
type windowCounter struct {
	client *redis.Client
	window time.Duration
	limit  int
}

func newWindowCounter(client *redis.Client, rate float64, burst int) *windowCounter {
	return &windowCounter{
		client: client,
		window: windowFor(rate, burst),
		limit:  burst,
	}
}

func (w *windowCounter) hit(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, errWindowKeyEmpty
	}

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	count := incr.Val()
	ttl := pttl.Val()
	if ttl < 0 {
		if err := w.client.PExpire(ctx, key, w.window).Err(); err != nil {
			return Decision{}, err
		}
		ttl = w.window
	}

	remaining := w.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   count <= int64(w.limit),
		Limit:     w.limit,
		Remaining: remaining,
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

// windowFor spreads burst requests over the time rate needs to refill them,
// never shorter than a second.
func windowFor(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil(float64(burst) / rate)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
