package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/natedunn/convex-zen-sub000/store"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	// Window is the width of the sliding failure window.
	Window time.Duration
	// Lockout is how long a key stays blocked once MaxAttempts is reached.
	Lockout time.Duration
	// MaxAttempts is the failure count that trips the lockout.
	MaxAttempts int
}

// DefaultConfig returns 10 failures per 10 minutes and a 10 minute lockout.
func DefaultConfig() Config {
	return Config{
		Window:      10 * time.Minute,
		Lockout:     10 * time.Minute,
		MaxAttempts: 10,
	}
}

// Decision is the outcome of a Check.
type Decision struct {
	Limited    bool
	RetryAfter time.Duration
}

// Limiter counts failures per key in storage. It holds no in-process state;
// concurrent increments are serialized by the store's conditional update.
type Limiter struct {
	store  store.RateLimits
	config Config
	now    func() time.Time
}

// New creates a [Limiter]. A nil now uses time.Now.
func New(s store.RateLimits, cfg Config, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		store:  s,
		config: cfg,
		now:    now,
	}
}

// Key builds an `action:scope:identifier` key.
func Key(action, scope, identifier string) string {
	return action + ":" + scope + ":" + strings.ToLower(strings.TrimSpace(identifier))
}

// Check reports whether key is currently limited.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	rec, err := l.store.GetRateLimit(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Decision{}, nil
		}
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return l.decide(rec, l.now()), nil
}

// CheckAll checks every non-empty key and returns the most restrictive
// decision.
func (l *Limiter) CheckAll(ctx context.Context, keys ...string) (Decision, error) {
	var out Decision
	for _, key := range keys {
		if key == "" {
			continue
		}
		d, err := l.Check(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		if d.Limited && (!out.Limited || d.RetryAfter > out.RetryAfter) {
			out = d
		}
	}
	return out, nil
}

func (l *Limiter) decide(rec *store.RateLimit, now time.Time) Decision {
	if rec == nil {
		return Decision{}
	}
	if !rec.LockedUntil.IsZero() && rec.LockedUntil.After(now) {
		return Decision{Limited: true, RetryAfter: rec.LockedUntil.Sub(now)}
	}

	windowEnd := rec.WindowStart.Add(l.config.Window)
	if now.Before(windowEnd) && rec.Count >= l.config.MaxAttempts {
		return Decision{Limited: true, RetryAfter: windowEnd.Sub(now)}
	}

	return Decision{}
}

// Increment records one failure for key.
func (l *Limiter) Increment(ctx context.Context, key string) error {
	err := l.store.UpdateRateLimit(ctx, key, func(current *store.RateLimit) (*store.RateLimit, error) {
		now := l.now()

		next := &store.RateLimit{Key: key}
		switch {
		case current == nil:
			next.WindowStart = now
			next.Count = 1
		case !now.Before(current.WindowStart.Add(l.config.Window)):
			next.WindowStart = now
			next.Count = 1
			next.LockedUntil = activeLockout(current.LockedUntil, now)
		default:
			next.WindowStart = current.WindowStart
			next.Count = current.Count + 1
			next.LockedUntil = activeLockout(current.LockedUntil, now)
		}

		if next.Count >= l.config.MaxAttempts && next.LockedUntil.IsZero() {
			next.LockedUntil = now.Add(l.config.Lockout)
		}

		next.ExpiresAt = next.WindowStart.Add(l.config.Window)
		if next.LockedUntil.After(next.ExpiresAt) {
			next.ExpiresAt = next.LockedUntil
		}
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Reset clears the counters for every non-empty key.
func (l *Limiter) Reset(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := l.store.DeleteRateLimit(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

func activeLockout(lockedUntil, now time.Time) time.Time {
	if lockedUntil.After(now) {
		return lockedUntil
	}
	return time.Time{}
}
