package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix     = "zen"
	defaultMaxRetries = 16

	// Expired verification codes are retained this long so Verify can still
	// report them as expired rather than unknown.
	expiredRetention = 24 * time.Hour
)

// ErrUnavailable wraps Redis transport and decoding failures.
var ErrUnavailable = errors.New("redisstore: redis unavailable")

// Store implements [store.Store] on Redis.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	maxRetries int
	now        func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace. Defaults to "zen".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds optimistic WATCH retries before ErrConflict.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithClock sets the clock used to turn record expiry timestamps into key TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store on client. Keys are namespaced by WithPrefix.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		redis:      client,
		prefix:     defaultPrefix,
		maxRetries: defaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *Store) userKey(id string) string { return s.key("user", id) }
func (s *Store) userEmailKey(email string) string { return s.key("user", "email", email) }
func (s *Store) usersIndexKey() string { return s.key("users") }
func (s *Store) usersSeqKey() string { return s.key("users", "seq") }
func (s *Store) userAccountsKey(id string) string { return s.key("user", id, "accounts") }
func (s *Store) userSessionsKey(id string) string { return s.key("user", id, "sessions") }
func (s *Store) accountKey(id string) string { return s.key("account", id) }
func (s *Store) sessionKey(id string) string { return s.key("session", id) }
func (s *Store) sessionTokenKey(hash string) string { return s.key("session", "token", hash) }
func (s *Store) sessionsExpiryKey() string { return s.key("sessions", "expiry") }
func (s *Store) oauthStateKey(hash string) string { return s.key("oauth", "state", hash) }
func (s *Store) oauthStatesExpiryKey() string { return s.key("oauth", "states", "expiry") }
func (s *Store) rateLimitKey(key string) string { return s.key("ratelimit", key) }
func (s *Store) verificationsExpiryKey() string { return s.key("verifications", "expiry") }

func (s *Store) accountProviderKey(providerID, accountID string) string {
	return s.key("account", "provider", providerID, accountID)
}

func (s *Store) verificationKey(typ store.VerificationType, identifier string) string {
	return s.key("verification", string(typ), identifier)
}

// watch runs fn under WATCH keys, retrying when a watched key changes before
// EXEC. Exhausting the retry budget yields store.ErrConflict.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return store.ErrConflict
}

// wrap passes store sentinels through and marks everything else unavailable.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInvalidCursor):
		return err
	case errors.Is(err, redis.Nil):
		return store.ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// ttlUntil converts an absolute expiry into a key TTL. Zero means no expiry.
func (s *Store) ttlUntil(at time.Time) time.Duration {
	if at.IsZero() {
		return 0
	}
	ttl := at.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func scoreBound(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// expiredMembers returns up to limit members of an expiry index scored at or
// before before.
func (s *Store) expiredMembers(ctx context.Context, index string, before time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.redis.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   scoreBound(before),
		Count: int64(limit),
	}).Result()
}
