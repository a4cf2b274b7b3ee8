package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/redis/go-redis/v9"
)

func verificationMember(typ store.VerificationType, identifier string) string {
	return string(typ) + ":" + identifier
}

func splitVerificationMember(member string) (store.VerificationType, string, bool) {
	typ, identifier, ok := strings.Cut(member, ":")
	return store.VerificationType(typ), identifier, ok
}

func (s *Store) PutVerification(ctx context.Context, v *store.Verification) error {
	data, err := encodeVerification(v)
	if err != nil {
		return wrap(err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.verificationKey(v.Type, v.Identifier), data, s.ttlUntil(v.ExpiresAt.Add(expiredRetention)))
		pipe.ZAdd(ctx, s.verificationsExpiryKey(), redis.Z{
			Score:  score(v.ExpiresAt),
			Member: verificationMember(v.Type, v.Identifier),
		})
		return nil
	})
	return wrap(err)
}

func (s *Store) UpdateVerification(ctx context.Context, identifier string, typ store.VerificationType, fn store.VerificationUpdate) error {
	key := s.verificationKey(typ, identifier)
	member := verificationMember(typ, identifier)

	var fnErr error
	err := s.watch(ctx, func(tx *redis.Tx) error {
		fnErr = nil

		var current *store.Verification
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeVerification(raw); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return nil
		}

		if next == nil {
			if current == nil {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, s.verificationsExpiryKey(), member)
				return nil
			})
			return err
		}

		next.Identifier, next.Type = identifier, typ
		data, err := encodeVerification(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttlUntil(next.ExpiresAt.Add(expiredRetention)))
			pipe.ZAdd(ctx, s.verificationsExpiryKey(), redis.Z{Score: score(next.ExpiresAt), Member: member})
			return nil
		})
		return err
	}, key)

	if fnErr != nil {
		return fnErr
	}
	return wrap(err)
}

func (s *Store) DeleteVerification(ctx context.Context, identifier string, typ store.VerificationType) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.verificationKey(typ, identifier))
		pipe.ZRem(ctx, s.verificationsExpiryKey(), verificationMember(typ, identifier))
		return nil
	})
	return wrap(err)
}

func (s *Store) DeleteExpiredVerifications(ctx context.Context, before time.Time, limit int) (int, error) {
	members, err := s.expiredMembers(ctx, s.verificationsExpiryKey(), before, limit)
	if err != nil {
		return 0, wrap(err)
	}

	deleted := 0
	for _, member := range members {
		typ, identifier, ok := splitVerificationMember(member)
		if !ok {
			if err := s.redis.ZRem(ctx, s.verificationsExpiryKey(), member).Err(); err != nil {
				return deleted, wrap(err)
			}
			continue
		}

		removed := false
		err := s.UpdateVerification(ctx, identifier, typ, func(current *store.Verification) (*store.Verification, error) {
			removed = false
			if current == nil || current.ExpiresAt.After(before) {
				return current, nil
			}
			removed = true
			return nil, nil
		})
		if err != nil {
			return deleted, err
		}
		if removed {
			deleted++
		} else if err := s.dropDanglingVerification(ctx, identifier, typ, member); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// dropDanglingVerification removes an index entry whose record vanished by TTL.
func (s *Store) dropDanglingVerification(ctx context.Context, identifier string, typ store.VerificationType, member string) error {
	n, err := s.redis.Exists(ctx, s.verificationKey(typ, identifier)).Result()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return wrap(s.redis.ZRem(ctx, s.verificationsExpiryKey(), member).Err())
	}
	return nil
}

func (s *Store) PutOAuthState(ctx context.Context, state *store.OAuthState) error {
	data, err := encodeOAuthState(state)
	if err != nil {
		return wrap(err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.oauthStateKey(state.StateHash), data, s.ttlUntil(state.ExpiresAt))
		pipe.ZAdd(ctx, s.oauthStatesExpiryKey(), redis.Z{Score: score(state.ExpiresAt), Member: state.StateHash})
		return nil
	})
	return wrap(err)
}

// ConsumeOAuthState reads and deletes the state with GETDEL, so at most one
// caller ever observes it.
func (s *Store) ConsumeOAuthState(ctx context.Context, stateHash string) (*store.OAuthState, error) {
	data, err := s.redis.GetDel(ctx, s.oauthStateKey(stateHash)).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	if err := s.redis.ZRem(ctx, s.oauthStatesExpiryKey(), stateHash).Err(); err != nil {
		return nil, wrap(err)
	}
	state, err := decodeOAuthState(data)
	if err != nil {
		return nil, wrap(err)
	}
	return state, nil
}

func (s *Store) DeleteExpiredOAuthStates(ctx context.Context, before time.Time, limit int) (int, error) {
	hashes, err := s.expiredMembers(ctx, s.oauthStatesExpiryKey(), before, limit)
	if err != nil {
		return 0, wrap(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, len(hashes))
	members := make([]interface{}, len(hashes))
	for i, h := range hashes {
		keys[i] = s.oauthStateKey(h)
		members[i] = h
	}

	var delCmd *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		delCmd = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.oauthStatesExpiryKey(), members...)
		return nil
	})
	if err != nil {
		return 0, wrap(err)
	}
	return int(delCmd.Val()), nil
}

func (s *Store) GetRateLimit(ctx context.Context, key string) (*store.RateLimit, error) {
	data, err := s.redis.Get(ctx, s.rateLimitKey(key)).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	rl, err := decodeRateLimit(data)
	if err != nil {
		return nil, wrap(err)
	}
	return rl, nil
}

func (s *Store) UpdateRateLimit(ctx context.Context, key string, fn store.RateLimitUpdate) error {
	redisKey := s.rateLimitKey(key)

	var fnErr error
	err := s.watch(ctx, func(tx *redis.Tx) error {
		fnErr = nil

		var current *store.RateLimit
		raw, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeRateLimit(raw); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, redisKey)
				return nil
			}
			next.Key = key
			data, err := encodeRateLimit(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, redisKey, data, s.ttlUntil(next.ExpiresAt))
			return nil
		})
		return err
	}, redisKey)

	if fnErr != nil {
		return fnErr
	}
	return wrap(err)
}

func (s *Store) DeleteRateLimit(ctx context.Context, key string) error {
	return wrap(s.redis.Del(ctx, s.rateLimitKey(key)).Err())
}

// DeleteExpiredRateLimits is a no-op: counters carry a key TTL at ExpiresAt.
func (s *Store) DeleteExpiredRateLimits(context.Context, time.Time, int) (int, error) {
	return 0, nil
}
