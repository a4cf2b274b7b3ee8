package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/redis/go-redis/v9"
)

// CreateSession stores the session and its token index. Keys expire at the
// absolute cap; sliding expiry is enforced by the engine and by cleanup.
func (s *Store) CreateSession(ctx context.Context, session *store.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return wrap(err)
	}

	userKey := s.userKey(session.UserID)
	ttl := s.ttlUntil(session.AbsoluteExpiresAt)

	err = s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, userKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.sessionKey(session.ID), data, ttl)
			pipe.Set(ctx, s.sessionTokenKey(session.TokenHash), session.ID, ttl)
			pipe.SAdd(ctx, s.userSessionsKey(session.UserID), session.ID)
			pipe.ZAdd(ctx, s.sessionsExpiryKey(), redis.Z{Score: score(session.ExpiresAt), Member: session.ID})
			return nil
		})
		return err
	}, userKey)

	return wrap(err)
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	sess, err := decodeSession(data)
	if err != nil {
		return nil, wrap(err)
	}
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*store.Session, error) {
	id, err := s.redis.Get(ctx, s.sessionTokenKey(tokenHash)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return s.GetSession(ctx, id)
}

func (s *Store) UpdateSession(ctx context.Context, session *store.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return wrap(err)
	}

	key := s.sessionKey(session.ID)

	err = s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			pipe.ZAdd(ctx, s.sessionsExpiryKey(), redis.Z{Score: score(session.ExpiresAt), Member: session.ID})
			return nil
		})
		return err
	}, key)

	return wrap(err)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.deleteSession(ctx, id, time.Time{})
	return wrap(err)
}

// deleteSession removes one session and its indexes. When expiredBy is
// non-zero the session is only removed if its sliding expiry is at or before
// expiredBy. The bool reports whether a stored session was deleted.
func (s *Store) deleteSession(ctx context.Context, id string, expiredBy time.Time) (bool, error) {
	key := s.sessionKey(id)
	deleted := false

	err := s.watch(ctx, func(tx *redis.Tx) error {
		deleted = false

		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// Already gone, possibly by TTL. Drop the dangling index entry.
			return tx.ZRem(ctx, s.sessionsExpiryKey(), id).Err()
		}
		if err != nil {
			return err
		}
		sess, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if !expiredBy.IsZero() && sess.ExpiresAt.After(expiredBy) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueSessionDelete(ctx, pipe, sess)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)

	return deleted, err
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	setKey := s.userSessionsKey(userID)
	count := 0

	err := s.watch(ctx, func(tx *redis.Tx) error {
		sessions, err := s.loadSessions(ctx, tx, setKey)
		if err != nil {
			return err
		}
		ids, err := tx.SMembers(ctx, setKey).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, sess := range sessions {
				s.queueSessionDelete(ctx, pipe, sess)
			}
			if len(ids) > 0 {
				members := make([]interface{}, len(ids))
				for i, id := range ids {
					members[i] = id
				}
				pipe.ZRem(ctx, s.sessionsExpiryKey(), members...)
			}
			pipe.Del(ctx, setKey)
			return nil
		})
		if err == nil {
			count = len(sessions)
		}
		return err
	}, setKey)

	return count, wrap(err)
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time, limit int) (int, error) {
	ids, err := s.expiredMembers(ctx, s.sessionsExpiryKey(), before, limit)
	if err != nil {
		return 0, wrap(err)
	}

	deleted := 0
	for _, id := range ids {
		ok, err := s.deleteSession(ctx, id, before)
		if err != nil {
			return deleted, wrap(err)
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) queueSessionDelete(ctx context.Context, pipe redis.Pipeliner, sess *store.Session) {
	pipe.Del(ctx, s.sessionKey(sess.ID), s.sessionTokenKey(sess.TokenHash))
	pipe.SRem(ctx, s.userSessionsKey(sess.UserID), sess.ID)
	pipe.ZRem(ctx, s.sessionsExpiryKey(), sess.ID)
}

func (s *Store) loadSessions(ctx context.Context, c redis.Cmdable, setKey string) ([]*store.Session, error) {
	ids, err := c.SMembers(ctx, setKey).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*store.Session, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		sess, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}
