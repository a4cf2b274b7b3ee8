package redisstore

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/redis/go-redis/v9"
)

func (s *Store) CreateUser(ctx context.Context, user *store.User, account *store.Account) error {
	userData, err := encodeUser(user)
	if err != nil {
		return wrap(err)
	}

	emailKey := s.userEmailKey(user.Email)
	watched := []string{emailKey, s.userKey(user.ID)}

	var accountData []byte
	var providerKey string
	if account != nil {
		accountData, err = encodeAccount(account)
		if err != nil {
			return wrap(err)
		}
		providerKey = s.accountProviderKey(account.ProviderID, account.AccountID)
		watched = append(watched, providerKey)
	}

	err = s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, watched...).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrConflict
		}

		seq, err := tx.Incr(ctx, s.usersSeqKey()).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.userKey(user.ID), userData, 0)
			pipe.Set(ctx, emailKey, user.ID, 0)
			pipe.ZAdd(ctx, s.usersIndexKey(), redis.Z{Score: float64(seq), Member: user.ID})
			if account != nil {
				pipe.Set(ctx, s.accountKey(account.ID), accountData, 0)
				pipe.Set(ctx, providerKey, account.ID, 0)
				pipe.SAdd(ctx, s.userAccountsKey(user.ID), account.ID)
			}
			return nil
		})
		return err
	}, watched...)

	return wrap(err)
}

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	data, err := s.redis.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	u, err := decodeUser(data)
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	id, err := s.redis.Get(ctx, s.userEmailKey(email)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return s.GetUser(ctx, id)
}

// UpdateUser overwrites the user record, moving the email index when the
// email changed.
func (s *Store) UpdateUser(ctx context.Context, user *store.User) error {
	data, err := encodeUser(user)
	if err != nil {
		return wrap(err)
	}

	key := s.userKey(user.ID)
	newEmailKey := s.userEmailKey(user.Email)

	err = s.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		current, err := decodeUser(raw)
		if err != nil {
			return err
		}

		emailChanged := current.Email != user.Email
		if emailChanged {
			owner, err := tx.Get(ctx, newEmailKey).Result()
			switch {
			case err == nil && owner != user.ID:
				return store.ErrConflict
			case err != nil && !errors.Is(err, redis.Nil):
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if emailChanged {
				pipe.Del(ctx, s.userEmailKey(current.Email))
				pipe.Set(ctx, newEmailKey, user.ID, 0)
			}
			return nil
		})
		return err
	}, key, newEmailKey)

	return wrap(err)
}

// BanUser copies the ban fields onto the stored user and drops the user's
// sessions in the same MULTI/EXEC.
func (s *Store) BanUser(ctx context.Context, user *store.User) (int, error) {
	key := s.userKey(user.ID)
	sessionsKey := s.userSessionsKey(user.ID)
	count := 0

	err := s.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		current, err := decodeUser(raw)
		if err != nil {
			return err
		}
		current.Banned = user.Banned
		current.BanReason = user.BanReason
		current.BanExpires = user.BanExpires
		current.UpdatedAt = user.UpdatedAt
		data, err := encodeUser(current)
		if err != nil {
			return err
		}

		sessions, err := s.loadSessions(ctx, tx, sessionsKey)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			for _, sess := range sessions {
				s.queueSessionDelete(ctx, pipe, sess)
			}
			pipe.Del(ctx, sessionsKey)
			return nil
		})
		if err == nil {
			count = len(sessions)
		}
		return err
	}, key, sessionsKey)

	return count, wrap(err)
}

// ListUsers walks the creation-sequence index. The cursor is the sequence
// number of the last user returned.
func (s *Store) ListUsers(ctx context.Context, limit int, cursor string) (*store.UserPage, error) {
	if limit <= 0 {
		return &store.UserPage{Cursor: cursor, IsDone: true}, nil
	}

	lower := "-inf"
	if cursor != "" {
		if _, err := strconv.ParseInt(cursor, 10, 64); err != nil {
			return nil, store.ErrInvalidCursor
		}
		lower = "(" + cursor
	}

	entries, err := s.redis.ZRangeByScoreWithScores(ctx, s.usersIndexKey(), &redis.ZRangeBy{
		Min:   lower,
		Max:   "+inf",
		Count: int64(limit) + 1,
	}).Result()
	if err != nil {
		return nil, wrap(err)
	}

	page := &store.UserPage{Cursor: cursor, IsDone: len(entries) <= limit}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return page, nil
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = s.userKey(e.Member.(string))
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap(err)
	}

	page.Users = make([]*store.User, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Deleted between the index read and the fetch.
			continue
		}
		u, err := decodeUser([]byte(raw))
		if err != nil {
			return nil, wrap(err)
		}
		page.Users = append(page.Users, u)
	}
	page.Cursor = strconv.FormatInt(int64(entries[len(entries)-1].Score), 10)

	return page, nil
}

// DeleteUser removes sessions, then accounts, then the user in one MULTI/EXEC.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	userKey := s.userKey(id)
	sessionsKey := s.userSessionsKey(id)
	accountsKey := s.userAccountsKey(id)

	err := s.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, userKey).Bytes()
		if err != nil {
			return err
		}
		user, err := decodeUser(raw)
		if err != nil {
			return err
		}

		sessions, err := s.loadSessions(ctx, tx, sessionsKey)
		if err != nil {
			return err
		}
		accounts, err := s.loadAccounts(ctx, tx, accountsKey)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, sess := range sessions {
				s.queueSessionDelete(ctx, pipe, sess)
			}
			pipe.Del(ctx, sessionsKey)
			for _, acct := range accounts {
				pipe.Del(ctx, s.accountKey(acct.ID), s.accountProviderKey(acct.ProviderID, acct.AccountID))
			}
			pipe.Del(ctx, accountsKey)
			pipe.Del(ctx, userKey, s.userEmailKey(user.Email))
			pipe.ZRem(ctx, s.usersIndexKey(), id)
			return nil
		})
		return err
	}, userKey, sessionsKey, accountsKey)

	return wrap(err)
}

func (s *Store) CreateAccount(ctx context.Context, account *store.Account) error {
	data, err := encodeAccount(account)
	if err != nil {
		return wrap(err)
	}

	userKey := s.userKey(account.UserID)
	providerKey := s.accountProviderKey(account.ProviderID, account.AccountID)

	err = s.watch(ctx, func(tx *redis.Tx) error {
		userExists, err := tx.Exists(ctx, userKey).Result()
		if err != nil {
			return err
		}
		if userExists == 0 {
			return store.ErrNotFound
		}
		taken, err := tx.Exists(ctx, providerKey).Result()
		if err != nil {
			return err
		}
		if taken > 0 {
			return store.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.accountKey(account.ID), data, 0)
			pipe.Set(ctx, providerKey, account.ID, 0)
			pipe.SAdd(ctx, s.userAccountsKey(account.UserID), account.ID)
			return nil
		})
		return err
	}, userKey, providerKey)

	return wrap(err)
}

func (s *Store) GetAccountByProvider(ctx context.Context, providerID, accountID string) (*store.Account, error) {
	id, err := s.redis.Get(ctx, s.accountProviderKey(providerID, accountID)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	data, err := s.redis.Get(ctx, s.accountKey(id)).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	a, err := decodeAccount(data)
	if err != nil {
		return nil, wrap(err)
	}
	return a, nil
}

// UpdateAccount overwrites an existing account. ProviderID and AccountID are
// immutable and not re-indexed.
func (s *Store) UpdateAccount(ctx context.Context, account *store.Account) error {
	data, err := encodeAccount(account)
	if err != nil {
		return wrap(err)
	}

	ok, err := s.redis.SetXX(ctx, s.accountKey(account.ID), data, 0).Result()
	if err != nil {
		return wrap(err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListUserAccounts(ctx context.Context, userID string) ([]*store.Account, error) {
	accounts, err := s.loadAccounts(ctx, s.redis, s.userAccountsKey(userID))
	if err != nil {
		return nil, wrap(err)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (s *Store) loadAccounts(ctx context.Context, c redis.Cmdable, setKey string) ([]*store.Account, error) {
	ids, err := c.SMembers(ctx, setKey).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.accountKey(id)
	}
	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*store.Account, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		a, err := decodeAccount([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
