package pgstore

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/Masterminds/squirrel"
	"github.com/natedunn/convex-zen-sub000/seal"
	"github.com/natedunn/convex-zen-sub000/store"
)

const (
	usersTable    = "zen_users"
	accountsTable = "zen_accounts"
)

var userColumns = []string{
	"id", "email", "email_verified", "name", "image", "role",
	"banned", "ban_reason", "ban_expires", "created_at", "updated_at",
}

var accountColumns = []string{
	"id", "user_id", "provider_id", "account_id", "password_hash",
	"access_token", "refresh_token", "access_token_expires_at", "scope",
	"created_at", "updated_at",
}

func scanUser(row scanner, extra ...any) (*store.User, error) {
	var (
		u          store.User
		banExpires sql.NullTime
	)
	dest := []any{
		&u.ID, &u.Email, &u.EmailVerified, &u.Name, &u.Image, &u.Role,
		&u.Banned, &u.BanReason, &banExpires, &u.CreatedAt, &u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	u.BanExpires = timeOf(banExpires)
	return &u, nil
}

func scanAccount(row scanner) (*store.Account, error) {
	var (
		a                    store.Account
		access, refresh      string
		accessTokenExpiresAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.ProviderID, &a.AccountID, &a.PasswordHash,
		&access, &refresh, &accessTokenExpiresAt, &a.Scope,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if a.AccessToken, err = seal.Decode(access); err != nil {
		return nil, err
	}
	if a.RefreshToken, err = seal.Decode(refresh); err != nil {
		return nil, err
	}
	a.AccessTokenExpiresAt = timeOf(accessTokenExpiresAt)
	return &a, nil
}

func (s *Store) insertAccount(ctx context.Context, q dbtx, a *store.Account) error {
	_, err := s.exec(ctx, q, s.builder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			a.ID, a.UserID, a.ProviderID, a.AccountID, a.PasswordHash,
			seal.Encode(a.AccessToken), seal.Encode(a.RefreshToken),
			nullTime(a.AccessTokenExpiresAt), a.Scope,
			a.CreatedAt, a.UpdatedAt,
		))
	return err
}

func (s *Store) CreateUser(ctx context.Context, user *store.User, account *store.Account) error {
	err := s.withTx(ctx, func(ctx context.Context, tx dbtx) error {
		_, err := s.exec(ctx, tx, s.builder.Insert(usersTable).
			Columns(userColumns...).
			Values(
				user.ID, user.Email, user.EmailVerified, user.Name, user.Image, user.Role,
				user.Banned, user.BanReason, nullTime(user.BanExpires), user.CreatedAt, user.UpdatedAt,
			))
		if err != nil {
			return err
		}
		if account != nil {
			return s.insertAccount(ctx, tx, account)
		}
		return nil
	})
	return mapErr(err)
}

func (s *Store) getUser(ctx context.Context, where squirrel.Sqlizer) (*store.User, error) {
	row, err := s.queryRow(ctx, s.db, s.builder.Select(userColumns...).From(usersTable).Where(where))
	if err != nil {
		return nil, mapErr(err)
	}
	u, err := scanUser(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, squirrel.Eq{"id": id})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, squirrel.Eq{"email": email})
}

func (s *Store) UpdateUser(ctx context.Context, user *store.User) error {
	n, err := s.exec(ctx, s.db, s.builder.Update(usersTable).
		SetMap(map[string]any{
			"email":          user.Email,
			"email_verified": user.EmailVerified,
			"name":           user.Name,
			"image":          user.Image,
			"role":           user.Role,
			"banned":         user.Banned,
			"ban_reason":     user.BanReason,
			"ban_expires":    nullTime(user.BanExpires),
			"updated_at":     user.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": user.ID}))
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// BanUser updates the ban columns and purges sessions in one transaction.
func (s *Store) BanUser(ctx context.Context, user *store.User) (int, error) {
	var removed int64
	err := s.withTx(ctx, func(ctx context.Context, tx dbtx) error {
		n, err := s.exec(ctx, tx, s.builder.Update(usersTable).
			SetMap(map[string]any{
				"banned":      user.Banned,
				"ban_reason":  user.BanReason,
				"ban_expires": nullTime(user.BanExpires),
				"updated_at":  user.UpdatedAt,
			}).
			Where(squirrel.Eq{"id": user.ID}))
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		removed, err = s.exec(ctx, tx, s.builder.Delete(sessionsTable).Where(squirrel.Eq{"user_id": user.ID}))
		return err
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return int(removed), nil
}

// ListUsers pages by the creation sequence column. The cursor is the seq of
// the last user returned.
func (s *Store) ListUsers(ctx context.Context, limit int, cursor string) (*store.UserPage, error) {
	if limit <= 0 {
		return &store.UserPage{Cursor: cursor, IsDone: true}, nil
	}

	b := s.builder.Select(append(append([]string(nil), userColumns...), "seq")...).
		From(usersTable).
		OrderBy("seq").
		Limit(uint64(limit) + 1)
	if cursor != "" {
		after, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, store.ErrInvalidCursor
		}
		b = b.Where(squirrel.Gt{"seq": after})
	}

	rows, err := s.query(ctx, s.db, b)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	page := &store.UserPage{Cursor: cursor}
	var lastSeq int64
	more := false
	for rows.Next() {
		if len(page.Users) == limit {
			// The extra row only proves there is another page.
			more = true
			break
		}
		var seq int64
		u, err := scanUser(rows, &seq)
		if err != nil {
			return nil, mapErr(err)
		}
		page.Users = append(page.Users, u)
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}

	page.IsDone = !more
	if len(page.Users) > 0 {
		page.Cursor = strconv.FormatInt(lastSeq, 10)
	}
	return page, nil
}

// DeleteUser removes sessions, accounts and the user in one transaction.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(ctx context.Context, tx dbtx) error {
		row, err := s.queryRow(ctx, tx, s.builder.Select("id").From(usersTable).
			Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		var locked string
		if err := row.Scan(&locked); err != nil {
			return err
		}

		if _, err := s.exec(ctx, tx, s.builder.Delete(sessionsTable).Where(squirrel.Eq{"user_id": id})); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, s.builder.Delete(accountsTable).Where(squirrel.Eq{"user_id": id})); err != nil {
			return err
		}
		_, err = s.exec(ctx, tx, s.builder.Delete(usersTable).Where(squirrel.Eq{"id": id}))
		return err
	})
	return mapErr(err)
}

func (s *Store) CreateAccount(ctx context.Context, account *store.Account) error {
	return mapErr(s.insertAccount(ctx, s.db, account))
}

func (s *Store) GetAccountByProvider(ctx context.Context, providerID, accountID string) (*store.Account, error) {
	row, err := s.queryRow(ctx, s.db, s.builder.Select(accountColumns...).From(accountsTable).
		Where(squirrel.Eq{"provider_id": providerID, "account_id": accountID}))
	if err != nil {
		return nil, mapErr(err)
	}
	a, err := scanAccount(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *store.Account) error {
	n, err := s.exec(ctx, s.db, s.builder.Update(accountsTable).
		SetMap(map[string]any{
			"password_hash":           account.PasswordHash,
			"access_token":            seal.Encode(account.AccessToken),
			"refresh_token":           seal.Encode(account.RefreshToken),
			"access_token_expires_at": nullTime(account.AccessTokenExpiresAt),
			"scope":                   account.Scope,
			"updated_at":              account.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": account.ID}))
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListUserAccounts(ctx context.Context, userID string) ([]*store.Account, error) {
	rows, err := s.query(ctx, s.db, s.builder.Select(accountColumns...).From(accountsTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at"))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*store.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}
