package pgstore

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/natedunn/convex-zen-sub000/store"
)

const sessionsTable = "zen_sessions"

var sessionColumns = []string{
	"id", "user_id", "token_hash", "expires_at", "absolute_expires_at",
	"last_active_at", "ip_address", "user_agent", "created_at", "updated_at",
}

func scanSession(row scanner) (*store.Session, error) {
	var sess store.Session
	if err := row.Scan(
		&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.AbsoluteExpiresAt,
		&sess.LastActiveAt, &sess.IPAddress, &sess.UserAgent, &sess.CreatedAt, &sess.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateSession inserts the session. A missing user surfaces as a foreign key
// violation and maps to store.ErrNotFound.
func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	_, err := s.exec(ctx, s.db, s.builder.Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, sess.AbsoluteExpiresAt,
			sess.LastActiveAt, sess.IPAddress, sess.UserAgent, sess.CreatedAt, sess.UpdatedAt,
		))
	return mapErr(err)
}

func (s *Store) getSession(ctx context.Context, where squirrel.Sqlizer) (*store.Session, error) {
	row, err := s.queryRow(ctx, s.db, s.builder.Select(sessionColumns...).From(sessionsTable).Where(where))
	if err != nil {
		return nil, mapErr(err)
	}
	sess, err := scanSession(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	return s.getSession(ctx, squirrel.Eq{"id": id})
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*store.Session, error) {
	return s.getSession(ctx, squirrel.Eq{"token_hash": tokenHash})
}

// UpdateSession only touches the mutable lifetime fields of an existing row.
func (s *Store) UpdateSession(ctx context.Context, sess *store.Session) error {
	n, err := s.exec(ctx, s.db, s.builder.Update(sessionsTable).
		Set("expires_at", sess.ExpiresAt).
		Set("last_active_at", sess.LastActiveAt).
		Set("updated_at", sess.UpdatedAt).
		Where(squirrel.Eq{"id": sess.ID}))
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.exec(ctx, s.db, s.builder.Delete(sessionsTable).Where(squirrel.Eq{"id": id}))
	return mapErr(err)
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	n, err := s.exec(ctx, s.db, s.builder.Delete(sessionsTable).Where(squirrel.Eq{"user_id": userID}))
	if err != nil {
		return 0, mapErr(err)
	}
	return int(n), nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time, limit int) (int, error) {
	return s.deleteBatch(ctx, sessionsTable, "id", "expires_at", before, limit)
}
