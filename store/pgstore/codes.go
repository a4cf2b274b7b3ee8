package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/natedunn/convex-zen-sub000/store"
)

const (
	verificationsTable = "zen_verifications"
	oauthStatesTable   = "zen_oauth_states"
	rateLimitsTable    = "zen_rate_limits"
)

var verificationColumns = []string{"identifier", "type", "code_hash", "expires_at", "attempts", "created_at"}

var oauthStateColumns = []string{"state_hash", "provider_id", "code_verifier", "redirect_url", "expires_at", "created_at"}

var rateLimitColumns = []string{"key", "window_start", "count", "locked_until", "expires_at"}

func scanVerification(row scanner) (*store.Verification, error) {
	var (
		v   store.Verification
		typ string
	)
	if err := row.Scan(&v.Identifier, &typ, &v.CodeHash, &v.ExpiresAt, &v.Attempts, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Type = store.VerificationType(typ)
	return &v, nil
}

func scanRateLimit(row scanner) (*store.RateLimit, error) {
	var (
		rl                     store.RateLimit
		lockedUntil, expiresAt sql.NullTime
	)
	if err := row.Scan(&rl.Key, &rl.WindowStart, &rl.Count, &lockedUntil, &expiresAt); err != nil {
		return nil, err
	}
	rl.LockedUntil = timeOf(lockedUntil)
	rl.ExpiresAt = timeOf(expiresAt)
	return &rl, nil
}

// PutVerification upserts, replacing any earlier code for the same key.
func (s *Store) PutVerification(ctx context.Context, v *store.Verification) error {
	_, err := s.exec(ctx, s.db, s.builder.Insert(verificationsTable).
		Columns(verificationColumns...).
		Values(v.Identifier, string(v.Type), v.CodeHash, v.ExpiresAt, v.Attempts, v.CreatedAt).
		Suffix("ON CONFLICT (identifier, type) DO UPDATE SET " +
			"code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at, " +
			"attempts = EXCLUDED.attempts, created_at = EXCLUDED.created_at"))
	return mapErr(err)
}

func (s *Store) UpdateVerification(ctx context.Context, identifier string, typ store.VerificationType, fn store.VerificationUpdate) error {
	key := squirrel.Eq{"identifier": identifier, "type": string(typ)}

	var fnErr error
	err := s.withRetry(ctx, func(ctx context.Context, tx dbtx) error {
		fnErr = nil

		row, err := s.queryRow(ctx, tx, s.builder.Select(verificationColumns...).From(verificationsTable).
			Where(key).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		current, err := scanVerification(row)
		if errors.Is(err, sql.ErrNoRows) {
			current, err = nil, nil
		}
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}

		switch {
		case next == nil && current == nil:
			return nil
		case next == nil:
			_, err = s.exec(ctx, tx, s.builder.Delete(verificationsTable).Where(key))
			return err
		case current == nil:
			_, err = s.exec(ctx, tx, s.builder.Insert(verificationsTable).
				Columns(verificationColumns...).
				Values(identifier, string(typ), next.CodeHash, next.ExpiresAt, next.Attempts, next.CreatedAt))
			if isUniqueViolation(err) {
				return errInsertRace
			}
			return err
		default:
			_, err = s.exec(ctx, tx, s.builder.Update(verificationsTable).
				Set("code_hash", next.CodeHash).
				Set("expires_at", next.ExpiresAt).
				Set("attempts", next.Attempts).
				Where(key))
			return err
		}
	})

	if fnErr != nil {
		return fnErr
	}
	return mapErr(err)
}

func (s *Store) DeleteVerification(ctx context.Context, identifier string, typ store.VerificationType) error {
	_, err := s.exec(ctx, s.db, s.builder.Delete(verificationsTable).
		Where(squirrel.Eq{"identifier": identifier, "type": string(typ)}))
	return mapErr(err)
}

func (s *Store) DeleteExpiredVerifications(ctx context.Context, before time.Time, limit int) (int, error) {
	return s.deleteBatch(ctx, verificationsTable, "identifier, type", "expires_at", before, limit)
}

func (s *Store) PutOAuthState(ctx context.Context, st *store.OAuthState) error {
	_, err := s.exec(ctx, s.db, s.builder.Insert(oauthStatesTable).
		Columns(oauthStateColumns...).
		Values(st.StateHash, st.ProviderID, st.CodeVerifier, st.RedirectURL, st.ExpiresAt, st.CreatedAt))
	return mapErr(err)
}

// ConsumeOAuthState deletes the row and returns it in one statement.
func (s *Store) ConsumeOAuthState(ctx context.Context, stateHash string) (*store.OAuthState, error) {
	row, err := s.queryRow(ctx, s.db, s.builder.Delete(oauthStatesTable).
		Where(squirrel.Eq{"state_hash": stateHash}).
		Suffix("RETURNING state_hash, provider_id, code_verifier, redirect_url, expires_at, created_at"))
	if err != nil {
		return nil, mapErr(err)
	}

	var st store.OAuthState
	if err := row.Scan(&st.StateHash, &st.ProviderID, &st.CodeVerifier, &st.RedirectURL, &st.ExpiresAt, &st.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &st, nil
}

func (s *Store) DeleteExpiredOAuthStates(ctx context.Context, before time.Time, limit int) (int, error) {
	return s.deleteBatch(ctx, oauthStatesTable, "state_hash", "expires_at", before, limit)
}

func (s *Store) GetRateLimit(ctx context.Context, key string) (*store.RateLimit, error) {
	row, err := s.queryRow(ctx, s.db, s.builder.Select(rateLimitColumns...).From(rateLimitsTable).
		Where(squirrel.Eq{"key": key}))
	if err != nil {
		return nil, mapErr(err)
	}
	rl, err := scanRateLimit(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return rl, nil
}

func (s *Store) UpdateRateLimit(ctx context.Context, key string, fn store.RateLimitUpdate) error {
	var fnErr error
	err := s.withRetry(ctx, func(ctx context.Context, tx dbtx) error {
		fnErr = nil

		row, err := s.queryRow(ctx, tx, s.builder.Select(rateLimitColumns...).From(rateLimitsTable).
			Where(squirrel.Eq{"key": key}).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		current, err := scanRateLimit(row)
		if errors.Is(err, sql.ErrNoRows) {
			current, err = nil, nil
		}
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}

		switch {
		case next == nil && current == nil:
			return nil
		case next == nil:
			_, err = s.exec(ctx, tx, s.builder.Delete(rateLimitsTable).Where(squirrel.Eq{"key": key}))
			return err
		case current == nil:
			_, err = s.exec(ctx, tx, s.builder.Insert(rateLimitsTable).
				Columns(rateLimitColumns...).
				Values(key, next.WindowStart, next.Count, nullTime(next.LockedUntil), nullTime(next.ExpiresAt)))
			if isUniqueViolation(err) {
				return errInsertRace
			}
			return err
		default:
			_, err = s.exec(ctx, tx, s.builder.Update(rateLimitsTable).
				Set("window_start", next.WindowStart).
				Set("count", next.Count).
				Set("locked_until", nullTime(next.LockedUntil)).
				Set("expires_at", nullTime(next.ExpiresAt)).
				Where(squirrel.Eq{"key": key}))
			return err
		}
	})

	if fnErr != nil {
		return fnErr
	}
	return mapErr(err)
}

func (s *Store) DeleteRateLimit(ctx context.Context, key string) error {
	_, err := s.exec(ctx, s.db, s.builder.Delete(rateLimitsTable).Where(squirrel.Eq{"key": key}))
	return mapErr(err)
}

func (s *Store) DeleteExpiredRateLimits(ctx context.Context, before time.Time, limit int) (int, error) {
	return s.deleteBatch(ctx, rateLimitsTable, "key", "expires_at", before, limit)
}
