package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/natedunn/convex-zen-sub000/store"
)

const defaultMaxRetries = 8

// ErrUnavailable wraps database failures that are not a store sentinel.
var ErrUnavailable = errors.New("pgstore: database unavailable")

// errInsertRace marks a read-modify-write whose insert lost to a concurrent
// writer of the same key. The transaction is retried.
var errInsertRace = errors.New("pgstore: insert race")

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store implements [store.Store] on PostgreSQL.
type Store struct {
	db         *sql.DB
	builder    squirrel.StatementBuilderType
	maxRetries int
}

var _ store.Store = (*Store)(nil)

// Open connects with the pgx driver and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return db, nil
}

// New wraps an open database. Run Migrate before first use.
func New(db *sql.DB) *Store {
	return &Store{
		db:         db,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		maxRetries: defaultMaxRetries,
	}
}

// withTx runs fn in a transaction, committing on success and rolling back on
// error or panic.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx dbtx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// withRetry reruns a transaction that lost an insert race.
func (s *Store) withRetry(ctx context.Context, fn func(ctx context.Context, tx dbtx) error) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.withTx(ctx, fn)
		if !errors.Is(err, errInsertRace) {
			return err
		}
	}
	return store.ErrConflict
}

func (s *Store) exec(ctx context.Context, q dbtx, b squirrel.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql: %w", err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryRow(ctx context.Context, q dbtx, b squirrel.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}
	return q.QueryRowContext(ctx, query, args...), nil
}

func (s *Store) query(ctx context.Context, q dbtx, b squirrel.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}
	return q.QueryContext(ctx, query, args...)
}

// mapErr translates driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrInvalidCursor) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrConflict
		case "23503":
			return store.ErrNotFound
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func timeOf(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time
}

// deleteBatch removes at most limit rows of table whose column is at or
// before before, oldest first. key lists the primary key columns.
func (s *Store) deleteBatch(ctx context.Context, table, key, column string, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	sub := fmt.Sprintf("(%s) IN (SELECT %s FROM %s WHERE %s <= ? ORDER BY %s LIMIT ?)", key, key, table, column, column)
	n, err := s.exec(ctx, s.db, s.builder.Delete(table).Where(squirrel.Expr(sub, before, limit)))
	if err != nil {
		return 0, mapErr(err)
	}
	return int(n), nil
}
