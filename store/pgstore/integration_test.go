//go:build integration

package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/natedunn/convex-zen-sub000/store"
)

// Run with: ZEN_TEST_POSTGRES_DSN=postgres://... go test -tags integration ./store/pgstore
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("ZEN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ZEN_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func TestIntegrationUserLifecycle(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	id := uuid.NewString()
	email := id + "@example.com"
	u := &store.User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}
	a := &store.Account{ID: uuid.NewString(), UserID: id, ProviderID: store.CredentialProviderID, AccountID: id, PasswordHash: "h", CreatedAt: now, UpdatedAt: now}

	if err := s.CreateUser(ctx, u, a); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dup := &store.User{ID: uuid.NewString(), Email: email, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateUser(ctx, dup, nil); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	sess := &store.Session{
		ID: uuid.NewString(), UserID: id, TokenHash: uuid.NewString(),
		ExpiresAt: now.Add(time.Hour), AbsoluteExpiresAt: now.Add(24 * time.Hour),
		LastActiveAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := s.DeleteUser(ctx, id); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := s.GetSession(ctx, sess.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("session survived cascade: %v", err)
	}
	if _, err := s.GetAccountByProvider(ctx, store.CredentialProviderID, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("account survived cascade: %v", err)
	}
}

func TestIntegrationRateLimitRMW(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	key := "test:ip:" + uuid.NewString()

	const workers = 10
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			errs <- s.UpdateRateLimit(ctx, key, func(cur *store.RateLimit) (*store.RateLimit, error) {
				if cur == nil {
					return &store.RateLimit{WindowStart: time.Now(), Count: 1}, nil
				}
				cur.Count++
				return cur, nil
			})
		}()
	}
	for i := 0; i < workers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	rl, err := s.GetRateLimit(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rl.Count != workers {
		t.Fatalf("lost updates: count=%d", rl.Count)
	}
}
