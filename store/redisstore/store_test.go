package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/natedunn/convex-zen-sub000/seal"
	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, opts...), mr
}

func testUser(id, email string) *store.User {
	now := time.Now()
	return &store.User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}
}

func credentialAccount(userID string) *store.Account {
	now := time.Now()
	return &store.Account{
		ID:           "acct-" + userID,
		UserID:       userID,
		ProviderID:   store.CredentialProviderID,
		AccountID:    userID,
		PasswordHash: "$argon2id$placeholder",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testSession(id, userID, tokenHash string, expires time.Time) *store.Session {
	now := time.Now()
	return &store.Session{
		ID:                id,
		UserID:            userID,
		TokenHash:         tokenHash,
		ExpiresAt:         expires,
		AbsoluteExpiresAt: now.Add(24 * time.Hour),
		LastActiveAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCreateUserWithAccountAndLookup(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	u := testUser("u1", "a@example.com")
	if err := s.CreateUser(ctx, u, credentialAccount("u1")); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != "u1" || !got.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("unexpected user %+v", got)
	}

	acct, err := s.GetAccountByProvider(ctx, store.CredentialProviderID, "u1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct.UserID != "u1" || acct.PasswordHash == "" {
		t.Fatalf("unexpected account %+v", acct)
	}
}

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testUser("u1", "a@example.com"), nil); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err := s.CreateUser(ctx, testUser("u2", "a@example.com"), nil)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.GetUser(ctx, "u2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected second user to be absent, got %v", err)
	}
}

func TestCreateAccountRequiresUserAndUniqueProvider(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	acct := &store.Account{ID: "a1", UserID: "missing", ProviderID: "github", AccountID: "42"}
	if err := s.CreateAccount(ctx, acct); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}

	if err := s.CreateUser(ctx, testUser("u1", "a@example.com"), nil); err != nil {
		t.Fatalf("create user: %v", err)
	}
	acct.UserID = "u1"
	acct.AccessToken = seal.Plain("legacy")
	if err := s.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("create account: %v", err)
	}

	dup := &store.Account{ID: "a2", UserID: "u1", ProviderID: "github", AccountID: "42"}
	if err := s.CreateAccount(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := s.GetAccountByProvider(ctx, "github", "42")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.AccessToken != seal.Plain("legacy") {
		t.Fatalf("expected plain token to round-trip, got %#v", got.AccessToken)
	}
}

func TestUpdateAccountMissing(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateAccount(context.Background(), &store.Account{ID: "nope"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUsersPaginatesInCreationOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ids := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, id := range ids {
		if err := s.CreateUser(ctx, testUser(id, id+"@example.com"), nil); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	var seen []string
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("pagination did not terminate")
		}
		page, err := s.ListUsers(ctx, 2, cursor)
		if err != nil {
			t.Fatalf("list users: %v", err)
		}
		for _, u := range page.Users {
			seen = append(seen, u.ID)
		}
		cursor = page.Cursor
		if page.IsDone {
			break
		}
	}

	if len(seen) != len(ids) {
		t.Fatalf("expected %d users, got %v", len(ids), seen)
	}
	for i := range ids {
		if seen[i] != ids[i] {
			t.Fatalf("order mismatch: %v", seen)
		}
	}

	if _, err := s.ListUsers(ctx, 2, "not-a-cursor"); !errors.Is(err, store.ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testUser("u1", "a@example.com"), credentialAccount("u1")); err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, id := range []string{"s1", "s2"} {
		if err := s.CreateSession(ctx, testSession(id, "u1", "hash-"+id, time.Now().Add(time.Hour))); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	if err := s.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if _, err := s.GetSessionByTokenHash(ctx, "hash-s1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := s.GetAccountByProvider(ctx, store.CredentialProviderID, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected account gone, got %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "a@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "zen:users:seq" {
		t.Fatalf("expected only the sequence key to remain, got %v", keys)
	}

	if err := s.DeleteUser(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSessionUpdateNeverRecreates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testUser("u1", "a@example.com"), nil); err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess := testSession("s1", "u1", "h1", time.Now().Add(time.Hour))
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	sess.ExpiresAt = sess.ExpiresAt.Add(time.Hour)
	if err := s.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("update session: %v", err)
	}
	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("expected updated expiry %v, got %v", sess.ExpiresAt, got.ExpiresAt)
	}

	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("second delete should be idempotent: %v", err)
	}
	if err := s.UpdateSession(ctx, sess); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateSessionRequiresUser(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.CreateSession(context.Background(), testSession("s1", "ghost", "h1", time.Now().Add(time.Hour)))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteUserSessionsAndExpiredSweep(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"u1", "u2"} {
		if err := s.CreateUser(ctx, testUser(id, id+"@example.com"), nil); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	_ = s.CreateSession(ctx, testSession("s1", "u1", "h1", now.Add(time.Hour)))
	_ = s.CreateSession(ctx, testSession("s2", "u1", "h2", now.Add(time.Hour)))
	_ = s.CreateSession(ctx, testSession("s3", "u2", "h3", now.Add(-time.Minute)))
	_ = s.CreateSession(ctx, testSession("s4", "u2", "h4", now.Add(time.Hour)))

	n, err := s.DeleteUserSessions(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deleted sessions, got n=%d err=%v", n, err)
	}

	n, err = s.DeleteExpiredSessions(ctx, now, 100)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 expired session, got n=%d err=%v", n, err)
	}
	if _, err := s.GetSession(ctx, "s4"); err != nil {
		t.Fatalf("live session must survive sweep: %v", err)
	}
}

func TestBanUserDropsSessionsAtomically(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	u := testUser("u1", "a@example.com")
	u.Name = "Ada"
	if err := s.CreateUser(ctx, u, nil); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_ = s.CreateSession(ctx, testSession("s1", "u1", "h1", now.Add(time.Hour)))
	_ = s.CreateSession(ctx, testSession("s2", "u1", "h2", now.Add(time.Hour)))

	ban := &store.User{ID: "u1", Banned: true, BanReason: "spam", UpdatedAt: now}
	n, err := s.BanUser(ctx, ban)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 sessions removed, got n=%d err=%v", n, err)
	}

	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.Banned || got.BanReason != "spam" || got.Email != "a@example.com" || got.Name != "Ada" {
		t.Fatalf("ban must only touch ban fields, got %+v", got)
	}
	if _, err := s.GetSessionByTokenHash(ctx, "h1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}

	if _, err := s.BanUser(ctx, &store.User{ID: "ghost", Banned: true}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing user, got %v", err)
	}
}

func TestUpdateVerificationSemantics(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	v := &store.Verification{
		Identifier: "a@example.com",
		Type:       store.VerificationEmail,
		CodeHash:   "h",
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
	}
	if err := s.PutVerification(ctx, v); err != nil {
		t.Fatalf("put verification: %v", err)
	}

	sentinel := errors.New("abort")
	err := s.UpdateVerification(ctx, v.Identifier, v.Type, func(cur *store.Verification) (*store.Verification, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected update fn error to pass through, got %v", err)
	}
	if _, err := peekVerification(ctx, s, v.Identifier, v.Type); err != nil {
		t.Fatalf("failed update must not delete: %v", err)
	}

	err = s.UpdateVerification(ctx, v.Identifier, v.Type, func(cur *store.Verification) (*store.Verification, error) {
		cur.Attempts++
		return cur, nil
	})
	if err != nil {
		t.Fatalf("increment attempts: %v", err)
	}
	got, _ := peekVerification(ctx, s, v.Identifier, v.Type)
	if got.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", got.Attempts)
	}

	err = s.UpdateVerification(ctx, v.Identifier, v.Type, func(cur *store.Verification) (*store.Verification, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("delete via update: %v", err)
	}
	if _, err := peekVerification(ctx, s, v.Identifier, v.Type); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteExpiredVerifications(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.PutVerification(ctx, &store.Verification{Identifier: "old@example.com", Type: store.VerificationPasswordReset, ExpiresAt: now.Add(-time.Minute)})
	_ = s.PutVerification(ctx, &store.Verification{Identifier: "new@example.com", Type: store.VerificationPasswordReset, ExpiresAt: now.Add(time.Minute)})

	n, err := s.DeleteExpiredVerifications(ctx, now, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deleted, got n=%d err=%v", n, err)
	}
	if _, err := peekVerification(ctx, s, "new@example.com", store.VerificationPasswordReset); err != nil {
		t.Fatalf("live code must survive: %v", err)
	}
}

func TestConsumeOAuthStateIsSingleUse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st := &store.OAuthState{StateHash: "sh", ProviderID: "github", CodeVerifier: "v", ExpiresAt: time.Now().Add(10 * time.Minute)}
	if err := s.PutOAuthState(ctx, st); err != nil {
		t.Fatalf("put state: %v", err)
	}

	got, err := s.ConsumeOAuthState(ctx, "sh")
	if err != nil || got.CodeVerifier != "v" {
		t.Fatalf("first consume: %+v, %v", got, err)
	}
	if _, err := s.ConsumeOAuthState(ctx, "sh"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}
}

func TestUpdateRateLimitConcurrentIncrements(t *testing.T) {
	s, _ := newTestStore(t, WithMaxRetries(64))
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.UpdateRateLimit(ctx, "sign-in:ip:10.0.0.1", func(cur *store.RateLimit) (*store.RateLimit, error) {
				if cur == nil {
					return &store.RateLimit{WindowStart: time.Now(), Count: 1, ExpiresAt: time.Now().Add(time.Minute)}, nil
				}
				cur.Count++
				return cur, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("update rate limit: %v", err)
		}
	}

	rl, err := s.GetRateLimit(ctx, "sign-in:ip:10.0.0.1")
	if err != nil {
		t.Fatalf("get rate limit: %v", err)
	}
	if rl.Count != workers {
		t.Fatalf("expected count %d, got %d", workers, rl.Count)
	}
}

func TestKeyPrefix(t *testing.T) {
	s, mr := newTestStore(t, WithPrefix("tenant-a"))
	if err := s.DeleteRateLimit(context.Background(), "x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.UpdateRateLimit(context.Background(), "x", func(*store.RateLimit) (*store.RateLimit, error) {
		return &store.RateLimit{Count: 1}, nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !mr.Exists("tenant-a:ratelimit:x") {
		t.Fatalf("expected prefixed key, have %v", mr.Keys())
	}
}

// peekVerification reads a record through UpdateVerification, writing it back
// unchanged.
func peekVerification(ctx context.Context, s *Store, identifier string, typ store.VerificationType) (*store.Verification, error) {
	var got *store.Verification
	err := s.UpdateVerification(ctx, identifier, typ, func(cur *store.Verification) (*store.Verification, error) {
		got = cur
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, store.ErrNotFound
	}
	return got, nil
}
