package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore(t.Context(), DriverSQLite, filepath.Join(t.TempDir(), "store.db"), 1, 1)
	if err != nil {
		t.Fatalf("OpenSQLStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)
	s := NewRedisSessionStore(goredis.NewClient(&goredis.Options{Addr: mini.Addr()}), "session", ttl)
	t.Cleanup(func() { _ = s.Close() })
	return s, mini
}

// testSessionStoreContract exercises the behavior every SessionStore shares.
// Sessions reference u1, which must already exist where the store enforces it.
func testSessionStoreContract(t *testing.T, s SessionStore) {
	ctx := t.Context()
	created := testEpoch.Truncate(timeResolution)

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}
	rec := SessionRecord{SessionID: "s1", UserID: "u1", CreatedAt: created}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, SessionRecord{SessionID: "s1", UserID: "u1", CreatedAt: created.Add(time.Minute)}); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("Put duplicate: want ErrSessionExists, got %v", err)
	}
	got, ok, err := s.Get(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.UserID != "u1" || !got.CreatedAt.Equal(created) || got.SessionID != "s1" {
		t.Fatalf("Get returned %+v", got)
	}
	if deleted, err := s.Delete(ctx, "s1"); err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	if deleted, err := s.Delete(ctx, "s1"); err != nil || deleted {
		t.Fatalf("Delete again: deleted=%v err=%v", deleted, err)
	}
	if _, ok, _ := s.Get(ctx, "s1"); ok {
		t.Fatalf("record still present after Delete")
	}
}

// testUserStoreContract exercises the behavior every UserStore shares.
func testUserStoreContract(t *testing.T, s UserStore) {
	ctx := t.Context()
	rec := UserRecord{ID: "u1", Email: "Ann@example.com", HashedPassword: "h1", CreatedAt: testEpoch}
	if err := s.AddUser(ctx, rec); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := s.AddUser(ctx, UserRecord{ID: "u2", Email: "Ann@example.com", HashedPassword: "h2", CreatedAt: testEpoch}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate email: want ErrUserExists, got %v", err)
	}

	got, ok, err := s.FindUser(ctx, ByEmail, "Ann@example.com")
	if err != nil || !ok || got.ID != "u1" || got.HashedPassword != "h1" {
		t.Fatalf("FindUser by email: %+v ok=%v err=%v", got, ok, err)
	}
	if !got.CreatedAt.Equal(testEpoch) {
		t.Fatalf("CreatedAt: %v", got.CreatedAt)
	}
	if _, ok, _ := s.FindUser(ctx, ByEmail, "ann@example.com"); ok {
		t.Fatalf("email match must be case-sensitive")
	}
	if _, ok, _ := s.FindUser(ctx, BySessionID, ""); ok {
		t.Fatalf("empty value must never match")
	}

	sid, tok := "sess-1", "tok-1"
	if err := s.UpdateUser(ctx, "u1", UserUpdate{SessionID: &sid, ResetToken: &tok}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	for key, value := range map[LookupKey]string{ByID: "u1", BySessionID: sid, ByResetToken: tok} {
		if got, ok, err := s.FindUser(ctx, key, value); err != nil || !ok || got.ID != "u1" {
			t.Fatalf("FindUser %s=%q: ok=%v err=%v", key, value, ok, err)
		}
	}

	wrong := "other"
	pw := "h2"
	if err := s.UpdateUser(ctx, "u1", UserUpdate{HashedPassword: &pw, MatchResetToken: &wrong}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("mismatched token: want ErrUserNotFound, got %v", err)
	}
	empty := ""
	if err := s.UpdateUser(ctx, "u1", UserUpdate{HashedPassword: &pw, ResetToken: &empty, MatchResetToken: &tok}); err != nil {
		t.Fatalf("conditional update: %v", err)
	}
	if _, ok, _ := s.FindUser(ctx, ByResetToken, tok); ok {
		t.Fatalf("cleared token still matches")
	}
	if got, _, _ := s.FindUser(ctx, ByID, "u1"); got.HashedPassword != "h2" || got.ResetToken != "" {
		t.Fatalf("after update: %+v", got)
	}
	if err := s.UpdateUser(ctx, "nobody", UserUpdate{HashedPassword: &pw}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: want ErrUserNotFound, got %v", err)
	}
}

func TestMemoryStores(t *testing.T) {
	t.Run("users", func(t *testing.T) { testUserStoreContract(t, NewMemoryUserStore()) })
	t.Run("sessions", func(t *testing.T) { testSessionStoreContract(t, NewMemorySessionStore()) })
}

func TestSQLStore(t *testing.T) {
	t.Run("users", func(t *testing.T) { testUserStoreContract(t, newTestSQLStore(t)) })
	t.Run("sessions", func(t *testing.T) {
		s := newTestSQLStore(t)
		if err := s.AddUser(t.Context(), UserRecord{ID: "u1", Email: "u1@example.com", HashedPassword: "h", CreatedAt: testEpoch}); err != nil {
			t.Fatalf("AddUser: %v", err)
		}
		testSessionStoreContract(t, s)
	})
}

func TestRedisSessionStore(t *testing.T) {
	s, mini := newTestRedisStore(t, time.Hour)
	testSessionStoreContract(t, s)

	if err := s.Put(t.Context(), SessionRecord{SessionID: "s2", UserID: "u1", CreatedAt: testEpoch}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !mini.Exists("session:s2") {
		t.Fatalf("expected prefixed key")
	}
	if ttl := mini.TTL("session:s2"); ttl != time.Hour {
		t.Fatalf("key TTL: got %v", ttl)
	}
	mini.FastForward(time.Hour)
	if _, ok, err := s.Get(t.Context(), "s2"); err != nil || ok {
		t.Fatalf("evicted key still readable: ok=%v err=%v", ok, err)
	}
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	s := NewRedisSessionStore(goredis.NewClient(&goredis.Options{Addr: mini.Addr(), MaxRetries: -1}), "session", 0)
	defer s.Close()
	mini.Close()
	if _, _, err := s.Get(context.Background(), "s1"); err == nil {
		t.Fatalf("expected storage error when redis is down")
	}
}

func TestBindSessionIsAtomic(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := t.Context()

	// No such user: the session row must not be left behind.
	err := s.BindSession(ctx, SessionRecord{SessionID: "orphan", UserID: "ghost", CreatedAt: testEpoch})
	if err == nil {
		t.Fatalf("expected error binding to unknown user")
	}
	if _, ok, _ := s.Get(ctx, "orphan"); ok {
		t.Fatalf("orphaned session left behind")
	}

	if err := s.AddUser(ctx, UserRecord{ID: "u1", Email: "u1@example.com", HashedPassword: "h", CreatedAt: testEpoch}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := s.BindSession(ctx, SessionRecord{SessionID: "s1", UserID: "u1", CreatedAt: testEpoch}); err != nil {
		t.Fatalf("BindSession: %v", err)
	}
	if rec, ok, _ := s.FindUser(ctx, BySessionID, "s1"); !ok || rec.ID != "u1" {
		t.Fatalf("back-reference not set")
	}
}

func TestPruneExpired(t *testing.T) {
	sqlStore := newTestSQLStore(t)
	if err := sqlStore.AddUser(t.Context(), UserRecord{ID: "u1", Email: "u1@example.com", HashedPassword: "h", CreatedAt: testEpoch}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	for name, s := range map[string]interface {
		SessionStore
		Pruner
	}{
		"memory": NewMemorySessionStore(),
		"sql":    sqlStore,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			for i, age := range []time.Duration{2 * time.Hour, time.Hour, time.Minute} {
				rec := SessionRecord{SessionID: name + string(rune('a'+i)), UserID: "u1", CreatedAt: testEpoch.Add(-age)}
				if err := s.Put(ctx, rec); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			n, err := s.PruneExpired(ctx, testEpoch.Add(-time.Hour))
			if err != nil {
				t.Fatalf("PruneExpired: %v", err)
			}
			if n != 2 {
				t.Fatalf("pruned %d, want 2", n)
			}
			if _, ok, _ := s.Get(ctx, name+"c"); !ok {
				t.Fatalf("live session pruned")
			}
		})
	}
}

func TestRebind(t *testing.T) {
	s := &SQLStore{driver: DriverPostgres}
	if got := s.rebind(`UPDATE users SET a = ? WHERE id = ? AND b = ?`); got != `UPDATE users SET a = $1 WHERE id = $2 AND b = $3` {
		t.Fatalf("rebind: %q", got)
	}
	s.driver = DriverSQLite
	if got := s.rebind(`x = ?`); got != `x = ?` {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
}
