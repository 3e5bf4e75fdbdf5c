package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/labkit/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
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
	return NewRedisStore(rdb, "lk"), mr, rdb
}

func testSession(token, userID string) *Session {
	m := permission.Mask64(1)
	return &Session{
		Token:     token,
		UserID:    userID,
		Role:      "viewer",
		Mask:      &m,
		CreatedAt: time.Now().Unix(),
	}
}

func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"redis": func() Store {
			s, _, _ := newRedisStoreTest(t)
			return s
		},
	}
}

func TestStoreLifecycle(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			ctx := context.Background()

			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			sess := testSession("tok-1", "alice")
			if err := store.Save(ctx, sess, 0); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := store.Get(ctx, "tok-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Token != "tok-1" || got.UserID != "alice" || got.Role != "viewer" {
				t.Fatalf("unexpected session %+v", got)
			}

			count, err := store.Count(ctx)
			if err != nil || count != 1 {
				t.Fatalf("count = %d, %v", count, err)
			}

			existed, err := store.Delete(ctx, "tok-1")
			if err != nil || !existed {
				t.Fatalf("first delete = %v, %v", existed, err)
			}
			existed, err = store.Delete(ctx, "tok-1")
			if err != nil || existed {
				t.Fatalf("second delete = %v, %v", existed, err)
			}

			count, err = store.Count(ctx)
			if err != nil || count != 0 {
				t.Fatalf("count after delete = %d, %v", count, err)
			}
		})
	}
}

func TestStoreDeleteAllForUser(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			ctx := context.Background()

			for _, s := range []*Session{
				testSession("a1", "alice"),
				testSession("a2", "alice"),
				testSession("b1", "bob"),
			} {
				if err := store.Save(ctx, s, 0); err != nil {
					t.Fatalf("save %s: %v", s.Token, err)
				}
			}

			removed, err := store.DeleteAllForUser(ctx, "alice")
			if err != nil || removed != 2 {
				t.Fatalf("DeleteAllForUser = %d, %v", removed, err)
			}
			if _, err := store.Get(ctx, "a1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("a1 still present: %v", err)
			}
			if _, err := store.Get(ctx, "b1"); err != nil {
				t.Fatalf("b1 should survive: %v", err)
			}
			count, _ := store.Count(ctx)
			if count != 1 {
				t.Fatalf("count = %d want 1", count)
			}
		})
	}
}

func TestMemoryStoreExpiresOnRead(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, testSession("tok", "alice"), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Get(ctx, "tok"); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
	if count, _ := store.Count(ctx); count != 0 {
		t.Fatalf("expired session not evicted, count = %d", count)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Save(ctx, testSession("tok", "alice"), 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _ := store.Get(ctx, "tok")
	got.Role = "admin"
	got.Mask.Set(5)

	again, _ := store.Get(ctx, "tok")
	if again.Role != "viewer" || again.Mask.Has(5, false) {
		t.Fatalf("stored session mutated through returned copy: %+v", again)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("tok", "alice"), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL(store.key("tok")); ttl != time.Minute {
		t.Fatalf("key ttl = %v want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestRedisStoreHonoursStoredDeadline(t *testing.T) {
	store, _, rdb := newRedisStoreTest(t)
	ctx := context.Background()

	sess := testSession("tok", "alice")
	sess.ExpiresAt = time.Now().Add(-time.Second).Unix()
	if err := store.Save(ctx, sess, 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Get(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	members, err := rdb.SMembers(ctx, store.userKey("alice")).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty user index, got %v", members)
	}
}

func TestRedisStoreResaveDoesNotDoubleCount(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()

	sess := testSession("tok", "alice")
	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, sess, 0); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if count, _ := store.Count(ctx); count != 1 {
		t.Fatalf("count = %d want 1", count)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := store.Get(ctx, "tok"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from Ping, got %v", err)
	}
}
