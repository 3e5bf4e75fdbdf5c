package labkit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/labkit/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	engine, err := New().Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// engineBackends builds the same engine on each session backend.
func engineBackends(t *testing.T) map[string]func(t *testing.T) *Engine {
	return map[string]func(t *testing.T) *Engine{
		"memory": newTestEngine,
		"redis": func(t *testing.T) *Engine {
			_, rdb := newTestRedis(t)
			engine, err := New().WithRedis(rdb).Build()
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			t.Cleanup(engine.Close)
			return engine
		},
	}
}

func TestCreateSessionReturnsDistinctTokens(t *testing.T) {
	for name, build := range engineBackends(t) {
		t.Run(name, func(t *testing.T) {
			engine := build(t)
			ctx := context.Background()

			seen := make(map[string]struct{})
			for i := 0; i < 50; i++ {
				token, err := engine.CreateSession(ctx, "alice", RoleDataAnalyst)
				if err != nil {
					t.Fatalf("create session failed: %v", err)
				}
				if len(token) != 43 {
					t.Fatalf("expected 43-char token for 32 bytes, got %d", len(token))
				}
				if _, dup := seen[token]; dup {
					t.Fatalf("duplicate token %q", token)
				}
				seen[token] = struct{}{}
			}

			n, err := engine.ActiveSessions(ctx)
			if err != nil {
				t.Fatalf("active sessions failed: %v", err)
			}
			if n != 50 {
				t.Fatalf("expected 50 sessions, got %d", n)
			}
		})
	}
}

func TestCreateSessionRejectsUnknownRole(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.CreateSession(context.Background(), "alice", "superuser")
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	for _, role := range []string{RoleAdmin, RoleDataAnalyst, RoleDataScientist, RoleViewer} {
		if !strings.Contains(err.Error(), role) {
			t.Fatalf("expected error to list role %q, got %q", role, err.Error())
		}
	}
}

func TestCreateSessionRejectsEmptyUser(t *testing.T) {
	engine := newTestEngine(t)

	if _, err := engine.CreateSession(context.Background(), "  ", RoleViewer); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestGetSessionReturnsRolePermissions(t *testing.T) {
	for name, build := range engineBackends(t) {
		t.Run(name, func(t *testing.T) {
			engine := build(t)
			ctx := context.Background()

			token, err := engine.CreateSession(ctx, "bob", RoleDataAnalyst)
			if err != nil {
				t.Fatalf("create session failed: %v", err)
			}

			info, err := engine.GetSession(ctx, token)
			if err != nil {
				t.Fatalf("get session failed: %v", err)
			}
			if info.UserID != "bob" || info.Role != RoleDataAnalyst {
				t.Fatalf("unexpected session %+v", info)
			}
			want := []string{PermRead, PermScale, PermEncode, PermProcess}
			if strings.Join(info.Permissions, ",") != strings.Join(want, ",") {
				t.Fatalf("expected permissions %v, got %v", want, info.Permissions)
			}
			if !info.ExpiresAt.IsZero() {
				t.Fatalf("expected no deadline, got %v", info.ExpiresAt)
			}

			if _, err := engine.GetSession(ctx, "no-such-token"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestRevokeSession(t *testing.T) {
	for name, build := range engineBackends(t) {
		t.Run(name, func(t *testing.T) {
			engine := build(t)
			ctx := context.Background()

			token, err := engine.CreateSession(ctx, "carol", RoleAdmin)
			if err != nil {
				t.Fatalf("create session failed: %v", err)
			}

			ok, err := engine.RevokeSession(ctx, token)
			if err != nil || !ok {
				t.Fatalf("expected revoke to succeed, got ok=%v err=%v", ok, err)
			}

			ok, err = engine.RevokeSession(ctx, token)
			if err != nil || ok {
				t.Fatalf("expected second revoke to report false, got ok=%v err=%v", ok, err)
			}

			_, err = engine.Authorize(ctx, token, "delete_file", PermDelete)
			var authnErr *AuthenticationError
			if !errors.As(err, &authnErr) || authnErr.Missing {
				t.Fatalf("expected invalid-session error after revoke, got %v", err)
			}
		})
	}
}

func TestRevokeUserSessions(t *testing.T) {
	for name, build := range engineBackends(t) {
		t.Run(name, func(t *testing.T) {
			engine := build(t)
			ctx := context.Background()

			var aliceTokens []string
			for i := 0; i < 3; i++ {
				tok, err := engine.CreateSession(ctx, "alice", RoleViewer)
				if err != nil {
					t.Fatalf("create session failed: %v", err)
				}
				aliceTokens = append(aliceTokens, tok)
			}
			bobToken, err := engine.CreateSession(ctx, "bob", RoleViewer)
			if err != nil {
				t.Fatalf("create session failed: %v", err)
			}

			n, err := engine.RevokeUserSessions(ctx, "alice")
			if err != nil {
				t.Fatalf("revoke user sessions failed: %v", err)
			}
			if n != 3 {
				t.Fatalf("expected 3 revoked, got %d", n)
			}

			for _, tok := range aliceTokens {
				if _, err := engine.GetSession(ctx, tok); !errors.Is(err, ErrSessionNotFound) {
					t.Fatalf("expected alice session gone, got %v", err)
				}
			}
			if _, err := engine.GetSession(ctx, bobToken); err != nil {
				t.Fatalf("expected bob session intact, got %v", err)
			}
		})
	}
}

func TestAuthorizeMatchesRoleTable(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	for role, perms := range DefaultRoles() {
		token, err := engine.CreateSession(ctx, "u-"+role, role)
		if err != nil {
			t.Fatalf("create session failed: %v", err)
		}

		granted := make(map[string]bool, len(perms))
		for _, p := range perms {
			granted[p] = true
		}

		for _, perm := range DefaultPermissions() {
			_, err := engine.Authorize(ctx, token, "op", perm)
			if granted[perm] && err != nil {
				t.Fatalf("role %s: expected %s granted, got %v", role, perm, err)
			}
			if !granted[perm] && !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("role %s: expected %s denied, got %v", role, perm, err)
			}
			if engine.HasPermission(role, perm) != granted[perm] {
				t.Fatalf("HasPermission(%s, %s) disagrees with gate", role, perm)
			}
		}
	}
}

func TestAuthorizeErrorMessages(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Authorize(ctx, "", "load_data", PermRead)
	if err == nil || err.Error() != "authentication required for load_data" {
		t.Fatalf("unexpected missing-token error: %v", err)
	}
	if !IsAuthentication(err) {
		t.Fatal("expected IsAuthentication")
	}

	_, err = engine.Authorize(ctx, "bogus", "load_data", PermRead)
	if err == nil || err.Error() != "invalid or expired session for load_data" {
		t.Fatalf("unexpected invalid-token error: %v", err)
	}

	token, err := engine.CreateSession(ctx, "vera", RoleViewer)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	_, err = engine.Authorize(ctx, token, "save_data", PermWrite)
	if err == nil || err.Error() != "permission denied: 'write' required for save_data" {
		t.Fatalf("unexpected permission error: %v", err)
	}
	if !IsAuthorization(err) {
		t.Fatal("expected IsAuthorization")
	}

	_, err = engine.AuthorizeRole(ctx, token, "purge", RoleAdmin)
	if err == nil || err.Error() != "role 'admin' required for purge, got 'viewer'" {
		t.Fatalf("unexpected role error: %v", err)
	}
	if !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("expected ErrRoleRequired, got %v", err)
	}
}

func TestAuthorizeRoleIsExactMatch(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	token, err := engine.CreateSession(ctx, "sam", RoleDataScientist)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	if _, err := engine.AuthorizeRole(ctx, token, "train", RoleDataScientist); err != nil {
		t.Fatalf("expected exact role to pass, got %v", err)
	}

	adminToken, err := engine.CreateSession(ctx, "root", RoleAdmin)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	if _, err := engine.AuthorizeRole(ctx, adminToken, "train", RoleDataScientist); !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("expected admin to fail data_scientist role gate, got %v", err)
	}
}

func TestSessionTTLExpiresInMemory(t *testing.T) {
	store := session.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.Session.TTL = time.Hour

	engine, err := New().WithConfig(cfg).WithStore(store).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	now := time.Now()
	engine.now = func() time.Time { return now.Add(-2 * time.Hour) }

	token, err := engine.CreateSession(context.Background(), "old", RoleViewer)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	if _, err := engine.GetSession(context.Background(), token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestSessionTTLExpiresInRedis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.Session.TTL = time.Minute

	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	token, err := engine.CreateSession(ctx, "dana", RoleViewer)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	info, err := engine.GetSession(ctx, token)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if info.ExpiresAt.IsZero() {
		t.Fatal("expected deadline on session with ttl")
	}

	mr.FastForward(2 * time.Minute)

	if _, err := engine.Authorize(ctx, token, "load_data", PermRead); !IsAuthentication(err) {
		t.Fatalf("expected authentication failure after ttl, got %v", err)
	}
}

func TestBackendFailureIsWrapped(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine, err := New().WithRedis(rdb).WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	mr.Close()

	_, err = engine.CreateSession(context.Background(), "eve", RoleViewer)
	if !errors.Is(err, ErrSessionBackend) {
		t.Fatalf("expected ErrSessionBackend, got %v", err)
	}
	if IsAuthentication(err) || IsAuthorization(err) {
		t.Fatal("backend failure must not look like an auth decision")
	}
	if got := engine.MetricsSnapshot().Counters[MetricBackendError]; got == 0 {
		t.Fatal("expected backend error metric")
	}
}

func TestRolePermissionsAndTable(t *testing.T) {
	engine := newTestEngine(t)

	perms, ok := engine.RolePermissions(RoleViewer)
	if !ok || len(perms) != 1 || perms[0] != PermRead {
		t.Fatalf("unexpected viewer permissions %v ok=%v", perms, ok)
	}
	if _, ok := engine.RolePermissions("ghost"); ok {
		t.Fatal("expected unknown role lookup to fail")
	}
	if engine.HasPermission("ghost", PermRead) {
		t.Fatal("unknown role must grant nothing")
	}
	if engine.HasPermission(RoleAdmin, "teleport") {
		t.Fatal("unknown permission must not be granted")
	}

	table := engine.RoleTable()
	if len(table) != 4 || len(table[RoleAdmin]) != 7 {
		t.Fatalf("unexpected role table %v", table)
	}
	if got := engine.Permissions(); strings.Join(got, ",") != strings.Join(DefaultPermissions(), ",") {
		t.Fatalf("expected permissions in bit order, got %v", got)
	}
}

func TestConcurrentAuthorize(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	token, err := engine.CreateSession(ctx, "alice", RoleDataScientist)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Authorize(ctx, token, "process", PermProcess); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent authorize failed: %v", err)
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var engine *Engine
	if _, err := engine.CreateSession(context.Background(), "a", RoleViewer); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Authorize(context.Background(), "t", "op", PermRead); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	engine.Close()
}

func TestFailedAuthenticationIsRateLimitedPerIP(t *testing.T) {
	mr, rdb := newTestRedis(t)

	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: true, MaxFailures: 3, Window: time.Minute}
	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	token, err := engine.CreateSession(ctx, "alice", RoleAdmin)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	attacker := WithClientIP(ctx, "203.0.113.9")
	for i := 0; i < 3; i++ {
		_, err := engine.Authorize(attacker, "guess-"+strings.Repeat("x", i), "load_dataframe", PermRead)
		if !IsAuthentication(err) {
			t.Fatalf("attempt %d: expected authentication error, got %v", i, err)
		}
	}

	// the budget is spent; even a valid token is refused from this address
	_, err = engine.Authorize(attacker, token, "load_dataframe", PermRead)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if IsAuthentication(err) || IsAuthorization(err) {
		t.Fatalf("rate limit must not look like a gate failure: %v", err)
	}

	if _, err := engine.Authorize(WithClientIP(ctx, "198.51.100.1"), token, "load_dataframe", PermRead); err != nil {
		t.Fatalf("other address should pass, got %v", err)
	}
	if _, err := engine.Authorize(ctx, token, "load_dataframe", PermRead); err != nil {
		t.Fatalf("calls without a client ip are not throttled, got %v", err)
	}

	mr.FastForward(61 * time.Second)
	if _, err := engine.Authorize(attacker, token, "load_dataframe", PermRead); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestRateLimitRequiresRedis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.Enabled = true
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected build error without redis")
	}
}

func TestClearFailedAttemptsLiftsThrottle(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: true, MaxFailures: 2, Window: time.Minute}
	cfg.Metrics.Enabled = true
	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	token, err := engine.CreateSession(ctx, "alice", RoleViewer)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	const ip = "203.0.113.7"
	from := WithClientIP(ctx, ip)
	for i := 0; i < 2; i++ {
		_, _ = engine.Authorize(from, "bogus", "load_dataframe", PermRead)
	}
	if n, err := engine.FailedAttempts(ctx, ip); err != nil || n != 2 {
		t.Fatalf("expected 2 failed attempts, got %d (%v)", n, err)
	}
	if _, err := engine.Authorize(from, token, "load_dataframe", PermRead); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricAuthenticationThrottled]; got != 1 {
		t.Fatalf("expected 1 throttled call, got %d", got)
	}

	if err := engine.ClearFailedAttempts(ctx, ip); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if n, _ := engine.FailedAttempts(ctx, ip); n != 0 {
		t.Fatalf("expected 0 failed attempts after clear, got %d", n)
	}
	if _, err := engine.Authorize(from, token, "load_dataframe", PermRead); err != nil {
		t.Fatalf("expected access after clear, got %v", err)
	}
}

func TestFailedAttemptsWithoutLimiter(t *testing.T) {
	engine := newTestEngine(t)

	if n, err := engine.FailedAttempts(context.Background(), "10.0.0.1"); err != nil || n != 0 {
		t.Fatalf("expected 0 without limiter, got %d (%v)", n, err)
	}
	if err := engine.ClearFailedAttempts(context.Background(), "10.0.0.1"); err != nil {
		t.Fatalf("clear without limiter: %v", err)
	}
}
