package auth

import (
	"errors"
	"sync"
	"testing"
)

func TestResetPasswordFlow(t *testing.T) {
	api := newTestAPI(t)
	ctx := t.Context()
	mustRegister(t, api, "r@example.com", "password123")

	if _, err := api.GetResetPasswordToken(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	tok, err := api.GetResetPasswordToken(ctx, "r@example.com")
	if err != nil || tok == "" {
		t.Fatalf("GetResetPasswordToken: %q %v", tok, err)
	}
	if err := api.UpdatePassword(ctx, tok, "brandnew789"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if !api.ValidLogin(ctx, "r@example.com", "brandnew789") {
		t.Fatalf("new password rejected")
	}
	if api.ValidLogin(ctx, "r@example.com", "password123") {
		t.Fatalf("old password still accepted")
	}

	// Single use.
	if err := api.UpdatePassword(ctx, tok, "another000"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reused token: want ErrInvalidToken, got %v", err)
	}
}

func TestResetTokenSupersededByNewer(t *testing.T) {
	api := newTestAPI(t)
	ctx := t.Context()
	mustRegister(t, api, "s@example.com", "password123")

	old, _ := api.GetResetPasswordToken(ctx, "s@example.com")
	fresh, _ := api.GetResetPasswordToken(ctx, "s@example.com")
	if old == fresh {
		t.Fatalf("tokens should differ")
	}
	if err := api.UpdatePassword(ctx, old, "brandnew789"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("superseded token: want ErrInvalidToken, got %v", err)
	}
	if err := api.UpdatePassword(ctx, fresh, "brandnew789"); err != nil {
		t.Fatalf("fresh token: %v", err)
	}
}

func TestUpdatePasswordRejections(t *testing.T) {
	api := newTestAPI(t)
	ctx := t.Context()
	mustRegister(t, api, "p@example.com", "password123")

	if err := api.UpdatePassword(ctx, "", "brandnew789"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: want ErrInvalidToken, got %v", err)
	}
	if err := api.UpdatePassword(ctx, "made-up", "brandnew789"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown token: want ErrInvalidToken, got %v", err)
	}

	tok, _ := api.GetResetPasswordToken(ctx, "p@example.com")
	if err := api.UpdatePassword(ctx, tok, "short"); err == nil || errors.Is(err, ErrInvalidToken) {
		t.Fatalf("weak password: want policy error, got %v", err)
	}
	// A policy failure does not consume the token.
	if err := api.UpdatePassword(ctx, tok, "brandnew789"); err != nil {
		t.Fatalf("token should survive a policy failure: %v", err)
	}
}

func TestResetTokenConsumedOnce(t *testing.T) {
	api := newTestAPI(t, func(c *Config) {
		c.DSN = ""
		c.Strategy = StrategySession
	})
	ctx := t.Context()
	mustRegister(t, api, "c@example.com", "password123")
	tok, _ := api.GetResetPasswordToken(ctx, "c@example.com")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.UpdatePassword(ctx, tok, "brandnew789"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("token consumed %d times", successes)
	}
}
