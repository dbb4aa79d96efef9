package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCookieFlagsOnLoginAndClear(t *testing.T) {
	api := newTestAPI(t, func(c *Config) {
		c.CookieSecure = true
		c.CookieDomain = "example.com"
		c.CookieSameSite = http.SameSiteStrictMode
		c.SessionDuration = 30 * time.Minute
	})
	mustRegister(t, api, "c@example.com", "password123")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	if _, err := api.Login(w, r, "c@example.com", "password123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	var sc *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == api.cfg.SessionName {
			sc = c
			break
		}
	}
	if sc == nil {
		t.Fatalf("Set-Cookie not found")
	}
	if !sc.HttpOnly || !sc.Secure || sc.SameSite != http.SameSiteStrictMode || sc.Domain != "example.com" {
		t.Fatalf("cookie flags unexpected: %+v", sc)
	}
	if sc.MaxAge != 1800 {
		t.Fatalf("MaxAge: got %d want 1800", sc.MaxAge)
	}
	if want := testEpoch.Add(30 * time.Minute); !sc.Expires.Equal(want) {
		t.Fatalf("Expires: got %v want %v", sc.Expires, want)
	}

	w2 := httptest.NewRecorder()
	if _, err := api.Logout(w2, newReqWithCookie(http.MethodDelete, "/sessions", sc)); err != nil {
		t.Fatalf("logout: %v", err)
	}
	header := w2.Result().Header.Get("Set-Cookie")
	if !strings.HasPrefix(header, api.cfg.SessionName+"=;") || !strings.Contains(header, "Max-Age=0") {
		t.Fatalf("expected clearing cookie, got %q", header)
	}
}

func TestCookieWithoutTTLIsBrowserSession(t *testing.T) {
	api := newTestAPI(t, func(c *Config) {
		c.Strategy = StrategySession
		c.DSN = ""
	})
	mustRegister(t, api, "bs@example.com", "password123")
	c := mustLogin(t, api, "bs@example.com", "password123")
	if c.MaxAge != 0 || !c.Expires.IsZero() {
		t.Fatalf("expected no expiry attributes, got MaxAge=%d Expires=%v", c.MaxAge, c.Expires)
	}
}

func TestNewSessionTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := newSessionToken()
		if err != nil {
			t.Fatalf("newSessionToken: %v", err)
		}
		if len(tok) != 43 {
			t.Fatalf("token length %d", len(tok))
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}
