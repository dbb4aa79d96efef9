package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

var testEpoch = time.Unix(1_700_000_000, 0)

// newTestAPI builds a session_db API over a temp SQLite file with a fixed clock.
func newTestAPI(t *testing.T, mutate ...func(*Config)) *API {
	t.Helper()
	dir := t.TempDir()

	cfg := Config{
		Strategy:        StrategySessionDB,
		DSN:             filepath.Join(dir, "test.db"),
		SessionName:     "session_id",
		SessionDuration: time.Hour,
		BcryptCost:      4, // Fast for tests
		PruneInterval:   -1,
		Now: func() time.Time {
			return testEpoch
		},
	}

	for _, fn := range mutate {
		fn(&cfg)
	}

	api, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = api.Close() })
	return api
}

func setClock(api *API, at time.Time) {
	api.cfg.Now = func() time.Time { return at }
}

func mustRegister(t *testing.T, api *API, email, pass string) User {
	t.Helper()
	u, err := api.Register(t.Context(), email, pass)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

func mustLogin(t *testing.T, api *API, email, pass string) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	if _, err := api.Login(w, r, email, pass); err != nil {
		t.Fatalf("login: %v", err)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == api.cfg.SessionName {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func newReqWithCookie(method, target string, c *http.Cookie) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	if c != nil {
		r.AddCookie(c)
	}
	return r
}
