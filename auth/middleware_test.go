package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func basicHeader(email, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(email+":"+pass))
}

func TestAuthenticateVerdicts(t *testing.T) {
	api := newTestAPI(t, func(c *Config) {
		c.ExcludedPaths = append(c.ExcludedPaths, "/public/*")
	})
	mustRegister(t, api, "g@example.com", "password123")
	c := mustLogin(t, api, "g@example.com", "password123")

	cases := []struct {
		name   string
		path   string
		cookie *http.Cookie
		want   VerdictKind
	}{
		{"excluded exact", "/api/v1/status", nil, Anonymous},
		{"excluded with slash", "/api/v1/status/", nil, Anonymous},
		{"excluded wildcard", "/public/css/site.css", nil, Anonymous},
		{"no credentials", "/profile", nil, Challenge},
		{"unknown session", "/profile", &http.Cookie{Name: "session_id", Value: "bogus"}, Forbidden},
		{"valid session", "/profile", c, Principal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := api.Authenticate(newReqWithCookie(http.MethodGet, tc.path, tc.cookie))
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if v.Kind != tc.want {
				t.Fatalf("verdict: got %v want %v", v.Kind, tc.want)
			}
			if tc.want == Principal && v.User.Email != "g@example.com" {
				t.Fatalf("principal email: %q", v.User.Email)
			}
		})
	}
}

func TestAuthenticateNoneIsAnonymous(t *testing.T) {
	api := newTestAPI(t, func(c *Config) { c.Strategy = StrategyNone })
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	v, err := api.Authenticate(r)
	if err != nil || v.Kind != Anonymous {
		t.Fatalf("got %v, %v; want anonymous", v.Kind, err)
	}
}

func TestAuthenticateEmptyExcludedFailsClosed(t *testing.T) {
	api := newTestAPI(t, func(c *Config) { c.ExcludedPaths = []string{} })
	v, err := api.Authenticate(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if err != nil || v.Kind != Challenge {
		t.Fatalf("got %v, %v; want challenge", v.Kind, err)
	}
}

func TestGateBasicAuth(t *testing.T) {
	api := newTestAPI(t, func(c *Config) { c.Strategy = StrategyBasic })
	mustRegister(t, api, "user@x.com", "secret123")

	h := api.Gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := FromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(u.Email))
	}))

	cases := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"valid", "/users/me", basicHeader("user@x.com", "secret123"), http.StatusOK, "user@x.com"},
		{"wrong password", "/users/me", basicHeader("user@x.com", "nope"), http.StatusForbidden, `{"error":"Forbidden"}`},
		{"bearer", "/users/me", "Bearer xyz", http.StatusForbidden, `{"error":"Forbidden"}`},
		{"bad base64", "/users/me", "Basic !!!", http.StatusForbidden, `{"error":"Forbidden"}`},
		{"missing", "/users/me", "", http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"excluded", "/api/v1/status", "", http.StatusNoContent, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tc.status {
				t.Fatalf("status: got %d want %d", w.Code, tc.status)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tc.body {
				t.Fatalf("body: got %q want %q", got, tc.body)
			}
		})
	}
}

func TestMiddlewareInjectsUser(t *testing.T) {
	api := newTestAPI(t)
	mustRegister(t, api, "mw@example.com", "password123")
	c := mustLogin(t, api, "mw@example.com", "password123")

	mux := http.NewServeMux()
	mux.Handle("/me", api.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, "no user", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(u.Email))
	})))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, newReqWithCookie(http.MethodGet, "/me", c))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "mw@example.com") {
		t.Fatalf("expected email in body, got %q", w.Body.String())
	}

	// Anonymous requests pass through without a user.
	w2 := httptest.NewRecorder()
	mux.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", w2.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	protected := api.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w1 := httptest.NewRecorder()
	protected.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if w1.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r2 = r2.WithContext(WithUser(r2.Context(), User{ID: "u-1", Email: "x@y.z"}))
	protected.ServeHTTP(w2, r2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}
}

func TestSameOrigin(t *testing.T) {
	cases := []struct {
		name    string
		method  string
		origin  string
		referer string
		want    bool
	}{
		{"safe without headers", http.MethodGet, "", "", true},
		{"unsafe without headers", http.MethodPost, "", "", false},
		{"matching origin", http.MethodPost, "http://example.com", "", true},
		{"foreign origin", http.MethodPost, "http://evil.com", "", false},
		{"matching referer", http.MethodDelete, "", "https://example.com/profile", true},
		{"foreign referer", http.MethodPut, "", "https://evil.com/", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, "http://example.com/sessions", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			if tc.referer != "" {
				r.Header.Set("Referer", tc.referer)
			}
			if got := SameOrigin(r); got != tc.want {
				t.Fatalf("SameOrigin = %v want %v", got, tc.want)
			}
		})
	}
}
