package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"
)

// setCookie issues the session cookie. Without a session duration the cookie
// is a browser-session cookie; otherwise Expires and MaxAge follow the TTL,
// computed from a.now() so tests with a fixed clock stay deterministic.
func (a *API) setCookie(w http.ResponseWriter, sessionID string) {
	c := &http.Cookie{
		Name:     a.cfg.SessionName,
		Value:    sessionID,
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		HttpOnly: *a.cfg.CookieHTTPOnly,
		Secure:   a.cfg.CookieSecure,
		SameSite: a.cfg.CookieSameSite,
	}
	if a.ttl > 0 {
		c.Expires = a.now().Add(a.ttl)
		c.MaxAge = int(a.ttl.Seconds())
		if c.MaxAge <= 0 {
			c.MaxAge = 1
		}
	}
	http.SetCookie(w, c)
}

// clearCookie uses MaxAge<0 plus an Expires in the past to ensure deletion across clients.
func (a *API) clearCookie(w http.ResponseWriter) {
	c := &http.Cookie{
		Name:     a.cfg.SessionName,
		Value:    "",
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: *a.cfg.CookieHTTPOnly,
		Secure:   a.cfg.CookieSecure,
		SameSite: a.cfg.CookieSameSite,
	}
	http.SetCookie(w, c)
}

func newSessionToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
