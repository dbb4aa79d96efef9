package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

func (a *API) now() time.Time {
	if a.cfg.Now != nil {
		return a.cfg.Now()
	}
	return time.Now()
}

// normalizeEmail trims surrounding whitespace. Case is kept: emails are
// matched exactly as stored.
func normalizeEmail(e string) string {
	return strings.TrimSpace(e)
}

func validEmailBasic(e string) bool {
	// Minimal sanity check without full RFC validation.
	local, domain, ok := strings.Cut(e, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	if strings.Contains(domain, "@") || !strings.Contains(domain, ".") {
		return false
	}
	return !strings.ContainsAny(e, " \t\r\n")
}

// validatePasswordPolicy enforces minimal length and optional strength requirements.
func validatePasswordPolicy(pw string, minLen int, requireStrong bool) error {
	if len(pw) < minLen {
		return fmt.Errorf("%w: too short (min %d)", ErrWeakPassword, minLen)
	}
	if requireStrong && !hasLetterAndDigit(pw) {
		return fmt.Errorf("%w: needs at least one letter and one digit", ErrWeakPassword)
	}
	return nil
}

func hasLetterAndDigit(s string) bool {
	var hasL, hasD bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasD = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasL = true
		}
		if hasL && hasD {
			return true
		}
	}
	return false
}

// SameOrigin performs a basic same-origin check using the Origin header.
// If Origin is absent, unsafe methods fall back to Referer and safe methods
// pass. Only the host is compared; the scheme is ignored.
func SameOrigin(r *http.Request) bool {
	if origin := r.Header.Get("Origin"); origin != "" {
		return sameHost(origin, r.Host)
	}
	if !isUnsafeMethod(r.Method) {
		return true
	}
	ref := r.Header.Get("Referer")
	if ref == "" {
		return false
	}
	return sameHost(ref, r.Host)
}

func sameHost(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func isUnsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
