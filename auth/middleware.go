package auth

import (
	"encoding/json"
	"net/http"
	"slices"
)

// VerdictKind is the outcome of authenticating one request.
type VerdictKind int

const (
	// Anonymous: the request may proceed without a principal.
	Anonymous VerdictKind = iota
	// Challenge: no credentials were presented (401).
	Challenge
	// Forbidden: credentials were presented but resolve to nobody (403).
	Forbidden
	// Principal: the request is authenticated as Verdict.User.
	Principal
)

func (k VerdictKind) String() string {
	switch k {
	case Anonymous:
		return "anonymous"
	case Challenge:
		return "challenge"
	case Forbidden:
		return "forbidden"
	case Principal:
		return "principal"
	default:
		return "unknown"
	}
}

// Verdict is the gate decision for a request. User is set only for Principal.
type Verdict struct {
	Kind VerdictKind
	User User
}

func (a *API) authenticateInternal(r *http.Request) (Verdict, error) {
	if a.cfg.Strategy == StrategyNone {
		return Verdict{Kind: Anonymous}, nil
	}
	path := r.URL.Path
	if slices.Contains(a.cfg.ExcludedPaths, path) || !a.strategy.RequireAuth(path, a.cfg.ExcludedPaths) {
		return Verdict{Kind: Anonymous}, nil
	}

	_, hasHeader := a.strategy.AuthorizationHeader(r)
	_, hasCookie := a.strategy.SessionCookie(r)
	if !hasHeader && !hasCookie {
		return Verdict{Kind: Challenge}, nil
	}

	user, ok, err := a.strategy.CurrentUser(r)
	if err != nil {
		return Verdict{}, err
	}
	if !ok {
		return Verdict{Kind: Forbidden}, nil
	}
	return Verdict{Kind: Principal, User: user}, nil
}

func (a *API) gateInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, err := a.authenticateInternal(r)
		if err != nil {
			a.log.Error().Err(err).Str("path", r.URL.Path).Msg("authenticate request")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		a.metrics.verdict(v.Kind)
		switch v.Kind {
		case Challenge:
			writeError(w, http.StatusUnauthorized, "Unauthorized")
		case Forbidden:
			writeError(w, http.StatusForbidden, "Forbidden")
		case Principal:
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), v.User)))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (a *API) middlewareInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok, err := a.currentUserInternal(w, r)
		if err != nil {
			a.log.Error().Err(err).Msg("current user")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if ok {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAuthInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := fromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
