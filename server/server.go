// Package server exposes the auth core over HTTP. The user-service routes
// (/users, /sessions, /profile, /reset_password) manage accounts directly;
// everything under /api/v1 sits behind the request gate.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Brandon689/authgate/auth"
)

// Options configures a Server.
type Options struct {
	// Logger receives request and error logs. Default: disabled.
	Logger *zerolog.Logger

	// Gatherer, if set, is served on /metrics.
	Gatherer prometheus.Gatherer

	// CSRF rejects unsafe requests whose Origin/Referer is another host.
	CSRF bool
}

// Server is the HTTP surface over an *auth.API.
type Server struct {
	api    *auth.API
	log    zerolog.Logger
	router chi.Router
}

// New builds the route table.
func New(api *auth.API, opts Options) *Server {
	s := &Server{api: api, log: zerolog.Nop()}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if opts.CSRF {
		r.Use(sameOriginOnly)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	r.Get("/", s.welcome)
	r.Post("/users", s.registerUser)
	r.Post("/sessions", s.login)
	r.Delete("/sessions", s.logout)
	r.Get("/profile", s.profile)
	r.Post("/reset_password", s.getResetPasswordToken)
	r.Put("/reset_password", s.updatePassword)

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(api.Gate)

		r.Get("/status", s.status)
		r.Get("/unauthorized", func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
		})
		r.Get("/forbidden", func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusForbidden, "Forbidden")
		})
		r.Post("/auth_session/login", s.sessionLogin)
		r.Delete("/auth_session/logout", s.sessionLogout)
		r.Get("/users/me", s.me)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func sameOriginOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.SameOrigin(r) {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
