package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Brandon689/authgate/auth"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.log.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func (s *Server) welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bienvenue"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// POST /users
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	email, password := r.FormValue("email"), r.FormValue("password")
	user, err := s.api.Register(r.Context(), email, password)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email already registered"})
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
	case err != nil:
		s.internalError(w, err, "register")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"email": user.Email, "message": "user created"})
	}
}

// POST /sessions
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	email, password := r.FormValue("email"), r.FormValue("password")
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	user, err := s.api.Login(w, r, email, password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case err != nil:
		s.internalError(w, err, "login")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"email": user.Email, "message": "logged in"})
	}
}

// DELETE /sessions
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	destroyed, err := s.api.Logout(w, r)
	if err != nil {
		s.internalError(w, err, "logout")
		return
	}
	if !destroyed {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// GET /profile
func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	user, ok, err := s.api.CurrentUser(w, r)
	if err != nil {
		s.internalError(w, err, "profile")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": user.Email})
}

// POST /reset_password
func (s *Server) getResetPasswordToken(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	token, err := s.api.GetResetPasswordToken(r.Context(), email)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusForbidden, "Forbidden")
	case err != nil:
		s.internalError(w, err, "reset token")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"email": email, "reset_token": token})
	}
}

// PUT /reset_password
func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	token, password := r.FormValue("reset_token"), r.FormValue("new_password")
	err := s.api.UpdatePassword(r.Context(), token, password)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, auth.ErrWeakPassword):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
	case err != nil:
		s.internalError(w, err, "update password")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "Password updated"})
	}
}

// POST /api/v1/auth_session/login
func (s *Server) sessionLogin(w http.ResponseWriter, r *http.Request) {
	email, password := r.FormValue("email"), r.FormValue("password")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email missing")
		return
	}
	if password == "" {
		writeError(w, http.StatusBadRequest, "password missing")
		return
	}
	user, err := s.api.Login(w, r, email, password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrSessionsUnsupported):
		writeError(w, http.StatusNotFound, "Not found")
	case err != nil:
		s.internalError(w, err, "session login")
	default:
		writeJSON(w, http.StatusOK, user)
	}
}

// DELETE /api/v1/auth_session/logout
func (s *Server) sessionLogout(w http.ResponseWriter, r *http.Request) {
	destroyed, err := s.api.Logout(w, r)
	if err != nil {
		s.internalError(w, err, "session logout")
		return
	}
	if !destroyed {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

// GET /api/v1/users/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
