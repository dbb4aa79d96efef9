package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// maxSessionIDAttempts bounds regeneration after session id collisions.
const maxSessionIDAttempts = 3

// SessionAuth authenticates requests by a session cookie. With ttl > 0 a
// session expires once now >= created_at + ttl, where created_at is the
// stored value (see storedTime); otherwise it lives until destroyed. Whether sessions survive a restart depends on the store.
type SessionAuth struct {
	baseAuth
	users    UserStore
	sessions SessionStore
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics
}

// NewSessionAuth builds a SessionAuth over the given stores. A non-positive
// ttl disables expiry.
func NewSessionAuth(cookieName string, users UserStore, sessions SessionStore, ttl time.Duration) *SessionAuth {
	if ttl < 0 {
		ttl = 0
	}
	return &SessionAuth{
		baseAuth: baseAuth{cookieName: cookieName},
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
}

// TTL returns the configured session lifetime; zero means no expiry.
func (s *SessionAuth) TTL() time.Duration { return s.ttl }

func (s *SessionAuth) CurrentUser(r *http.Request) (User, bool, error) {
	sessionID, ok := s.SessionCookie(r)
	if !ok {
		return User{}, false, nil
	}
	userID, ok, err := s.UserIDForSessionID(r.Context(), sessionID)
	if err != nil || !ok {
		return User{}, false, err
	}
	rec, ok, err := s.users.FindUser(r.Context(), ByID, userID)
	if err != nil || !ok {
		return User{}, false, err
	}
	return rec.User(), true, nil
}

func (s *SessionAuth) CreateSession(ctx context.Context, userID string) (string, bool, error) {
	if userID == "" {
		return "", false, nil
	}
	if _, ok, err := s.users.FindUser(ctx, ByID, userID); err != nil || !ok {
		return "", false, err
	}

	for attempt := 0; attempt < maxSessionIDAttempts; attempt++ {
		sessionID, err := newSessionToken()
		if err != nil {
			return "", false, fmt.Errorf("generate session id: %w", err)
		}
		rec := SessionRecord{SessionID: sessionID, UserID: userID, CreatedAt: storedTime(s.now())}
		err = s.bind(ctx, rec)
		if errors.Is(err, ErrSessionExists) {
			s.log.Warn().Int("attempt", attempt+1).Msg("session id collision, regenerating")
			continue
		}
		if err != nil {
			return "", false, err
		}
		s.metrics.sessionCreated()
		s.log.Debug().Str("user_id", userID).Msg("session created")
		return sessionID, true, nil
	}
	return "", false, fmt.Errorf("create session: %w", ErrSessionExists)
}

// bind stores rec and points the user's back-reference at it. Without a
// transactional store the record is removed again if the user update fails.
func (s *SessionAuth) bind(ctx context.Context, rec SessionRecord) error {
	if b, ok := s.sessions.(SessionBinder); ok && s.sharesStore() {
		return b.BindSession(ctx, rec)
	}
	if err := s.sessions.Put(ctx, rec); err != nil {
		return err
	}
	sid := rec.SessionID
	if err := s.users.UpdateUser(ctx, rec.UserID, UserUpdate{SessionID: &sid}); err != nil {
		if _, derr := s.sessions.Delete(ctx, rec.SessionID); derr != nil {
			return fmt.Errorf("bind session: %w", errors.Join(err, derr))
		}
		return fmt.Errorf("bind session: %w", err)
	}
	return nil
}

func (s *SessionAuth) sharesStore() bool {
	us, ok := s.users.(*SQLStore)
	if !ok {
		return false
	}
	ss, ok := s.sessions.(*SQLStore)
	return ok && us == ss
}

func (s *SessionAuth) UserIDForSessionID(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	rec, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil || !ok {
		return "", false, err
	}
	if s.expired(rec) {
		if _, err := s.sessions.Delete(ctx, sessionID); err != nil {
			return "", false, err
		}
		if err := s.clearBackReference(ctx, rec.UserID, sessionID); err != nil {
			return "", false, err
		}
		s.metrics.sessionExpired()
		s.log.Debug().Str("user_id", rec.UserID).Msg("session expired")
		return "", false, nil
	}
	return rec.UserID, true, nil
}

func (s *SessionAuth) expired(rec SessionRecord) bool {
	if s.ttl <= 0 {
		return false
	}
	return !s.now().Before(rec.CreatedAt.Add(s.ttl))
}

func (s *SessionAuth) DestroySession(r *http.Request) (bool, error) {
	sessionID, ok := s.SessionCookie(r)
	if !ok || sessionID == "" {
		return false, nil
	}
	ctx := r.Context()
	userID, ok, err := s.UserIDForSessionID(ctx, sessionID)
	if err != nil || !ok {
		return false, err
	}
	deleted, err := s.sessions.Delete(ctx, sessionID)
	if err != nil || !deleted {
		return false, err
	}
	if err := s.clearBackReference(ctx, userID, sessionID); err != nil {
		return true, err
	}
	s.metrics.sessionDestroyed()
	return true, nil
}

// clearBackReference unsets the user's session_id if it still names sessionID.
func (s *SessionAuth) clearBackReference(ctx context.Context, userID, sessionID string) error {
	rec, ok, err := s.users.FindUser(ctx, ByID, userID)
	if err != nil || !ok || rec.SessionID != sessionID {
		return err
	}
	empty := ""
	err = s.users.UpdateUser(ctx, userID, UserUpdate{SessionID: &empty})
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	return err
}
