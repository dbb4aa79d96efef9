package auth

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore is a SessionStore held in process memory. Records are
// lost on restart. It is safe for concurrent use.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]SessionRecord)}
}

func (s *MemorySessionStore) Put(_ context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[rec.SessionID]; ok {
		return ErrSessionExists
	}
	s.sessions[rec.SessionID] = rec
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (SessionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	return rec, ok, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(s.sessions, sessionID)
	return true, nil
}

func (s *MemorySessionStore) PruneExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.sessions {
		if !rec.CreatedAt.After(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// MemoryUserStore is a UserStore held in process memory, with an index per
// LookupKey. It is safe for concurrent use.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*UserRecord
	byEmail map[string]string
	bySess  map[string]string
	byReset map[string]string
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]*UserRecord),
		byEmail: make(map[string]string),
		bySess:  make(map[string]string),
		byReset: make(map[string]string),
	}
}

func (s *MemoryUserStore) AddUser(_ context.Context, rec UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[rec.Email]; ok {
		return ErrUserExists
	}
	if _, ok := s.byID[rec.ID]; ok {
		return ErrUserExists
	}
	r := rec
	s.byID[r.ID] = &r
	s.byEmail[r.Email] = r.ID
	if r.SessionID != "" {
		s.bySess[r.SessionID] = r.ID
	}
	if r.ResetToken != "" {
		s.byReset[r.ResetToken] = r.ID
	}
	return nil
}

func (s *MemoryUserStore) FindUser(_ context.Context, key LookupKey, value string) (UserRecord, bool, error) {
	if value == "" {
		return UserRecord{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := value
	switch key {
	case ByID:
	case ByEmail:
		id = s.byEmail[value]
	case BySessionID:
		id = s.bySess[value]
	case ByResetToken:
		id = s.byReset[value]
	default:
		return UserRecord{}, false, nil
	}
	rec, ok := s.byID[id]
	if !ok {
		return UserRecord{}, false, nil
	}
	return *rec, true, nil
}

func (s *MemoryUserStore) UpdateUser(_ context.Context, id string, upd UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	if upd.MatchResetToken != nil && rec.ResetToken != *upd.MatchResetToken {
		return ErrUserNotFound
	}
	if upd.HashedPassword != nil {
		rec.HashedPassword = *upd.HashedPassword
	}
	if upd.SessionID != nil {
		reindex(s.bySess, rec.SessionID, *upd.SessionID, id)
		rec.SessionID = *upd.SessionID
	}
	if upd.ResetToken != nil {
		reindex(s.byReset, rec.ResetToken, *upd.ResetToken, id)
		rec.ResetToken = *upd.ResetToken
	}
	return nil
}

func reindex(idx map[string]string, old, next, id string) {
	if old != "" && idx[old] == id {
		delete(idx, old)
	}
	if next != "" {
		idx[next] = id
	}
}
