package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
)

// Session is one signed-in principal. It owns every live subscription opened
// on its behalf so that logging out tears them all down.
type Session struct {
	PrincipalID string

	mu     sync.Mutex
	user   models.User
	subs   map[string]store.Subscription
	closed bool
	done   chan struct{}
}

func newSession(principalID string, user *models.User) *Session {
	return &Session{
		PrincipalID: principalID,
		user:        *user,
		subs:        map[string]store.Subscription{},
		done:        make(chan struct{}),
	}
}

// Done is closed when the session ends: logout, a newer sign-in for the same
// principal, or shutdown.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) User() models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.ID
}

func (s *Session) SetUser(u *models.User) {
	s.mu.Lock()
	s.user = *u
	s.mu.Unlock()
}

// Track registers sub under key, closing whatever was there before. On a
// closed session sub is closed right away and false is returned.
func (s *Session) Track(key string, sub store.Subscription) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return false
	}
	prev := s.subs[key]
	s.subs[key] = sub
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return true
}

func (s *Session) Untrack(key string) {
	s.mu.Lock()
	sub := s.subs[key]
	delete(s.subs, key)
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

func (s *Session) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) close() {
	s.mu.Lock()
	if !s.closed {
		close(s.done)
	}
	s.closed = true
	subs := s.subs
	s.subs = map[string]store.Subscription{}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// SessionManager creates and ends sessions. It replaces any process-wide
// "current user": every request resolves its session by principal.
type SessionManager struct {
	identity *Identity
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(identity *Identity, logger *slog.Logger) *SessionManager {
	return &SessionManager{identity: identity, logger: logger, sessions: map[string]*Session{}}
}

// Start binds principalID to user and opens a fresh session, ending any
// previous one for the same principal.
func (m *SessionManager) Start(ctx context.Context, principalID string, user *models.User) (*Session, error) {
	if err := m.identity.BindLocalIdentity(ctx, principalID, user.ID); err != nil {
		return nil, err
	}
	return m.install(principalID, user), nil
}

func (m *SessionManager) install(principalID string, user *models.User) *Session {
	s := newSession(principalID, user)

	m.mu.Lock()
	prev := m.sessions[principalID]
	m.sessions[principalID] = s
	m.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	m.logger.Info("session started", "principal_id", principalID, "user_id", user.ID)
	return s
}

// Resume returns the live session for principalID, or rebuilds one from the
// device key.
func (m *SessionManager) Resume(ctx context.Context, principalID string) (*Session, error) {
	if s, ok := m.Current(principalID); ok {
		return s, nil
	}
	user, err := m.identity.Resume(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return m.install(principalID, user), nil
}

func (m *SessionManager) Current(principalID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[principalID]
	return s, ok
}

// End logs the principal out: the device key is cleared and every
// subscription the session holds is closed.
func (m *SessionManager) End(ctx context.Context, principalID string) error {
	m.mu.Lock()
	s := m.sessions[principalID]
	delete(m.sessions, principalID)
	m.mu.Unlock()

	if s != nil {
		s.close()
	}
	if err := m.identity.ClearLocalIdentity(ctx, principalID); err != nil {
		return err
	}
	m.logger.Info("session ended", "principal_id", principalID)
	return nil
}

// CloseAll ends every session's subscriptions without touching device keys.
// Used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
