package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

// SessionState tracks where a live session is in its lifecycle.
type SessionState int32

const (
	SessionDisconnected SessionState = iota
	SessionSyncing
	SessionLive
)

func (s SessionState) String() string {
	switch s {
	case SessionSyncing:
		return "syncing"
	case SessionLive:
		return "live"
	default:
		return "disconnected"
	}
}

// Session holds one signed-in user's canonical permission snapshot and
// keeps it current from the repository's change feed. Readers always see a
// complete snapshot: pushes swap the whole record atomically, never a
// partially updated set.
type Session struct {
	userID string

	state    atomic.Int32
	snapshot atomic.Pointer[domain.RoleRecord]

	watch     ports.RoleWatch
	closeOnce sync.Once
	done      chan struct{}
	updated   chan struct{}

	manager *SessionManager
	refs    int

	logger ports.Logger
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Record returns the current snapshot. Before the initial fetch resolves
// the session answers as an unprivileged user with no grants.
func (s *Session) Record() domain.RoleRecord {
	if rec := s.snapshot.Load(); rec != nil {
		return *rec
	}
	return domain.RoleRecord{UserID: s.userID, Role: domain.RoleUser, Permissions: domain.NewPermissionSet()}
}

func (s *Session) IsAllowed(module, action string) bool {
	rec := s.Record()
	return domain.Allowed(rec.Role, rec.Permissions, module, action)
}

func (s *Session) IsAdmin() bool {
	return domain.IsAdmin(s.Record().Role)
}

func (s *Session) VisibleMenu() []domain.MenuItem {
	rec := s.Record()
	return domain.FilterMenu(domain.DefaultMenu(), rec.Role, rec.Permissions)
}

// Updated is closed and replaced on every applied push; listeners use it to
// learn that a fresh snapshot is available.
func (s *Session) Updated() <-chan struct{} {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	return s.updated
}

// Close releases the session's hold on the change feed. Safe to call more
// than once; after the last holder closes, no callback fires again.
func (s *Session) Close() {
	s.manager.release(s)
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(SessionDisconnected))
		if s.watch != nil {
			s.watch.Close()
		}
	})
}

func (s *Session) run() {
	defer close(s.done)
	for rec := range s.watch.Changes() {
		rec := rec
		s.snapshot.Store(&rec)
		s.logger.Debug(context.Background(), "session snapshot refreshed",
			"user_id", s.userID, "permissions", len(rec.Permissions))
		s.manager.notify(s)
	}
	// Feed ended: a dropped subscription degrades to disconnected and the
	// next interaction starts a fresh sync.
	s.state.Store(int32(SessionDisconnected))
}

// SessionManager creates and deduplicates live sessions per user identity.
// Concurrent attachments for the same user (several tabs, the websocket
// feed plus a request in flight) share one underlying watch.
type SessionManager struct {
	repo   ports.RoleRecordRepository
	logger ports.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(repo ports.RoleRecordRepository, logger ports.Logger) *SessionManager {
	return &SessionManager{
		repo:     repo,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Attach starts (or joins) the live session for a user: initial fetch,
// default provisioning for brand-new users, then the change feed. The
// caller must Close the returned session.
func (m *SessionManager) Attach(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}

	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok && sess.State() != SessionDisconnected {
		sess.refs++
		m.mu.Unlock()
		return sess, nil
	}
	sess := &Session{
		userID:  userID,
		done:    make(chan struct{}),
		manager: m,
		refs:    1,
		logger:  m.logger,
		updated: make(chan struct{}),
	}
	sess.state.Store(int32(SessionSyncing))
	m.sessions[userID] = sess
	m.mu.Unlock()

	rec, err := m.repo.GetRole(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		rec, err = m.repo.CreateRole(ctx, userID, domain.RoleUser)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Another session provisioned first; benign.
			rec, err = m.repo.GetRole(ctx, userID)
		}
	}
	if err != nil {
		m.drop(sess)
		return nil, err
	}

	watch, err := m.repo.Watch(ctx, userID)
	if err != nil {
		m.drop(sess)
		return nil, err
	}

	sess.watch = watch
	sess.snapshot.Store(&rec)
	sess.state.Store(int32(SessionLive))
	go sess.run()

	m.logger.Info(ctx, "session live", "user_id", userID, "role", string(rec.Role))
	return sess, nil
}

// Peek returns the live session for a user without attaching, or nil.
func (m *SessionManager) Peek(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

func (m *SessionManager) notify(sess *Session) {
	m.mu.Lock()
	close(sess.updated)
	sess.updated = make(chan struct{})
	m.mu.Unlock()
}

func (m *SessionManager) release(sess *Session) {
	m.mu.Lock()
	if sess.refs > 0 {
		sess.refs--
	}
	last := sess.refs == 0
	if last && m.sessions[sess.userID] == sess {
		delete(m.sessions, sess.userID)
	}
	m.mu.Unlock()
	if last {
		sess.shutdown()
	}
}

func (m *SessionManager) drop(sess *Session) {
	m.mu.Lock()
	if m.sessions[sess.userID] == sess {
		delete(m.sessions, sess.userID)
	}
	m.mu.Unlock()
	sess.shutdown()
}
