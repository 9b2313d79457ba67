package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

// fakeRoleRepo is a hand-rolled in-memory repository; the session tests
// need real Watch channels, which testify mocks express poorly.
type fakeRoleRepo struct {
	mu      sync.Mutex
	records map[string]domain.RoleRecord
	watches []*fakeWatch
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{records: make(map[string]domain.RoleRecord)}
}

func (r *fakeRoleRepo) GetRole(_ context.Context, userID string) (domain.RoleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return domain.RoleRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *fakeRoleRepo) CreateRole(_ context.Context, userID string, role domain.RoleTag) (domain.RoleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[userID]; ok {
		return domain.RoleRecord{}, domain.ErrAlreadyExists
	}
	rec := domain.RoleRecord{
		UserID:      userID,
		Role:        role,
		Permissions: domain.DefaultPermissions(role),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	r.records[userID] = rec
	return rec, nil
}

func (r *fakeRoleRepo) UpdatePermissions(_ context.Context, userID string, perms domain.PermissionSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Permissions = perms
	rec.UpdatedAt = time.Now().UTC()
	r.records[userID] = rec
	return nil
}

func (r *fakeRoleRepo) UpdateRole(_ context.Context, userID string, role domain.RoleTag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Role = role
	r.records[userID] = rec
	return nil
}

func (r *fakeRoleRepo) ListAll(_ context.Context, fn func(domain.RoleRecord) error) error {
	r.mu.Lock()
	records := make([]domain.RoleRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.mu.Unlock()
	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRoleRepo) Watch(_ context.Context, userID string) (ports.RoleWatch, error) {
	w := &fakeWatch{userID: userID, ch: make(chan domain.RoleRecord, 8)}
	r.mu.Lock()
	r.watches = append(r.watches, w)
	r.mu.Unlock()
	return w, nil
}

// push simulates an out-of-band store change reaching the change feed.
func (r *fakeRoleRepo) push(rec domain.RoleRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.UserID] = rec
	for _, w := range r.watches {
		if w.userID == rec.UserID {
			w.send(rec)
		}
	}
}

type fakeWatch struct {
	userID     string
	ch         chan domain.RoleRecord
	closed     bool
	closeCalls int
	mu         sync.Mutex
}

func (w *fakeWatch) Changes() <-chan domain.RoleRecord { return w.ch }

func (w *fakeWatch) send(rec domain.RoleRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.ch <- rec
	}
}

func (w *fakeWatch) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeCalls++
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSessionManager_ProvisionsBrandNewUser(t *testing.T) {
	repo := newFakeRoleRepo()
	manager := NewSessionManager(repo, nopLogger{})

	sess, err := manager.Attach(context.Background(), "fresh")
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, SessionLive, sess.State())
	assert.False(t, sess.IsAdmin())
	assert.Empty(t, sess.Record().Permissions)

	// The record now exists with the default role.
	rec, err := repo.GetRole(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, rec.Role)
}

func TestSession_LivePushFlipsDecision(t *testing.T) {
	repo := newFakeRoleRepo()
	manager := NewSessionManager(repo, nopLogger{})

	sess, err := manager.Attach(context.Background(), "u1")
	require.NoError(t, err)
	defer sess.Close()

	require.False(t, sess.IsAllowed(domain.ModuleVisitors, "New Request"))

	// Admin grants visitors access out-of-band, in the legacy bool-map
	// shape; the feed delivers the already-normalized record.
	granted := domain.NormalizePermissions(map[string]any{
		"visitors": map[string]any{"hasAccess": true, "subPages": []any{"New Request"}},
	})
	repo.push(domain.RoleRecord{UserID: "u1", Role: domain.RoleUser, Permissions: granted, UpdatedAt: time.Now().UTC()})

	waitFor(t, func() bool { return sess.IsAllowed(domain.ModuleVisitors, "New Request") })
	assert.False(t, sess.IsAllowed(domain.ModuleVisitors, "Update"))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	repo := newFakeRoleRepo()
	manager := NewSessionManager(repo, nopLogger{})

	sess, err := manager.Attach(context.Background(), "u1")
	require.NoError(t, err)

	sess.Close()
	sess.Close()

	require.Len(t, repo.watches, 1)
	assert.True(t, repo.watches[0].closed)
	assert.Equal(t, SessionDisconnected, sess.State())
	assert.Nil(t, manager.Peek("u1"))
}

func TestSessionManager_SharesSessionAcrossAttachments(t *testing.T) {
	repo := newFakeRoleRepo()
	manager := NewSessionManager(repo, nopLogger{})

	first, err := manager.Attach(context.Background(), "u1")
	require.NoError(t, err)
	second, err := manager.Attach(context.Background(), "u1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	require.Len(t, repo.watches, 1)

	// The watch survives until the last holder lets go.
	first.Close()
	assert.False(t, repo.watches[0].closed)
	second.Close()
	assert.True(t, repo.watches[0].closed)
}

func TestSession_DeniesWhileSyncing(t *testing.T) {
	sess := &Session{userID: "u1", manager: NewSessionManager(newFakeRoleRepo(), nopLogger{})}
	sess.state.Store(int32(SessionSyncing))

	assert.False(t, sess.IsAllowed(domain.ModuleAttendance, "New Request"))
	assert.False(t, sess.IsAdmin())
	assert.Empty(t, sess.VisibleMenu())
}
