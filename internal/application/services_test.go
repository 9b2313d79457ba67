package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

type roleRepoMock struct{ mock.Mock }

func (m *roleRepoMock) GetRole(ctx context.Context, userID string) (domain.RoleRecord, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.RoleRecord), args.Error(1)
}

func (m *roleRepoMock) CreateRole(ctx context.Context, userID string, role domain.RoleTag) (domain.RoleRecord, error) {
	args := m.Called(ctx, userID, role)
	return args.Get(0).(domain.RoleRecord), args.Error(1)
}

func (m *roleRepoMock) UpdatePermissions(ctx context.Context, userID string, perms domain.PermissionSet) error {
	args := m.Called(ctx, userID, perms)
	return args.Error(0)
}

func (m *roleRepoMock) UpdateRole(ctx context.Context, userID string, role domain.RoleTag) error {
	args := m.Called(ctx, userID, role)
	return args.Error(0)
}

func (m *roleRepoMock) ListAll(ctx context.Context, fn func(domain.RoleRecord) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *roleRepoMock) Watch(ctx context.Context, userID string) (ports.RoleWatch, error) {
	args := m.Called(ctx, userID)
	if w := args.Get(0); w != nil {
		return w.(ports.RoleWatch), args.Error(1)
	}
	return nil, args.Error(1)
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Debug(context.Context, string, ...any) {}

func TestRoleService_ProvisionDefaults(t *testing.T) {
	repo := new(roleRepoMock)
	svc := NewRoleService(repo, nopLogger{})

	userRec := domain.RoleRecord{UserID: "u1", Role: domain.RoleUser, Permissions: domain.NewPermissionSet()}
	repo.On("CreateRole", mock.Anything, "u1", domain.RoleUser).Return(userRec, nil)

	rec, err := svc.Provision(context.Background(), "u1", domain.RoleUser)
	require.NoError(t, err)
	assert.Empty(t, rec.Permissions)
	assert.False(t, domain.IsAdmin(rec.Role))
	repo.AssertExpectations(t)
}

func TestRoleService_ProvisionAdminGetsFullUniverse(t *testing.T) {
	repo := new(roleRepoMock)
	svc := NewRoleService(repo, nopLogger{})

	adminRec := domain.RoleRecord{UserID: "u2", Role: domain.RoleAdmin, Permissions: domain.DefaultPermissions(domain.RoleAdmin)}
	repo.On("CreateRole", mock.Anything, "u2", domain.RoleAdmin).Return(adminRec, nil)

	rec, err := svc.Provision(context.Background(), "u2", domain.RoleAdmin)
	require.NoError(t, err)
	assert.ElementsMatch(t, domain.CapabilityUniverse(), rec.Permissions.Tokens())
}

func TestRoleService_ProvisionRaceFallsBackToRead(t *testing.T) {
	repo := new(roleRepoMock)
	svc := NewRoleService(repo, nopLogger{})

	existing := domain.RoleRecord{UserID: "u1", Role: domain.RoleUser, Permissions: domain.NewPermissionSet("visitors_update")}
	repo.On("CreateRole", mock.Anything, "u1", domain.RoleUser).Return(domain.RoleRecord{}, domain.ErrAlreadyExists)
	repo.On("GetRole", mock.Anything, "u1").Return(existing, nil)

	rec, err := svc.Provision(context.Background(), "u1", domain.RoleUser)
	require.NoError(t, err)
	assert.True(t, rec.Permissions.Has("visitors_update"))
	repo.AssertExpectations(t)
}

func TestRoleService_UpdatePermissionsNormalizesBeforeWrite(t *testing.T) {
	repo := new(roleRepoMock)
	svc := NewRoleService(repo, nopLogger{})

	repo.On("UpdatePermissions", mock.Anything, "u1", mock.MatchedBy(func(perms domain.PermissionSet) bool {
		return len(perms) == 1 && perms.Has("badge_request_new_request")
	})).Return(nil)

	err := svc.UpdatePermissions(context.Background(), "u1", []string{"Badge_Request_New_Request", "badge_request_new_request"})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRoleService_UpdatePermissionsNotFound(t *testing.T) {
	repo := new(roleRepoMock)
	svc := NewRoleService(repo, nopLogger{})

	repo.On("UpdatePermissions", mock.Anything, "ghost", mock.Anything).Return(domain.ErrNotFound)

	err := svc.UpdatePermissions(context.Background(), "ghost", []string{"attendance_update"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRoleService_InvalidInput(t *testing.T) {
	svc := NewRoleService(new(roleRepoMock), nopLogger{})

	_, err := svc.Provision(context.Background(), "", domain.RoleUser)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = svc.SetRole(context.Background(), "u1", "superuser")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAuthorizationService_AllowedAndDenied(t *testing.T) {
	repo := new(roleRepoMock)
	svc := NewAuthorizationService(repo, nil, nopLogger{})

	rec := domain.RoleRecord{UserID: "u1", Role: domain.RoleUser, Permissions: domain.NewPermissionSet("attendance_new_request")}
	repo.On("GetRole", mock.Anything, "u1").Return(rec, nil)

	allowed, err := svc.IsAllowed(context.Background(), "u1", domain.ModuleAttendance, "New Request")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.IsAllowed(context.Background(), "u1", domain.ModuleAttendance, "Update")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAuthorizationService_MissingRecordDeniesWithoutError(t *testing.T) {
	repo := new(roleRepoMock)
	svc := NewAuthorizationService(repo, nil, nopLogger{})

	repo.On("GetRole", mock.Anything, "newcomer").Return(domain.RoleRecord{}, domain.ErrNotFound)

	allowed, err := svc.IsAllowed(context.Background(), "newcomer", domain.ModuleVisitors, "Update")
	require.NoError(t, err)
	assert.False(t, allowed)

	isAdmin, err := svc.IsAdmin(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestAuthorizationService_PropagatesRepoErrors(t *testing.T) {
	repo := new(roleRepoMock)
	svc := NewAuthorizationService(repo, nil, nopLogger{})

	boom := errors.New("store unreachable")
	repo.On("GetRole", mock.Anything, "u1").Return(domain.RoleRecord{}, boom)

	allowed, err := svc.IsAllowed(context.Background(), "u1", domain.ModuleReports, "View Reports")
	assert.False(t, allowed)
	assert.ErrorIs(t, err, boom)
}

func TestNavigationService_VisibleMenu(t *testing.T) {
	repo := new(roleRepoMock)
	authz := NewAuthorizationService(repo, nil, nopLogger{})
	svc := NewNavigationService(authz)

	rec := domain.RoleRecord{UserID: "u1", Role: domain.RoleUser, Permissions: domain.NewPermissionSet("attendance_new_request")}
	repo.On("GetRole", mock.Anything, "u1").Return(rec, nil)

	menu, err := svc.VisibleMenu(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.Equal(t, domain.ModuleAttendance, menu[0].Module)
}

type docStoreMock struct{ mock.Mock }

func (m *docStoreMock) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	args := m.Called(ctx, collection, id)
	if doc := args.Get(0); doc != nil {
		return doc.(map[string]any), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *docStoreMock) Set(ctx context.Context, collection, id string, doc map[string]any) error {
	args := m.Called(ctx, collection, id, doc)
	return args.Error(0)
}

func (m *docStoreMock) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	args := m.Called(ctx, collection, id, fields)
	return args.Error(0)
}

func (m *docStoreMock) Delete(ctx context.Context, collection, id string) error {
	args := m.Called(ctx, collection, id)
	return args.Error(0)
}

func (m *docStoreMock) Query(ctx context.Context, collection string) ([]map[string]any, error) {
	args := m.Called(ctx, collection)
	if docs := args.Get(0); docs != nil {
		return docs.([]map[string]any), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRecordService_CreateStampsTimestamps(t *testing.T) {
	store := new(docStoreMock)
	svc := NewRecordService(store, nopLogger{})

	store.On("Set", mock.Anything, "attendance", "doc-1", mock.MatchedBy(func(doc map[string]any) bool {
		_, created := doc["createdAt"]
		_, updated := doc["updatedAt"]
		return created && updated
	})).Return(nil)

	err := svc.Create(context.Background(), "attendance", "doc-1", map[string]any{"status": "pending"})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestRecordService_RejectsUnknownCollection(t *testing.T) {
	svc := NewRecordService(new(docStoreMock), nopLogger{})

	_, err := svc.Get(context.Background(), "payroll", "doc-1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.List(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
