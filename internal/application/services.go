package application

import (
	"context"
	"errors"
	"time"

	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

// RoleService owns provisioning and administrative edits of role records.
type RoleService struct {
	repo   ports.RoleRecordRepository
	logger ports.Logger
}

func NewRoleService(repo ports.RoleRecordRepository, logger ports.Logger) *RoleService {
	return &RoleService{repo: repo, logger: logger}
}

func (s *RoleService) GetRole(ctx context.Context, userID string) (domain.RoleRecord, error) {
	if userID == "" {
		return domain.RoleRecord{}, domain.ErrInvalidInput
	}
	return s.repo.GetRole(ctx, userID)
}

// Provision creates the role record for a new user. A lost provisioning
// race is benign: two sessions may race to create the record for the same
// brand-new user, so AlreadyExists falls back to reading what won.
func (s *RoleService) Provision(ctx context.Context, userID string, role domain.RoleTag) (domain.RoleRecord, error) {
	if userID == "" {
		return domain.RoleRecord{}, domain.ErrInvalidInput
	}
	rec, err := s.repo.CreateRole(ctx, userID, role)
	if errors.Is(err, domain.ErrAlreadyExists) {
		s.logger.Warn(ctx, "role record already provisioned", "user_id", userID)
		return s.repo.GetRole(ctx, userID)
	}
	return rec, err
}

// UpdatePermissions replaces the user's whole permission set. Tokens are
// normalized before the write so the store only ever gains canonical data.
func (s *RoleService) UpdatePermissions(ctx context.Context, userID string, tokens []string) error {
	if userID == "" {
		return domain.ErrInvalidInput
	}
	perms := domain.NormalizePermissions(anyTokens(tokens))
	if err := s.repo.UpdatePermissions(ctx, userID, perms); err != nil {
		return err
	}
	s.logger.Info(ctx, "permissions updated", "user_id", userID, "count", len(perms))
	return nil
}

func (s *RoleService) SetRole(ctx context.Context, userID string, role domain.RoleTag) error {
	if userID == "" {
		return domain.ErrInvalidInput
	}
	if role != domain.RoleAdmin && role != domain.RoleUser {
		return domain.ErrInvalidInput
	}
	return s.repo.UpdateRole(ctx, userID, role)
}

func anyTokens(tokens []string) []any {
	out := make([]any, len(tokens))
	for i, t := range tokens {
		out[i] = t
	}
	return out
}

// AuthorizationService is the single allow/deny decision point. It prefers
// the live session snapshot when one exists and falls back to a one-shot
// repository read; while no canonical set is available the answer is deny.
type AuthorizationService struct {
	repo     ports.RoleRecordRepository
	sessions *SessionManager
	logger   ports.Logger
}

func NewAuthorizationService(repo ports.RoleRecordRepository, sessions *SessionManager, logger ports.Logger) *AuthorizationService {
	return &AuthorizationService{repo: repo, sessions: sessions, logger: logger}
}

// Snapshot resolves the caller's current role record. A missing record is
// not an error: it resolves to the default role with no permissions.
func (s *AuthorizationService) Snapshot(ctx context.Context, userID string) (domain.RoleRecord, error) {
	if userID == "" {
		return domain.RoleRecord{}, domain.ErrInvalidInput
	}
	if s.sessions != nil {
		if sess := s.sessions.Peek(userID); sess != nil && sess.State() == SessionLive {
			return sess.Record(), nil
		}
	}
	rec, err := s.repo.GetRole(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RoleRecord{UserID: userID, Role: domain.RoleUser, Permissions: domain.NewPermissionSet()}, nil
	}
	return rec, err
}

func (s *AuthorizationService) IsAllowed(ctx context.Context, userID, module, action string) (bool, error) {
	rec, err := s.Snapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	return domain.Allowed(rec.Role, rec.Permissions, module, action), nil
}

func (s *AuthorizationService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	rec, err := s.Snapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	return domain.IsAdmin(rec.Role), nil
}

// NavigationService derives the navigation tree a user may see.
type NavigationService struct {
	authz *AuthorizationService
}

func NewNavigationService(authz *AuthorizationService) *NavigationService {
	return &NavigationService{authz: authz}
}

func (s *NavigationService) VisibleMenu(ctx context.Context, userID string) ([]domain.MenuItem, error) {
	rec, err := s.authz.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.FilterMenu(domain.DefaultMenu(), rec.Role, rec.Permissions), nil
}

// RecordService fronts the generic document store the form pages use. Every
// collection maps to a portal module; the HTTP layer gates each verb with
// the matching capability before this service runs.
type RecordService struct {
	store  ports.DocumentStore
	logger ports.Logger
}

func NewRecordService(store ports.DocumentStore, logger ports.Logger) *RecordService {
	return &RecordService{store: store, logger: logger}
}

func (s *RecordService) validate(collection, id string) error {
	if collection == "" || id == "" {
		return domain.ErrInvalidInput
	}
	if !domain.KnownModule(collection) {
		return domain.ErrInvalidInput
	}
	return nil
}

func (s *RecordService) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := s.validate(collection, id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, collection, id)
}

func (s *RecordService) Create(ctx context.Context, collection, id string, doc map[string]any) error {
	if err := s.validate(collection, id); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	doc["createdAt"] = now
	doc["updatedAt"] = now
	return s.store.Set(ctx, collection, id, doc)
}

func (s *RecordService) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := s.validate(collection, id); err != nil {
		return err
	}
	fields["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	return s.store.Update(ctx, collection, id, fields)
}

func (s *RecordService) Delete(ctx context.Context, collection, id string) error {
	if err := s.validate(collection, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, collection, id)
}

func (s *RecordService) List(ctx context.Context, collection string) ([]map[string]any, error) {
	if collection == "" || !domain.KnownModule(collection) {
		return nil, domain.ErrInvalidInput
	}
	return s.store.Query(ctx, collection)
}
