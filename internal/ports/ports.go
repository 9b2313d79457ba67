package ports

import (
	"context"

	"ops-portal/internal/domain"
)

// RoleRecordRepository persists one RoleRecord per user identity.
type RoleRecordRepository interface {
	// GetRole returns domain.ErrNotFound when the user has no record yet.
	GetRole(ctx context.Context, userID string) (domain.RoleRecord, error)
	// CreateRole writes a fresh record with role-derived default
	// permissions. It returns domain.ErrAlreadyExists instead of silently
	// overwriting a concurrent provisioning attempt.
	CreateRole(ctx context.Context, userID string, role domain.RoleTag) (domain.RoleRecord, error)
	// UpdatePermissions atomically replaces the stored set and bumps the
	// update timestamp. Returns domain.ErrNotFound for unknown users.
	UpdatePermissions(ctx context.Context, userID string, perms domain.PermissionSet) error
	// UpdateRole changes the user's role tag.
	UpdateRole(ctx context.Context, userID string, role domain.RoleTag) error
	// ListAll streams every stored record through fn; used by the
	// migration pass. fn returning an error aborts the walk.
	ListAll(ctx context.Context, fn func(domain.RoleRecord) error) error
	// Watch delivers the latest record every time it changes in the
	// backing store, in store write order. The returned handle must be
	// closed; Close is idempotent.
	Watch(ctx context.Context, userID string) (RoleWatch, error)
}

// RoleWatch is a live change feed for a single user's record.
type RoleWatch interface {
	Changes() <-chan domain.RoleRecord
	Close()
}

// AccountStore is the external identity provider.
type AccountStore interface {
	// SignIn exchanges credentials for tokens. Returns the identity token
	// the HTTP middleware later verifies plus the access token needed for
	// sign-out.
	SignIn(ctx context.Context, username, password string) (SignInResult, error)
	// SignOut revokes the session behind the access token.
	SignOut(ctx context.Context, accessToken string) error
	// Provision creates a new account and returns its stable identity.
	Provision(ctx context.Context, username, email string) (string, error)
}

// SignInResult carries the tokens issued by the Account Store.
type SignInResult struct {
	IDToken     string
	AccessToken string
	ExpiresIn   int32
}

// DocumentStore is the generic record backend the form pages write to.
// Documents are opaque JSON objects keyed by (collection, id).
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (map[string]any, error)
	Set(ctx context.Context, collection, id string, doc map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string) ([]map[string]any, error)
}

// Logger is the structured logging port used across the service.
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}
