package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// RoleTag is the coarse role assigned to a user. Admins bypass granular
// capability checks entirely; everyone else only holds what was granted.
type RoleTag string

const (
	RoleAdmin RoleTag = "admin"
	RoleUser  RoleTag = "user"
)

// ParseRoleTag maps a stored role value to a RoleTag. A missing or
// unrecognized value means the default role, never admin.
func ParseRoleTag(raw string) RoleTag {
	if RoleTag(raw) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// PermissionSet holds canonical capability tokens (`module_action`, or just
// `module` for capabilities without sub-actions). Membership only; order is
// irrelevant. Unknown tokens are carried along untouched so newer writers do
// not lose data, but they only ever match by exact string equality.
type PermissionSet map[string]struct{}

func NewPermissionSet(tokens ...string) PermissionSet {
	set := make(PermissionSet, len(tokens))
	for _, t := range tokens {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

func (s PermissionSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Tokens returns the members sorted, so persisted and serialized forms are
// stable across runs.
func (s PermissionSet) Tokens() []string {
	tokens := make([]string, 0, len(s))
	for t := range s {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for t := range s {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Tokens())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	*s = NewPermissionSet(tokens...)
	return nil
}

// RoleRecord is the persisted role and permission state for one user. One
// record per user identity; permission edits replace the whole set.
type RoleRecord struct {
	UserID      string        `json:"user_id"`
	Role        RoleTag       `json:"role"`
	Permissions PermissionSet `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// StoredCanonical reports whether the persisted permission value was
	// already the canonical token list. Set by the repository on read;
	// never persisted. The migration pass uses it to skip clean records.
	StoredCanonical bool `json:"-"`
}

// DefaultPermissions computes the set a freshly provisioned user starts
// with: admins get the full capability universe, everyone else starts empty.
func DefaultPermissions(role RoleTag) PermissionSet {
	if role == RoleAdmin {
		return NewPermissionSet(CapabilityUniverse()...)
	}
	return NewPermissionSet()
}
