package domain

// IsAdmin is the single definition of the administrator override. Screens
// that are admin-only regardless of granular capability compose this, never
// a raw string comparison.
func IsAdmin(role RoleTag) bool {
	return role == RoleAdmin
}

// Allowed answers whether the holder of the given role and permission set
// may use the capability. Admins are allowed unconditionally; everyone else
// must hold the canonical token. An empty action checks the module-only
// capability.
func Allowed(role RoleTag, perms PermissionSet, module, action string) bool {
	if IsAdmin(role) {
		return true
	}
	if module == "" {
		return false
	}
	return perms.Has(CapabilityKey(module, action))
}
