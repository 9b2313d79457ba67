package domain

import "strings"

// Portal modules. The set is closed: capability tokens only ever resolve
// against these modules and the actions registered for them below.
const (
	ModuleStakeholder     = "stakeholder"
	ModuleBackgroundCheck = "background_check"
	ModuleBadgeRequest    = "badge_request"
	ModuleAccessRequest   = "access_request"
	ModuleAttendance      = "attendance"
	ModuleVisitors        = "visitors"
	ModuleReports         = "reports"
	ModuleAdminAccess     = "admin_access"
)

// Sub-action tokens shared by the request-tracking modules.
const (
	ActionNewRequest = "new_request"
	ActionUpdate     = "update"
	ActionPending    = "pending"
)

// Reporting sub-actions.
const (
	ActionViewReports   = "view_reports"
	ActionExportReports = "export_reports"
)

// moduleActions registers the closed action set per module. A nil entry is
// a module-only capability: the token is the bare module name.
var moduleActions = map[string][]string{
	ModuleStakeholder:     {ActionNewRequest, ActionUpdate, ActionPending},
	ModuleBackgroundCheck: {ActionNewRequest, ActionUpdate, ActionPending},
	ModuleBadgeRequest:    {ActionNewRequest, ActionUpdate, ActionPending},
	ModuleAccessRequest:   {ActionNewRequest, ActionUpdate, ActionPending},
	ModuleAttendance:      {ActionNewRequest, ActionUpdate, ActionPending},
	ModuleVisitors:        {ActionNewRequest, ActionUpdate, ActionPending},
	ModuleReports:         {ActionViewReports, ActionExportReports},
	ModuleAdminAccess:     nil,
}

// KnownModule reports whether the module name belongs to the closed set.
func KnownModule(module string) bool {
	_, ok := moduleActions[module]
	return ok
}

// ModuleActions returns the registered action tokens for a module, empty
// for module-only capabilities and unknown modules.
func ModuleActions(module string) []string {
	actions := moduleActions[module]
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}

// ActionToken folds a human-readable action label ("New Request") into the
// canonical token form ("new_request"): lower-cased, internal whitespace
// collapsed to single underscores.
func ActionToken(label string) string {
	fields := strings.Fields(strings.ToLower(label))
	return strings.Join(fields, "_")
}

// CapabilityKey builds the canonical token for a module/action pair. An
// empty action means a module-only capability and yields the bare module
// token; callers must not pass an empty string when they mean a real
// sub-action.
func CapabilityKey(module, action string) string {
	if action == "" {
		return module
	}
	return module + "_" + ActionToken(action)
}

// CapabilityUniverse returns every grantable token, in registry order. This
// is the default permission set for admins.
func CapabilityUniverse() []string {
	universe := make([]string, 0, len(modulesInOrder)*3)
	for _, module := range modulesInOrder {
		actions := moduleActions[module]
		if len(actions) == 0 {
			universe = append(universe, module)
			continue
		}
		for _, action := range actions {
			universe = append(universe, CapabilityKey(module, action))
		}
	}
	return universe
}

var modulesInOrder = []string{
	ModuleStakeholder,
	ModuleBackgroundCheck,
	ModuleBadgeRequest,
	ModuleAccessRequest,
	ModuleAttendance,
	ModuleVisitors,
	ModuleReports,
	ModuleAdminAccess,
}
