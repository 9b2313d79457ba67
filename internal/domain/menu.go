package domain

// MenuAction is one clickable sub-entry under a module.
type MenuAction struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// MenuItem is one top-level navigation entry. Items without actions are
// plain links (e.g. a dashboard) and are visible to everyone.
type MenuItem struct {
	Module  string       `json:"module"`
	Label   string       `json:"label"`
	Actions []MenuAction `json:"actions,omitempty"`
}

// DefaultMenu is the full static navigation tree in display order. The
// Navigation Filter trims it per user; nothing else reorders it.
func DefaultMenu() []MenuItem {
	return []MenuItem{
		{Module: ModuleStakeholder, Label: "Stakeholder Inquiries", Actions: standardActions()},
		{Module: ModuleBackgroundCheck, Label: "Background Checks", Actions: standardActions()},
		{Module: ModuleBadgeRequest, Label: "Badge Requests", Actions: standardActions()},
		{Module: ModuleAccessRequest, Label: "Facility Access", Actions: standardActions()},
		{Module: ModuleAttendance, Label: "Attendance", Actions: standardActions()},
		{Module: ModuleVisitors, Label: "Visitor Registration", Actions: standardActions()},
		{Module: ModuleReports, Label: "Reports", Actions: []MenuAction{
			{Label: "View Reports", Token: ActionViewReports},
			{Label: "Export Reports", Token: ActionExportReports},
		}},
	}
}

func standardActions() []MenuAction {
	return []MenuAction{
		{Label: "New Request", Token: ActionNewRequest},
		{Label: "Update", Token: ActionUpdate},
		{Label: "Pending", Token: ActionPending},
	}
}

// FilterMenu derives the navigation a user may actually see. A module with
// sub-actions survives only if at least one sub-action is allowed, and then
// only with the allowed subset, in declared order. Action-less modules are
// always kept. The output never contains a link the gate would reject and
// never omits one it would accept.
func FilterMenu(menu []MenuItem, role RoleTag, perms PermissionSet) []MenuItem {
	visible := make([]MenuItem, 0, len(menu))
	for _, item := range menu {
		if len(item.Actions) == 0 {
			visible = append(visible, item)
			continue
		}
		kept := make([]MenuAction, 0, len(item.Actions))
		for _, action := range item.Actions {
			if Allowed(role, perms, item.Module, action.Token) {
				kept = append(kept, action)
			}
		}
		if len(kept) > 0 {
			visible = append(visible, MenuItem{Module: item.Module, Label: item.Label, Actions: kept})
		}
	}
	return visible
}
