package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMenu_SingleCapabilityScenario(t *testing.T) {
	perms := NewPermissionSet("attendance_new_request")

	visible := FilterMenu(DefaultMenu(), RoleUser, perms)

	require.Len(t, visible, 1)
	assert.Equal(t, ModuleAttendance, visible[0].Module)
	require.Len(t, visible[0].Actions, 1)
	assert.Equal(t, "New Request", visible[0].Actions[0].Label)
}

func TestFilterMenu_AdminSeesEverything(t *testing.T) {
	menu := DefaultMenu()

	visible := FilterMenu(menu, RoleAdmin, NewPermissionSet())

	require.Len(t, visible, len(menu))
	for i, item := range visible {
		assert.Equal(t, menu[i].Module, item.Module)
		assert.Len(t, item.Actions, len(menu[i].Actions))
	}
}

func TestFilterMenu_PreservesDeclaredOrder(t *testing.T) {
	perms := NewPermissionSet("visitors_pending", "stakeholder_update", "reports_view_reports")

	visible := FilterMenu(DefaultMenu(), RoleUser, perms)

	modules := make([]string, 0, len(visible))
	for _, item := range visible {
		modules = append(modules, item.Module)
	}
	assert.Equal(t, []string{ModuleStakeholder, ModuleVisitors, ModuleReports}, modules)
}

func TestFilterMenu_ActionlessItemAlwaysKept(t *testing.T) {
	menu := append([]MenuItem{{Module: "dashboard", Label: "Dashboard"}}, DefaultMenu()...)

	visible := FilterMenu(menu, RoleUser, NewPermissionSet())

	require.Len(t, visible, 1)
	assert.Equal(t, "dashboard", visible[0].Module)
}

func TestFilterMenu_NoDeadLinks(t *testing.T) {
	perms := NewPermissionSet("badge_request_update", "reports_export_reports")

	for _, item := range FilterMenu(DefaultMenu(), RoleUser, perms) {
		for _, action := range item.Actions {
			assert.True(t, Allowed(RoleUser, perms, item.Module, action.Token),
				"menu exposes %s/%s which the gate rejects", item.Module, action.Token)
		}
	}
}
