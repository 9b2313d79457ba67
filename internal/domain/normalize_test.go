package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePermissions_CanonicalArrayIsFixedPoint(t *testing.T) {
	canonical := []any{"badge_request_new_request", "attendance_update"}

	set := NormalizePermissions(canonical)
	again := NormalizePermissions(anySlice(set.Tokens()))

	assert.True(t, set.Equal(again))
	assert.ElementsMatch(t, []string{"badge_request_new_request", "attendance_update"}, set.Tokens())
}

func TestNormalizePermissions_ArrayDeduplicatesAndLowercases(t *testing.T) {
	set := NormalizePermissions([]any{"Attendance_Update", "attendance_update", "reports_view_reports"})

	assert.Len(t, set, 2)
	assert.True(t, set.Has("attendance_update"))
	assert.True(t, set.Has("reports_view_reports"))
}

func TestNormalizePermissions_LegacyShapesAgree(t *testing.T) {
	boolMap := map[string]any{
		"badge_request": map[string]any{"hasAccess": true, "subPages": []any{"New Request"}},
	}
	labelMap := map[string]any{
		"badge_request": []any{"New Request"},
	}
	scalarMap := map[string]any{
		"0": "badge_request_new_request",
	}

	want := NewPermissionSet("badge_request_new_request")
	for name, raw := range map[string]any{"bool-map": boolMap, "label-map": labelMap, "scalar-map": scalarMap} {
		set := NormalizePermissions(raw)
		assert.True(t, want.Equal(set), "shape %s produced %v", name, set.Tokens())
	}
}

func TestNormalizePermissions_HasAccessFalseGrantsNothing(t *testing.T) {
	raw := map[string]any{
		"visitors":   map[string]any{"hasAccess": false, "subPages": []any{"New Request", "Update"}},
		"attendance": map[string]any{"hasAccess": true, "subPages": []any{"Pending"}},
	}

	set := NormalizePermissions(raw)
	assert.Equal(t, []string{"attendance_pending"}, set.Tokens())
}

func TestNormalizePermissions_MalformedInputYieldsEmptySet(t *testing.T) {
	for _, raw := range []any{nil, 42, "garbage", true, []any{1, 2}, map[string]any{"x": 7}} {
		set := NormalizePermissions(raw)
		assert.Empty(t, set, "input %v", raw)
	}
}

func TestNormalizePermissions_MixedArrayGrantsNothing(t *testing.T) {
	// A non-string member disqualifies the whole array; the string
	// members next to it must not survive.
	set := NormalizePermissions([]any{"attendance_update", 7, "visitors_pending"})
	assert.Empty(t, set)
}

func TestNormalizePermissions_Deterministic(t *testing.T) {
	raw := map[string]any{
		"visitors":    map[string]any{"hasAccess": true, "subPages": []any{"New Request"}},
		"attendance":  map[string]any{"hasAccess": true, "subPages": []any{"Update", "Pending"}},
		"stakeholder": map[string]any{"hasAccess": true, "subPages": []any{"New Request"}},
	}

	first := NormalizePermissions(raw)
	for i := 0; i < 20; i++ {
		assert.True(t, first.Equal(NormalizePermissions(raw)))
	}
}

func anySlice(tokens []string) []any {
	out := make([]any, len(tokens))
	for i, t := range tokens {
		out[i] = t
	}
	return out
}
