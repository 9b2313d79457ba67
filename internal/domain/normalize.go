package domain

import "sort"

// NormalizePermissions folds any of the historical stored permission shapes
// into the canonical PermissionSet. The portal accumulated several formats
// over time and all of them are still present in stored records:
//
//  1. a flat array of tokens (already canonical)
//  2. module -> {hasAccess: bool, subPages: [labels]}
//  3. module -> [labels]
//  4. map whose values are complete token strings
//
// Shapes are tried in that order and the first match wins. Anything else
// (nil, scalars, unrecognized nesting) yields the empty set: malformed data
// must never widen access. Output is independent of map iteration order.
func NormalizePermissions(raw any) PermissionSet {
	switch value := raw.(type) {
	case nil:
		return NewPermissionSet()
	case []string:
		return normalizeTokenList(anyStrings(value))
	case []any:
		return normalizeTokenList(value)
	case map[string]any:
		if set, ok := normalizeAccessMap(value); ok {
			return set
		}
		if set, ok := normalizeLabelMap(value); ok {
			return set
		}
		if set, ok := normalizeScalarMap(value); ok {
			return set
		}
		return NewPermissionSet()
	default:
		return NewPermissionSet()
	}
}

func anyStrings(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Shape 1: flat array of strings. A single non-string member disqualifies
// the whole array; matched members are lower-cased and deduplicated.
func normalizeTokenList(values []any) PermissionSet {
	set := NewPermissionSet()
	for _, v := range values {
		token, ok := v.(string)
		if !ok {
			return NewPermissionSet()
		}
		if token != "" {
			set[ActionToken(token)] = struct{}{}
		}
	}
	return set
}

// Shape 2: every value is an object carrying a boolean hasAccess and a
// subPages array. Modules with hasAccess false contribute nothing.
func normalizeAccessMap(value map[string]any) (PermissionSet, bool) {
	type entry struct {
		hasAccess bool
		subPages  []any
	}
	entries := make(map[string]entry, len(value))
	for module, v := range value {
		wrapper, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		hasAccess, ok := wrapper["hasAccess"].(bool)
		if !ok {
			return nil, false
		}
		subPages, ok := wrapper["subPages"].([]any)
		if !ok {
			if wrapper["subPages"] != nil {
				return nil, false
			}
			subPages = nil
		}
		entries[module] = entry{hasAccess: hasAccess, subPages: subPages}
	}

	set := NewPermissionSet()
	for _, module := range sortedKeys(entries) {
		e := entries[module]
		if !e.hasAccess {
			continue
		}
		for _, page := range e.subPages {
			if label, ok := page.(string); ok && label != "" {
				set[CapabilityKey(module, label)] = struct{}{}
			}
		}
	}
	return set, true
}

// Shape 3: every value is a bare array of sub-action labels.
func normalizeLabelMap(value map[string]any) (PermissionSet, bool) {
	for _, v := range value {
		if _, ok := v.([]any); !ok {
			return nil, false
		}
	}
	set := NewPermissionSet()
	for _, module := range sortedKeys(value) {
		for _, page := range value[module].([]any) {
			if label, ok := page.(string); ok && label != "" {
				set[CapabilityKey(module, label)] = struct{}{}
			}
		}
	}
	return set, true
}

// Shape 4: values are themselves complete tokens. Non-string values are
// skipped rather than rejecting the whole record.
func normalizeScalarMap(value map[string]any) (PermissionSet, bool) {
	matched := false
	set := NewPermissionSet()
	for _, key := range sortedKeys(value) {
		if token, ok := value[key].(string); ok && token != "" {
			set[ActionToken(token)] = struct{}{}
			matched = true
		}
	}
	if !matched {
		return nil, false
	}
	return set, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
