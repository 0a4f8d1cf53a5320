package livestore

import (
	"encoding/json"
	"fmt"
	"strings"
)

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func joinPath(parts []string) string { return strings.Join(parts, "/") }

// related reports whether a change at one path is visible from the other.
func related(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalize turns any Go value into its JSON-decoded form and copies it in the process.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value not representable as JSON: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	default:
		return t
	}
}

func lookup(node any, parts []string) any {
	for _, p := range parts {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[p]
		if !ok {
			return nil
		}
	}
	return node
}

// assign writes value at parts below root, creating intermediate nodes. A nil value
// removes the node and prunes parents left empty.
func assign(root map[string]any, parts []string, value any) {
	if len(parts) == 0 {
		return
	}
	if value == nil {
		remove(root, parts)
		return
	}
	m := root
	for _, p := range parts[:len(parts)-1] {
		child, ok := m[p].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[p] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = value
}

func remove(m map[string]any, parts []string) (empty bool) {
	key := parts[0]
	if len(parts) == 1 {
		delete(m, key)
		return len(m) == 0
	}
	child, ok := m[key].(map[string]any)
	if !ok {
		return len(m) == 0
	}
	if remove(child, parts[1:]) {
		delete(m, key)
	}
	return len(m) == 0
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
