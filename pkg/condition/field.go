package condition

import (
	"strings"

	"mercator-hq/compass/pkg/rules"
)

// resolveField looks up a dot-separated path in the context. The second
// result is false when any segment is missing.
func resolveField(path string, c *rules.Context) (any, bool) {
	parts := strings.Split(path, ".")
	root, rest := parts[0], parts[1:]

	switch root {
	case "context_type":
		return string(c.ContextType), len(rest) == 0
	case "context_id":
		return c.ContextID, len(rest) == 0
	case "user_role":
		return c.UserRole, len(rest) == 0
	case "related_ids":
		if len(rest) != 1 {
			return nil, false
		}
		v, ok := c.RelatedIDs[rest[0]]
		return v, ok
	case "signals":
		if len(rest) != 1 {
			return nil, false
		}
		v, ok := c.SignalOverrides[rest[0]]
		return v, ok
	case "attributes":
		if len(rest) == 0 {
			return nil, false
		}
		return lookup(c.Attributes, rest)
	default:
		return lookup(c.Attributes, parts)
	}
}

// lookup walks nested maps.
func lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}
