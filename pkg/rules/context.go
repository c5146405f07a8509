package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash returns the context's version hash. The caller-supplied VersionHash
// wins; otherwise the hash covers every field that can influence evaluation.
func (c *Context) Hash() string {
	if c.VersionHash != "" {
		return c.VersionHash
	}

	// encoding/json emits map keys in sorted order, so the encoding is canonical.
	data, err := json.Marshal(struct {
		ContextType     ContextType        `json:"t"`
		ContextID       string             `json:"i"`
		RelatedIDs      map[string]string  `json:"r,omitempty"`
		Attributes      map[string]any     `json:"a,omitempty"`
		UserRole        string             `json:"u,omitempty"`
		SignalOverrides map[string]float64 `json:"s,omitempty"`
	}{c.ContextType, c.ContextID, c.RelatedIDs, c.Attributes, c.UserRole, c.SignalOverrides})
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// View returns the context as a plain map, the data shape predicates
// evaluate against:
//
//	context_type, context_id, related_ids, attributes, user_role, signals
func (c *Context) View() map[string]any {
	related := make(map[string]any, len(c.RelatedIDs))
	for k, v := range c.RelatedIDs {
		related[k] = v
	}
	signals := make(map[string]any, len(c.SignalOverrides))
	for k, v := range c.SignalOverrides {
		signals[k] = v
	}
	attrs := c.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	return map[string]any{
		"context_type": string(c.ContextType),
		"context_id":   c.ContextID,
		"related_ids":  related,
		"attributes":   attrs,
		"user_role":    c.UserRole,
		"signals":      signals,
	}
}
