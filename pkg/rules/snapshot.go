package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// NewSnapshot builds an immutable snapshot of the active rules of one
// context type. Rules are ordered by id.
func NewSnapshot(contextType ContextType, version int64, all []*Rule, loadedAt time.Time) *Snapshot {
	selected := make([]*Rule, 0, len(all))
	for _, r := range all {
		if r.ContextType == contextType && r.IsActive() {
			selected = append(selected, r)
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].ID < selected[j].ID
	})

	return &Snapshot{
		ContextType: contextType,
		Version:     version,
		Rules:       selected,
		Digest:      Digest(selected),
		LoadedAt:    loadedAt,
	}
}

// Digest returns a content hash of the given rules, independent of their order.
func Digest(rs []*Rule) string {
	sorted := make([]*Rule, len(rs))
	copy(sorted, rs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, r := range sorted {
		// Source is excluded from the JSON encoding, so moving a rule between
		// files does not produce a new version.
		if err := enc.Encode(r); err != nil {
			h.Write([]byte(r.ID))
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ContextTypes returns the distinct context types present in rs, sorted.
func ContextTypes(rs []*Rule) []ContextType {
	seen := make(map[ContextType]struct{})
	for _, r := range rs {
		seen[r.ContextType] = struct{}{}
	}
	out := make([]ContextType, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
