// Package dedupe collapses a run's raw items by content fingerprint.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"

	"newsroll/internal/core"
)

// Fingerprint hashes the whitespace-normalized key with SHA-256.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(core.NormalizeText(key)))
	return hex.EncodeToString(sum[:])
}

// Key returns the identity key of an item: its URL, else its title.
func Key(item core.RawItem) string {
	if item.URL != "" {
		return item.URL
	}
	return item.Title
}

// Filter tracks fingerprints seen within one run.
type Filter struct {
	seen    map[string]struct{}
	dropped int
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{seen: make(map[string]struct{})}
}

// Admit reports whether item is new, marking it seen. Items with neither URL
// nor title are never admitted.
func (f *Filter) Admit(item core.RawItem) bool {
	key := Key(item)
	if key == "" {
		f.dropped++
		return false
	}
	fp := Fingerprint(key)
	if _, ok := f.seen[fp]; ok {
		f.dropped++
		return false
	}
	f.seen[fp] = struct{}{}
	return true
}

// Dropped returns how many items were rejected so far.
func (f *Filter) Dropped() int { return f.dropped }

// Dedupe keeps the first item per fingerprint, preserving input order.
func Dedupe(items []core.RawItem) []core.RawItem {
	f := NewFilter()
	out := make([]core.RawItem, 0, len(items))
	for _, item := range items {
		if f.Admit(item) {
			out = append(out, item)
		}
	}
	return out
}
