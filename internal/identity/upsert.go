package identity

import (
	"strings"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// SourceKey identifies a company source: (type, lowercased slug) for ATS
// boards, (type, canonical url) for career pages.
func SourceKey(s model.Source) string {
	switch s.Type {
	case model.SourceGreenhouse, model.SourceLever:
		return string(s.Type) + ":" + strings.ToLower(strings.TrimSpace(s.Slug))
	default:
		return string(s.Type) + ":" + CanonicalURL(s.URL)
	}
}

// UpsertBy replaces the element whose key equals key(item) in place, or
// appends item when none matches. Ordering of the other elements is kept and
// the input slice is not modified.
func UpsertBy[T any, K comparable](items []T, item T, key func(T) K) []T {
	out := make([]T, len(items), len(items)+1)
	copy(out, items)
	k := key(item)
	for i := range out {
		if key(out[i]) == k {
			out[i] = item
			return out
		}
	}
	return append(out, item)
}

// MergeBy upserts every incoming element into items, in order. Duplicates
// inside incoming collapse onto the last occurrence.
func MergeBy[T any, K comparable](items, incoming []T, key func(T) K) []T {
	out := items
	for _, it := range incoming {
		out = UpsertBy(out, it, key)
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// RemoveBy drops every element whose key equals k. It reports whether any
// element was removed.
func RemoveBy[T any, K comparable](items []T, k K, key func(T) K) ([]T, bool) {
	out := make([]T, 0, len(items))
	removed := false
	for _, it := range items {
		if key(it) == k {
			removed = true
			continue
		}
		out = append(out, it)
	}
	return out, removed
}

// MergeSources merges incoming sources into existing ones by SourceKey.
func MergeSources(existing, incoming []model.Source) []model.Source {
	return MergeBy(existing, incoming, SourceKey)
}
