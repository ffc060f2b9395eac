package store

import "github.com/shelfmark/shelfmark/internal/model"

// Recount rebuilds every tag's usage count from the bookmark list.
//
// Only the repair/initialization path calls this; steady-state CRUD
// maintains counts incrementally. The frequency map is keyed by the raw tag
// strings on non-deleted bookmarks (not normalized), and each tag's count is
// the frequency of its display name, preserving the original counting
// semantics for case-variant lists. Tags that recompute to zero are removed,
// except on first initialization where starter tags are deliberately seeded
// at count zero and must survive one cycle.
func Recount(doc *model.Document, firstInit bool) {
	freq := make(map[string]int)
	for _, b := range doc.Bookmarks {
		if b.Deleted {
			continue
		}
		for _, tag := range b.Tags {
			freq[tag]++
		}
	}

	for key, tag := range doc.Tags {
		tag.Count = freq[tag.Name]
		if tag.Count == 0 && !firstInit {
			delete(doc.Tags, key)
		}
	}
}
