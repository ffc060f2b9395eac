// Package model provides the data structures for the persisted bookmark document.
//
// The persisted aggregate is a Document: a bookmark list, a derived tag index
// keyed by normalized tag name, a suppression ledger of deleted starter tags,
// and a settings block. Every field of the Document round-trips through JSON;
// timestamps use RFC 3339 via time.Time.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Bookmark represents a single saved URL with its metadata.
//
// A bookmark is never hard-deleted by normal operations: deletion sets the
// Deleted flag and DeletedAt timestamp and the record is excluded from reads.
// Tags preserve the display case the user typed; equality and index lookups
// always go through Normalize.
type Bookmark struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Note      string     `json:"note,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Favicon   string     `json:"favicon,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Validate checks if the Bookmark has valid field values.
func (b *Bookmark) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if b.URL == "" {
		return fmt.Errorf("url is required")
	}
	if b.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	seen := make(map[string]bool, len(b.Tags))
	for _, tag := range b.Tags {
		key := Normalize(tag)
		if seen[key] {
			return fmt.Errorf("duplicate tag %q (normalized %q)", tag, key)
		}
		seen[key] = true
	}
	return nil
}

// HasTag reports whether the bookmark carries the given tag,
// compared by normalized key.
func (b *Bookmark) HasTag(name string) bool {
	key := Normalize(name)
	for _, tag := range b.Tags {
		if Normalize(tag) == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the bookmark.
func (b *Bookmark) Clone() *Bookmark {
	out := *b
	if b.Tags != nil {
		out.Tags = append([]string(nil), b.Tags...)
	}
	if b.UpdatedAt != nil {
		t := *b.UpdatedAt
		out.UpdatedAt = &t
	}
	if b.DeletedAt != nil {
		t := *b.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// Normalize returns the index key for a tag display name:
// whitespace-trimmed and case-folded.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DedupeTags removes entries whose normalized form already appeared earlier
// in the list, preserving order and the first-seen display case.
func DedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := Normalize(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, trimmed)
	}
	return out
}
