package model

import "time"

// SchemaVersion is the current persisted document schema version.
const SchemaVersion = 2

// DefaultStarterTags are the tag names seeded at first initialization.
// A starter tag the user deletes lands in the suppression ledger and is
// never re-seeded.
var DefaultStarterTags = []string{"Work", "Learning", "Reading", "Personal"}

// Settings holds the user-facing preferences persisted with the document.
type Settings struct {
	SchemaVersion int    `json:"schema_version"`
	Theme         string `json:"theme"`
	CompactView   bool   `json:"compact_view,omitempty"`
}

// DefaultSettings returns the settings block for a fresh document.
func DefaultSettings() Settings {
	return Settings{
		SchemaVersion: SchemaVersion,
		Theme:         "system",
	}
}

// Document is the single persisted aggregate.
//
// Bookmarks is the primary table; Tags is the materialized secondary index
// (normalized name -> Tag with usage count); Deleted is the suppression
// ledger. The document is valid only as a whole: a persisted value missing
// any top-level field is treated as absent and rebuilt by the store's
// repair/initialization path.
type Document struct {
	Bookmarks []*Bookmark     `json:"bookmarks"`
	Tags      map[string]*Tag `json:"tags"`
	Deleted   Ledger          `json:"deletedDefaultTags"`
	Settings  Settings        `json:"settings"`
}

// NewDocument returns an empty, well-formed document.
func NewDocument() *Document {
	return &Document{
		Bookmarks: []*Bookmark{},
		Tags:      map[string]*Tag{},
		Deleted:   Ledger{},
		Settings:  DefaultSettings(),
	}
}

// Clone returns a deep copy of the document. Subscribers and cached reads
// receive clones so no caller can alias the manager's cache.
func (d *Document) Clone() *Document {
	out := &Document{
		Bookmarks: make([]*Bookmark, 0, len(d.Bookmarks)),
		Tags:      make(map[string]*Tag, len(d.Tags)),
		Deleted:   append(Ledger{}, d.Deleted...),
		Settings:  d.Settings,
	}
	for _, b := range d.Bookmarks {
		out.Bookmarks = append(out.Bookmarks, b.Clone())
	}
	for key, tag := range d.Tags {
		out.Tags[key] = tag.Clone()
	}
	return out
}

// FindBookmark returns the bookmark with the given id, deleted or not.
func (d *Document) FindBookmark(id string) *Bookmark {
	for _, b := range d.Bookmarks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// ActiveBookmarks returns all non-soft-deleted bookmarks in stored order.
func (d *Document) ActiveBookmarks() []*Bookmark {
	out := make([]*Bookmark, 0, len(d.Bookmarks))
	for _, b := range d.Bookmarks {
		if !b.Deleted {
			out = append(out, b)
		}
	}
	return out
}

// Touch stamps the bookmark's update timestamp.
func (b *Bookmark) Touch(now time.Time) {
	t := now
	b.UpdatedAt = &t
}
