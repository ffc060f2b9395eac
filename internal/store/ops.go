package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/shelfmark/shelfmark/internal/model"
)

// BookmarkDraft carries the caller-supplied fields for a new bookmark.
type BookmarkDraft struct {
	URL     string
	Title   string
	Note    string
	Tags    []string
	Favicon string
}

// BookmarkPatch carries a partial update; nil fields are left unchanged.
// Tags, when set, replaces the whole tag list.
type BookmarkPatch struct {
	URL     *string
	Title   *string
	Note    *string
	Favicon *string
	Tags    *[]string
}

// GetBookmarks returns all non-soft-deleted bookmarks in stored order.
func (m *Manager) GetBookmarks(ctx context.Context) ([]*model.Bookmark, error) {
	doc, err := m.GetDocument(ctx)
	if err != nil {
		return nil, err
	}
	return doc.ActiveBookmarks(), nil
}

// GetTags returns the tag index keyed by normalized name.
func (m *Manager) GetTags(ctx context.Context) (map[string]*model.Tag, error) {
	doc, err := m.GetDocument(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Tags, nil
}

// CreateTag inserts a new tag with count zero. Fails with ErrAlreadyExists
// when the normalized name collides with an existing tag.
func (m *Manager) CreateTag(ctx context.Context, name string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name is required")
	}

	var created *model.Tag
	_, err := m.mutate(ctx, func(doc *model.Document) error {
		key := model.Normalize(name)
		if _, ok := doc.Tags[key]; ok {
			return fmt.Errorf("tag %q: %w", name, ErrAlreadyExists)
		}
		created = &model.Tag{
			ID:        m.config.NewID(),
			Name:      name,
			Count:     0,
			CreatedAt: m.config.Now(),
		}
		doc.Tags[key] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// AddBookmark appends a new bookmark and updates the tag index: every tag
// on the draft is created at count zero if absent, then incremented.
//
// This is the only steady-state path (besides import, which funnels through
// it) that implicitly creates tags; it must run only on an explicit user
// action, never inside a read or repair pass.
func (m *Manager) AddBookmark(ctx context.Context, draft BookmarkDraft) (*model.Bookmark, error) {
	if strings.TrimSpace(draft.URL) == "" {
		return nil, fmt.Errorf("url is required")
	}

	var added *model.Bookmark
	_, err := m.mutate(ctx, func(doc *model.Document) error {
		added = &model.Bookmark{
			ID:        m.config.NewID(),
			URL:       strings.TrimSpace(draft.URL),
			Title:     draft.Title,
			Note:      draft.Note,
			Tags:      model.DedupeTags(draft.Tags),
			Favicon:   draft.Favicon,
			CreatedAt: m.config.Now(),
		}
		doc.Bookmarks = append(doc.Bookmarks, added)
		for _, tag := range added.Tags {
			m.incrementTag(doc, tag)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added.Clone(), nil
}

// UpdateBookmark merges the patch into the bookmark with the given id and
// stamps its update timestamp. When the tag list changes, only tags that
// actually left the list are decremented (removing those that reach zero)
// and only genuinely new tags are created-if-absent then incremented, so a
// tag kept across the update never transits through zero and loses its
// identity. Fails with ErrNotFound when the id does not resolve to a
// non-deleted bookmark.
func (m *Manager) UpdateBookmark(ctx context.Context, id string, patch BookmarkPatch) (*model.Bookmark, error) {
	var updated *model.Bookmark
	_, err := m.mutate(ctx, func(doc *model.Document) error {
		b := doc.FindBookmark(id)
		if b == nil || b.Deleted {
			return fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
		}

		if patch.URL != nil {
			b.URL = strings.TrimSpace(*patch.URL)
		}
		if patch.Title != nil {
			b.Title = *patch.Title
		}
		if patch.Note != nil {
			b.Note = *patch.Note
		}
		if patch.Favicon != nil {
			b.Favicon = *patch.Favicon
		}
		if patch.Tags != nil {
			newTags := model.DedupeTags(*patch.Tags)
			removed, added := splitTagDiff(b.Tags, newTags)
			for _, tag := range removed {
				m.decrementTag(doc, tag)
			}
			for _, tag := range added {
				m.incrementTag(doc, tag)
			}
			b.Tags = newTags
		}
		b.Touch(m.config.Now())
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// DeleteBookmark soft-deletes the bookmark and decrements its tag counts,
// removing tags that reach zero. Fails with ErrNotFound when the id does
// not resolve to a non-deleted bookmark.
func (m *Manager) DeleteBookmark(ctx context.Context, id string) error {
	_, err := m.mutate(ctx, func(doc *model.Document) error {
		b := doc.FindBookmark(id)
		if b == nil || b.Deleted {
			return fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
		}
		now := m.config.Now()
		b.Deleted = true
		t := now
		b.DeletedAt = &t
		b.Touch(now)
		for _, tag := range b.Tags {
			m.decrementTag(doc, tag)
		}
		return nil
	})
	return err
}

// DeleteTag removes the tag from the index and strips it from every
// bookmark's tag list (case-insensitive), stamping each affected bookmark.
// Deleting a starter tag additionally records its raw and normalized forms
// in the suppression ledger so repair never re-seeds it.
//
// The tag index, bookmark list, and ledger are persisted together in one
// write: a partial write (ledger updated but bookmarks not, or vice versa)
// is exactly the defect class this store exists to avoid.
func (m *Manager) DeleteTag(ctx context.Context, name string) error {
	_, err := m.mutate(ctx, func(doc *model.Document) error {
		key := model.Normalize(name)
		tag, ok := doc.Tags[key]
		if !ok {
			return fmt.Errorf("tag %q: %w", name, ErrNotFound)
		}
		delete(doc.Tags, key)

		if m.isStarterTag(tag.Name) {
			doc.Deleted = doc.Deleted.Add(tag.Name)
		}

		now := m.config.Now()
		for _, b := range doc.Bookmarks {
			if !b.HasTag(name) {
				continue
			}
			kept := b.Tags[:0]
			for _, t := range b.Tags {
				if model.Normalize(t) != key {
					kept = append(kept, t)
				}
			}
			b.Tags = kept
			b.Touch(now)
		}
		return nil
	})
	return err
}

// SearchBookmarks filters non-deleted bookmarks. A non-empty query matches
// case-insensitively as a substring of title, url, or note; every tag in
// tagFilter (normalized) must be present on the bookmark. An empty query
// with an empty filter returns all non-deleted bookmarks. Pure read.
func (m *Manager) SearchBookmarks(ctx context.Context, query string, tagFilter []string) ([]*model.Bookmark, error) {
	doc, err := m.GetDocument(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]*model.Bookmark, 0, len(doc.Bookmarks))
	for _, b := range doc.ActiveBookmarks() {
		if query != "" && !matchesQuery(b, query) {
			continue
		}
		if !hasAllTags(b, tagFilter) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// ClearAllData replaces the document with a fresh empty one. This is the
// one operation permitted to erase the suppression ledger: the cleared
// backend looks absent to the next load, initialization runs again, and
// previously deleted starter tags reappear.
//
// The fresh document is deliberately not persisted here; persisting a
// complete empty shape would stop initialization from ever running.
func (m *Manager) ClearAllData(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fallback {
		if err := m.area.Clear(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	m.cache = model.NewDocument()
	return nil
}

// incrementTag bumps the count for the tag's normalized key, creating the
// tag at count zero first if absent.
func (m *Manager) incrementTag(doc *model.Document, name string) {
	key := model.Normalize(name)
	tag, ok := doc.Tags[key]
	if !ok {
		tag = &model.Tag{
			ID:        m.config.NewID(),
			Name:      strings.TrimSpace(name),
			Count:     0,
			CreatedAt: m.config.Now(),
		}
		doc.Tags[key] = tag
	}
	tag.Count++
}

// decrementTag lowers the count for the tag's normalized key and deletes
// the tag once its count reaches zero.
func (m *Manager) decrementTag(doc *model.Document, name string) {
	key := model.Normalize(name)
	tag, ok := doc.Tags[key]
	if !ok {
		return
	}
	tag.Count--
	if tag.Count <= 0 {
		delete(doc.Tags, key)
	}
}

func (m *Manager) isStarterTag(name string) bool {
	key := model.Normalize(name)
	for _, starter := range m.config.StarterTags {
		if model.Normalize(starter) == key {
			return true
		}
	}
	return false
}

func matchesQuery(b *model.Bookmark, query string) bool {
	return strings.Contains(strings.ToLower(b.Title), query) ||
		strings.Contains(strings.ToLower(b.URL), query) ||
		strings.Contains(strings.ToLower(b.Note), query)
}

func hasAllTags(b *model.Bookmark, tagFilter []string) bool {
	for _, want := range tagFilter {
		if strings.TrimSpace(want) == "" {
			continue
		}
		if !b.HasTag(want) {
			return false
		}
	}
	return true
}

// splitTagDiff partitions a tag list change into the entries that left the
// list and the entries that joined it, compared by normalized key.
func splitTagDiff(oldTags, newTags []string) (removed, added []string) {
	oldKeys := make(map[string]bool, len(oldTags))
	for _, tag := range oldTags {
		oldKeys[model.Normalize(tag)] = true
	}
	newKeys := make(map[string]bool, len(newTags))
	for _, tag := range newTags {
		newKeys[model.Normalize(tag)] = true
	}
	for _, tag := range oldTags {
		if !newKeys[model.Normalize(tag)] {
			removed = append(removed, tag)
		}
	}
	for _, tag := range newTags {
		if !oldKeys[model.Normalize(tag)] {
			added = append(added, tag)
		}
	}
	return removed, added
}
