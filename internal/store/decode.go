package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shelfmark/shelfmark/internal/model"
)

// Top-level field names in the key-value area.
const (
	keyBookmarks = "bookmarks"
	keyTags      = "tags"
	keyLedger    = "deletedDefaultTags"
	keySettings  = "settings"
)

// isComplete reports whether the persisted fields carry every top-level
// field a well-formed document requires. The ledger is deliberately not part
// of the completeness check: older documents predate it and the repair pass
// fills it in.
func isComplete(fields map[string]json.RawMessage) bool {
	for _, key := range []string{keyBookmarks, keyTags, keySettings} {
		if _, ok := fields[key]; !ok {
			return false
		}
	}
	return true
}

// decodeDocument turns raw persisted fields into a Document, coercing legacy
// or malformed shapes into the current one. This is the single chokepoint
// where dynamic shapes are allowed; everything downstream assumes a fully
// valid Document.
//
// Returns the document and whether any coercion happened (in which case the
// caller should persist the corrected document once).
func decodeDocument(fields map[string]json.RawMessage) (*model.Document, bool) {
	doc := model.NewDocument()
	coerced := false

	bookmarks, c := decodeBookmarks(fields[keyBookmarks])
	doc.Bookmarks = bookmarks
	coerced = coerced || c

	tags, c := decodeTags(fields[keyTags])
	doc.Tags = tags
	coerced = coerced || c

	ledger, c := decodeLedger(fields[keyLedger])
	doc.Deleted = ledger
	coerced = coerced || c

	settings, c := decodeSettings(fields[keySettings])
	doc.Settings = settings
	coerced = coerced || c

	return doc, coerced
}

// decodeBookmarks accepts the current array shape or the legacy object-map
// shape (id -> bookmark), which is flattened to its values.
func decodeBookmarks(raw json.RawMessage) ([]*model.Bookmark, bool) {
	if len(raw) == 0 {
		return []*model.Bookmark{}, true
	}
	switch firstByte(raw) {
	case '[':
		var bookmarks []*model.Bookmark
		if err := json.Unmarshal(raw, &bookmarks); err != nil {
			return []*model.Bookmark{}, true
		}
		if bookmarks == nil {
			return []*model.Bookmark{}, true
		}
		return bookmarks, false
	case '{':
		var byID map[string]*model.Bookmark
		if err := json.Unmarshal(raw, &byID); err != nil {
			return []*model.Bookmark{}, true
		}
		bookmarks := make([]*model.Bookmark, 0, len(byID))
		for id, b := range byID {
			if b == nil {
				continue
			}
			if b.ID == "" {
				b.ID = id
			}
			bookmarks = append(bookmarks, b)
		}
		// Object maps carry no order; creation time is the stable choice.
		sort.Slice(bookmarks, func(i, j int) bool {
			return bookmarks[i].CreatedAt.Before(bookmarks[j].CreatedAt)
		})
		return bookmarks, true
	default:
		return []*model.Bookmark{}, true
	}
}

func decodeTags(raw json.RawMessage) (map[string]*model.Tag, bool) {
	if len(raw) == 0 || firstByte(raw) != '{' {
		return map[string]*model.Tag{}, true
	}
	var tags map[string]*model.Tag
	if err := json.Unmarshal(raw, &tags); err != nil {
		return map[string]*model.Tag{}, true
	}
	out := make(map[string]*model.Tag, len(tags))
	coerced := false
	for key, tag := range tags {
		if tag == nil {
			coerced = true
			continue
		}
		if tag.Name == "" {
			tag.Name = key
			coerced = true
		}
		want := tag.Key()
		if key != want {
			coerced = true
		}
		out[want] = tag
	}
	return out, coerced
}

func decodeLedger(raw json.RawMessage) (model.Ledger, bool) {
	if len(raw) == 0 {
		return model.Ledger{}, true
	}
	var ledger model.Ledger
	if err := json.Unmarshal(raw, &ledger); err != nil {
		return model.Ledger{}, true
	}
	if ledger == nil {
		return model.Ledger{}, true
	}
	return ledger, false
}

func decodeSettings(raw json.RawMessage) (model.Settings, bool) {
	if len(raw) == 0 || firstByte(raw) != '{' {
		return model.DefaultSettings(), true
	}
	settings := model.DefaultSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return model.DefaultSettings(), true
	}
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = model.SchemaVersion
		return settings, true
	}
	return settings, false
}

// encodeDocument marshals a document into per-field raw values for the
// key-value area.
func encodeDocument(doc *model.Document) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, 4)
	for key, val := range map[string]any{
		keyBookmarks: doc.Bookmarks,
		keyTags:      doc.Tags,
		keyLedger:    doc.Deleted,
		keySettings:  doc.Settings,
	} {
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		fields[key] = raw
	}
	return fields, nil
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
