package transfer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/shelfmark/shelfmark/internal/model"
	"github.com/shelfmark/shelfmark/internal/store"
)

// Record is one incoming bookmark after legacy field mapping and repair.
type Record struct {
	URL   string
	Title string
	Note  string
	Tags  []string
}

// Report summarizes an import run: per-record counts plus the per-tag
// conflict decisions that were applied.
type Report struct {
	Succeeded int
	Failed    int
	Skipped   int
	Conflicts []Decision
	Errors    []string
}

// rawRecord tolerates the legacy field names older exports used.
type rawRecord struct {
	URL         string          `json:"url"`
	Link        string          `json:"link"`
	Href        string          `json:"href"`
	URI         string          `json:"uri"`
	Title       string          `json:"title"`
	Name        string          `json:"name"`
	Note        string          `json:"note"`
	Description string          `json:"description"`
	Memo        string          `json:"memo"`
	Tags        json.RawMessage `json:"tags"`
	Labels      json.RawMessage `json:"labels"`
}

// ParseJSON reads records from a JSON file. Both the export shape
// ({"bookmarks": [...]}) and a bare array of records are accepted.
func ParseJSON(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	var raws []rawRecord
	if strings.HasPrefix(trimmed, "{") {
		var wrapper struct {
			Bookmarks []rawRecord `json:"bookmarks"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("invalid JSON import file: %w", err)
		}
		raws = wrapper.Bookmarks
	} else {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("invalid JSON import file: %w", err)
		}
	}

	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, raw.toRecord())
	}
	return records, nil
}

// ParseCSV reads records from a CSV file. The header row is matched
// case-insensitively; Title, URL, Note, Tags and their legacy aliases are
// recognized. Tags cells may be delimited by ';', ',' or '|'.
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV import file: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, header := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(header)) {
		case "title", "name":
			cols["title"] = i
		case "url", "link", "href", "uri":
			cols["url"] = i
		case "note", "description", "memo":
			cols["note"] = i
		case "tags", "labels":
			cols["tags"] = i
		}
	}
	if _, ok := cols["url"]; !ok {
		return nil, fmt.Errorf("CSV import file has no URL column")
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, Record{
			URL:   cell(row, "url"),
			Title: cell(row, "title"),
			Note:  cell(row, "note"),
			Tags:  SplitTags(cell(row, "tags")),
		})
	}
	return records, nil
}

// SplitTags splits a delimited tag cell on ';', ',' or '|', trimming each
// entry and dropping empties.
func SplitTags(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	sep := ";"
	for _, candidate := range []string{";", ",", "|"} {
		if strings.Contains(cell, candidate) {
			sep = candidate
			break
		}
	}
	var tags []string
	for _, part := range strings.Split(cell, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

// Repair fills the gaps older export formats leave: URLs get a scheme,
// and a missing title falls back to the URL host.
func Repair(rec Record) Record {
	rec.URL = normalizeURL(rec.URL)
	if rec.Title == "" && rec.URL != "" {
		if u, err := url.Parse(rec.URL); err == nil && u.Host != "" {
			rec.Title = u.Host
		} else {
			rec.Title = rec.URL
		}
	}
	return rec
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// Resolver lets the caller override a tag conflict decision before it is
// applied. It is invoked once per distinct incoming tag whose default action
// is overridable (case-variant and similar matches; exact matches need no
// prompt and new tags have nothing to merge onto). The returned decision's
// Action is honored; a nil Resolver applies every default.
type Resolver func(Decision) Decision

// Import applies records to the store.
//
// Each record is repaired, its tags are classified against the tag set as
// it stood when the import started, and each overridable conflict is passed
// through the resolver. Merge decisions rewrite incoming tags onto their
// matched display names; kept tags join the candidate set so later records
// in the same run resolve consistently. Records with no usable URL, or
// whose URL already exists on a non-deleted bookmark, are skipped.
func Import(ctx context.Context, mgr *store.Manager, records []Record, resolver Resolver) (*Report, error) {
	doc, err := mgr.GetDocument(ctx)
	if err != nil {
		return nil, err
	}

	existingNames := make([]string, 0, len(doc.Tags))
	for _, tag := range doc.Tags {
		existingNames = append(existingNames, tag.Name)
	}
	// Map iteration order is random; decisions must be stable run to run.
	sort.Strings(existingNames)

	existingURLs := make(map[string]bool, len(doc.Bookmarks))
	for _, b := range doc.ActiveBookmarks() {
		existingURLs[b.URL] = true
	}

	report := &Report{}
	decisions := map[string]Decision{}

	resolveTag := func(name string) string {
		key := model.Normalize(name)
		decision, ok := decisions[key]
		if !ok {
			decision = Classify(name, existingNames)
			if resolver != nil && (decision.Kind == KindCaseVariant || decision.Kind == KindSimilar) {
				decision = resolver(decision)
			}
			if decision.Action == ActionKeep {
				existingNames = append(existingNames, name)
			}
			decisions[key] = decision
			report.Conflicts = append(report.Conflicts, decision)
		}
		if decision.Action == ActionMerge && decision.MatchedTo != "" {
			return decision.MatchedTo
		}
		return name
	}

	for _, rec := range records {
		rec = Repair(rec)
		if rec.URL == "" {
			report.Skipped++
			continue
		}
		if existingURLs[rec.URL] {
			report.Skipped++
			continue
		}

		tags := make([]string, 0, len(rec.Tags))
		for _, tag := range rec.Tags {
			tags = append(tags, resolveTag(tag))
		}

		_, err := mgr.AddBookmark(ctx, store.BookmarkDraft{
			URL:   rec.URL,
			Title: rec.Title,
			Note:  rec.Note,
			Tags:  tags,
		})
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rec.URL, err))
			continue
		}
		existingURLs[rec.URL] = true
		report.Succeeded++
	}

	return report, nil
}

func (r rawRecord) toRecord() Record {
	rec := Record{
		URL:   firstNonEmpty(r.URL, r.Link, r.Href, r.URI),
		Title: firstNonEmpty(r.Title, r.Name),
		Note:  firstNonEmpty(r.Note, r.Description, r.Memo),
	}
	rec.Tags = decodeTagsField(r.Tags)
	if rec.Tags == nil {
		rec.Tags = decodeTagsField(r.Labels)
	}
	return rec
}

// decodeTagsField accepts either a JSON array of strings or a single
// delimited string.
func decodeTagsField(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		var tags []string
		for _, tag := range list {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
		return tags
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return SplitTags(single)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
