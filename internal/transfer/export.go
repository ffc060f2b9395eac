package transfer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shelfmark/shelfmark/internal/model"
)

// ExportVersion is the version stamp written into structured exports.
const ExportVersion = 2

// Export is the structured export shape shared by the JSON and YAML
// formats. Soft-deleted bookmarks are excluded.
type Export struct {
	Bookmarks  []*model.Bookmark     `json:"bookmarks" yaml:"bookmarks"`
	Tags       map[string]*model.Tag `json:"tags" yaml:"tags"`
	ExportedAt time.Time             `json:"exportedAt" yaml:"exportedAt"`
	Version    int                   `json:"version" yaml:"version"`
}

// NewExport builds the export shape from a document.
func NewExport(doc *model.Document, now time.Time) *Export {
	return &Export{
		Bookmarks:  doc.ActiveBookmarks(),
		Tags:       doc.Tags,
		ExportedAt: now,
		Version:    ExportVersion,
	}
}

// WriteJSON writes the JSON export.
func WriteJSON(w io.Writer, doc *model.Document, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewExport(doc, now)); err != nil {
		return fmt.Errorf("failed to encode JSON export: %w", err)
	}
	return nil
}

// WriteYAML writes the YAML export.
func WriteYAML(w io.Writer, doc *model.Document, now time.Time) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(NewExport(doc, now)); err != nil {
		return fmt.Errorf("failed to encode YAML export: %w", err)
	}
	return nil
}

// WriteCSV writes the CSV export: a Title,URL,Note,Tags,CreatedAt header
// row followed by one row per non-deleted bookmark, tags joined with ';'.
// encoding/csv handles the double-quote escaping.
func WriteCSV(w io.Writer, doc *model.Document) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Title", "URL", "Note", "Tags", "CreatedAt"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, b := range doc.ActiveBookmarks() {
		row := []string{
			b.Title,
			b.URL,
			b.Note,
			strings.Join(b.Tags, ";"),
			b.CreatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV export: %w", err)
	}
	return nil
}

// WriteMarkdown writes a human-readable Markdown export: bookmarks grouped
// under a heading per tag, untagged bookmarks last.
func WriteMarkdown(w io.Writer, doc *model.Document) error {
	byTag := map[string][]*model.Bookmark{}
	var untagged []*model.Bookmark
	for _, b := range doc.ActiveBookmarks() {
		if len(b.Tags) == 0 {
			untagged = append(untagged, b)
			continue
		}
		for _, tag := range b.Tags {
			key := model.Normalize(tag)
			byTag[key] = append(byTag[key], b)
		}
	}

	keys := make([]string, 0, len(byTag))
	for key := range byTag {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if _, err := fmt.Fprintln(w, "# Bookmarks"); err != nil {
		return fmt.Errorf("failed to write Markdown export: %w", err)
	}
	for _, key := range keys {
		heading := key
		if tag, ok := doc.Tags[key]; ok {
			heading = tag.Name
		}
		if _, err := fmt.Fprintf(w, "\n## %s\n\n", heading); err != nil {
			return fmt.Errorf("failed to write Markdown export: %w", err)
		}
		for _, b := range byTag[key] {
			if err := writeMarkdownItem(w, b); err != nil {
				return err
			}
		}
	}
	if len(untagged) > 0 {
		if _, err := fmt.Fprintf(w, "\n## Untagged\n\n"); err != nil {
			return fmt.Errorf("failed to write Markdown export: %w", err)
		}
		for _, b := range untagged {
			if err := writeMarkdownItem(w, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMarkdownItem(w io.Writer, b *model.Bookmark) error {
	title := b.Title
	if title == "" {
		title = b.URL
	}
	line := fmt.Sprintf("- [%s](%s)", title, b.URL)
	if b.Note != "" {
		line += " - " + b.Note
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return fmt.Errorf("failed to write Markdown export: %w", err)
	}
	return nil
}
