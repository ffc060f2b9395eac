package store

import (
	"testing"
	"time"

	"github.com/shelfmark/shelfmark/internal/model"
)

func TestRecount(t *testing.T) {
	now := time.Now()

	newDoc := func() *model.Document {
		doc := model.NewDocument()
		doc.Bookmarks = []*model.Bookmark{
			{ID: "b-1", URL: "https://a.com", Tags: []string{"Work"}, CreatedAt: now},
			{ID: "b-2", URL: "https://b.com", Tags: []string{"Work", "News"}, CreatedAt: now},
			{ID: "b-3", URL: "https://c.com", Tags: []string{"News"}, CreatedAt: now, Deleted: true},
		}
		doc.Tags = map[string]*model.Tag{
			"work": {ID: "t-1", Name: "Work", Count: 99, CreatedAt: now},
			"news": {ID: "t-2", Name: "News", Count: 99, CreatedAt: now},
			"idle": {ID: "t-3", Name: "Idle", Count: 99, CreatedAt: now},
		}
		return doc
	}

	t.Run("recomputes from non-deleted bookmarks", func(t *testing.T) {
		doc := newDoc()
		Recount(doc, false)

		if got := doc.Tags["work"].Count; got != 2 {
			t.Errorf("Work.count = %d, want 2", got)
		}
		// b-3 is soft-deleted; only b-2 counts.
		if got := doc.Tags["news"].Count; got != 1 {
			t.Errorf("News.count = %d, want 1", got)
		}
		if _, ok := doc.Tags["idle"]; ok {
			t.Error("zero-count tag should be removed")
		}
	})

	t.Run("first init preserves zero-count tags", func(t *testing.T) {
		doc := newDoc()
		Recount(doc, true)

		tag, ok := doc.Tags["idle"]
		if !ok {
			t.Fatal("zero-count tag removed during first initialization")
		}
		if tag.Count != 0 {
			t.Errorf("Idle.count = %d, want 0", tag.Count)
		}
	})

	t.Run("frequency is keyed by raw display name", func(t *testing.T) {
		doc := model.NewDocument()
		// Two bookmarks carry the lowercase variant; only one carries the
		// display-case name the index knows.
		doc.Bookmarks = []*model.Bookmark{
			{ID: "b-1", URL: "https://a.com", Tags: []string{"Work"}, CreatedAt: now},
			{ID: "b-2", URL: "https://b.com", Tags: []string{"work"}, CreatedAt: now},
			{ID: "b-3", URL: "https://c.com", Tags: []string{"work"}, CreatedAt: now},
		}
		doc.Tags = map[string]*model.Tag{
			"work": {ID: "t-1", Name: "Work", Count: 0, CreatedAt: now},
		}
		Recount(doc, false)

		// Raw-string counting preserves the original semantics: the index
		// entry named "Work" only counts bookmarks tagged exactly "Work".
		if got := doc.Tags["work"].Count; got != 1 {
			t.Errorf("Work.count = %d, want 1 (raw-name frequency)", got)
		}
	})
}
