package model

import (
	"fmt"
	"time"
)

// Tag is one entry of the derived tag index.
//
// The index key is Normalize(Name); Name keeps the display case the user
// first typed. Count is derived state: the number of non-deleted bookmarks
// whose normalized tag list contains this tag's key. Steady-state CRUD
// maintains Count incrementally; the store's recount pass rebuilds it during
// repair.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	Order     *int      `json:"order,omitempty"`
	Color     string    `json:"color,omitempty"`
}

// Validate checks if the Tag has valid field values.
func (t *Tag) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.Count < 0 {
		return fmt.Errorf("count must be non-negative (got %d)", t.Count)
	}
	return nil
}

// Key returns the normalized index key for this tag.
func (t *Tag) Key() string {
	return Normalize(t.Name)
}

// Clone returns a deep copy of the tag.
func (t *Tag) Clone() *Tag {
	out := *t
	if t.Order != nil {
		o := *t.Order
		out.Order = &o
	}
	return &out
}

// Ledger is the suppression ledger: starter-tag names the user explicitly
// deleted, kept so repair and initialization never re-seed them. Entries are
// appended in both raw and normalized form and are never removed except by a
// full clear.
type Ledger []string

// Contains reports whether the ledger suppresses the given name,
// matching either the raw entry or its normalized form.
func (l Ledger) Contains(name string) bool {
	key := Normalize(name)
	for _, entry := range l {
		if entry == name || Normalize(entry) == key {
			return true
		}
	}
	return false
}

// Add appends the raw and normalized forms of name, skipping entries that
// are already present. Returns the (possibly grown) ledger.
func (l Ledger) Add(name string) Ledger {
	for _, form := range []string{name, Normalize(name)} {
		if !l.has(form) {
			l = append(l, form)
		}
	}
	return l
}

func (l Ledger) has(entry string) bool {
	for _, e := range l {
		if e == entry {
			return true
		}
	}
	return false
}
