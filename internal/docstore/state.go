package docstore

import (
	"sort"

	"github.com/starford/pagebook/internal/models"
)

// Theme is the editor colour scheme.
type Theme string

// Themes.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Toggled returns the other theme.
func (t Theme) Toggled() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// State is a self-contained copy of everything the store owns.
type State struct {
	Pages         map[string]models.Page
	CurrentPageID string
	Theme         Theme
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	pages := make(map[string]models.Page, len(s.Pages))
	for id, p := range s.Pages {
		pages[id] = p.Clone()
	}
	s.Pages = pages
	return s
}

// Summary is the listing entry for a page.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Summaries lists pages sorted by title, ties broken by id so the order is
// stable across calls.
func (s State) Summaries() []Summary {
	out := make([]Summary, 0, len(s.Pages))
	for id, p := range s.Pages {
		out = append(out, Summary{ID: id, Title: p.Title})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ChangeKind names what a commit did.
type ChangeKind string

// Change kinds, also used as event names.
const (
	PageCreated  ChangeKind = "page.created"
	PageUpdated  ChangeKind = "page.updated"
	PageDeleted  ChangeKind = "page.deleted"
	PageSwitched ChangeKind = "page.switched"
	ThemeChanged ChangeKind = "theme.changed"
)

// Change describes one effect of a commit.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	PageID string     `json:"page_id,omitempty"`
}

// Commit is emitted to observers after every state-changing operation.
// State is a private copy; observers may keep it.
type Commit struct {
	Version uint64
	Changes []Change
	State   State
}
