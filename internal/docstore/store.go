// Package docstore is the in-memory authority over all pages and the
// current page selection.
//
// All mutations are serialized by one lock and run to completion before any
// other operation observes state. Operations that target a page id that does
// not exist are silent no-ops.
package docstore

import (
	"sync"

	"github.com/starford/pagebook/internal/models"
)

// Store holds pages, the current page id and the theme.
type Store struct {
	mu      sync.Mutex
	pages   map[string]models.Page
	current string
	theme   Theme
	version uint64

	subs   map[int]func(Commit)
	nextID int
}

// New creates a store from a hydrated state. The state is copied. If it holds
// no pages a blank page is created; a dangling current id is repaired.
func New(initial State) *Store {
	s := &Store{
		pages:   make(map[string]models.Page, len(initial.Pages)),
		current: initial.CurrentPageID,
		theme:   initial.Theme,
		subs:    make(map[int]func(Commit)),
	}
	for id, p := range initial.Pages {
		p = p.Clone()
		p.ID = id
		p.SetBlocks(normalizeBlocks(p.Blocks))
		s.pages[id] = p
	}
	if !s.theme.Valid() {
		s.theme = ThemeLight
	}
	if len(s.pages) == 0 {
		s.insertBlankLocked()
	}
	if _, ok := s.pages[s.current]; !ok {
		s.current = s.firstPageIDLocked()
	}
	return s
}

// Subscribe registers fn to receive every commit, in commit order. fn runs
// while the store lock is held and must not call back into the store.
func (s *Store) Subscribe(fn func(Commit)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// CreatePage adds a page and makes it current. With nil initial blocks the
// page gets the blank seed: an "Untitled" heading and an empty paragraph.
// Supplied blocks are used as given, except that missing or duplicate block
// ids are replaced.
func (s *Store) CreatePage(initial []models.Block) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	if initial == nil {
		id = s.insertBlankLocked()
	} else {
		id = models.NewID()
		s.pages[id] = models.NewPage(id, normalizeBlocks(initial))
	}
	s.current = id
	s.commitLocked(Change{Kind: PageCreated, PageID: id})
	return id
}

// DeletePage removes a page. Deleting the current page moves the selection
// to the first remaining page, or to a new blank page when none remain.
func (s *Store) DeletePage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[id]; !ok {
		return
	}
	delete(s.pages, id)
	changes := []Change{{Kind: PageDeleted, PageID: id}}

	if len(s.pages) == 0 {
		nid := s.insertBlankLocked()
		s.current = nid
		changes = append(changes, Change{Kind: PageCreated, PageID: nid})
	} else if s.current == id {
		s.current = s.firstPageIDLocked()
		changes = append(changes, Change{Kind: PageSwitched, PageID: s.current})
	}
	s.commitLocked(changes...)
}

// SwitchPage makes id the current page. Unknown ids are ignored.
func (s *Store) SwitchPage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[id]; !ok || s.current == id {
		return
	}
	s.current = id
	s.commitLocked(Change{Kind: PageSwitched, PageID: id})
}

// ReplaceBlocks swaps the whole block sequence of a page and recomputes its
// title.
func (s *Store) ReplaceBlocks(pageID string, blocks []models.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[pageID]
	if !ok {
		return
	}
	p.SetBlocks(normalizeBlocks(blocks))
	s.pages[pageID] = p
	s.commitLocked(Change{Kind: PageUpdated, PageID: pageID})
}

// AppendAIResult appends the prompt as a quote block followed by the result
// block carrying its citations. Both blocks land in one commit.
func (s *Store) AppendAIResult(pageID, prompt, text string, citations []models.Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[pageID]
	if !ok {
		return
	}
	if citations == nil {
		citations = []models.Citation{}
	}
	blocks := make([]models.Block, 0, len(p.Blocks)+2)
	blocks = append(blocks, p.Blocks...)
	blocks = append(blocks,
		models.Block{ID: newBlockID(p), Kind: models.KindQuote, Content: "> " + prompt},
	)
	blocks = append(blocks, models.Block{
		ID:      newBlockID(models.Page{Blocks: blocks}),
		Kind:    models.KindAISearchResult,
		Content: text,
		Sources: append([]models.Citation(nil), citations...),
	})
	p.SetBlocks(blocks)
	s.pages[pageID] = p
	s.commitLocked(Change{Kind: PageUpdated, PageID: pageID})
}

// SetTheme changes the theme. Invalid values are ignored.
func (s *Store) SetTheme(t Theme) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.Valid() || t == s.theme {
		return
	}
	s.theme = t
	s.commitLocked(Change{Kind: ThemeChanged})
}

// ToggleTheme flips between light and dark and returns the new theme.
func (s *Store) ToggleTheme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.theme = s.theme.Toggled()
	s.commitLocked(Change{Kind: ThemeChanged})
	return s.theme
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Version returns the number of commits so far.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Page returns a copy of the page with the given id.
func (s *Store) Page(id string) (models.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	if !ok {
		return models.Page{}, false
	}
	return p.Clone(), true
}

// CurrentPage returns a copy of the current page.
func (s *Store) CurrentPage() (models.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[s.current]
	if !ok {
		return models.Page{}, false
	}
	return p.Clone(), true
}

// CurrentPageID returns the id of the current page.
func (s *Store) CurrentPageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Theme returns the current theme.
func (s *Store) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// List returns page summaries sorted by title.
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Pages: s.pages}.Summaries()
}

func (s *Store) insertBlankLocked() string {
	id := models.NewID()
	s.pages[id] = models.NewPage(id, BlankBlocks())
	return id
}

func (s *Store) firstPageIDLocked() string {
	list := State{Pages: s.pages}.Summaries()
	if len(list) == 0 {
		return ""
	}
	return list[0].ID
}

func (s *Store) stateLocked() State {
	return State{
		Pages:         s.pages,
		CurrentPageID: s.current,
		Theme:         s.theme,
	}.Clone()
}

func (s *Store) commitLocked(changes ...Change) {
	s.version++
	if len(s.subs) == 0 {
		return
	}
	c := Commit{Version: s.version, Changes: changes, State: s.stateLocked()}
	for _, fn := range s.subs {
		fn(c)
	}
}

// BlankBlocks returns the seed for a page created without content.
func BlankBlocks() []models.Block {
	return []models.Block{
		{ID: models.NewID(), Kind: models.KindHeading1, Content: models.UntitledTitle},
		{ID: models.NewID(), Kind: models.KindParagraph, Content: ""},
	}
}

// normalizeBlocks copies blocks and gives fresh ids to blocks whose id is
// empty or already used earlier in the sequence.
func normalizeBlocks(blocks []models.Block) []models.Block {
	out := make([]models.Block, len(blocks))
	seen := make(map[string]struct{}, len(blocks))
	for i, b := range blocks {
		b = b.Clone()
		if _, dup := seen[b.ID]; b.ID == "" || dup {
			b.ID = models.NewID()
		}
		seen[b.ID] = struct{}{}
		out[i] = b
	}
	return out
}

func newBlockID(p models.Page) string {
	for {
		id := models.NewID()
		if !p.HasBlock(id) {
			return id
		}
	}
}
