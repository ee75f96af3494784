// Package pageservice is the application layer shared by the HTTP API and
// the MCP server. It validates requests, drives the document store and maps
// store misses to apperr sentinels.
package pageservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/pagebook/internal/aimerge"
	"github.com/starford/pagebook/internal/apperr"
	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/export"
	"github.com/starford/pagebook/internal/index"
	"github.com/starford/pagebook/internal/models"
	"github.com/starford/pagebook/internal/parser"
	"github.com/starford/pagebook/internal/templates"
)

// PageDetail is the full representation of a page.
type PageDetail struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Blocks  []models.Block `json:"blocks"`
	Current bool           `json:"current"`
}

// CreateInput selects how a new page is seeded. At most one field may be set;
// none gives the blank seed.
type CreateInput struct {
	Template string
	Blocks   []models.Block
	Markdown string
}

// AskResult reports the outcome of an AI search.
type AskResult struct {
	Applied bool              `json:"applied"`
	Answer  string            `json:"answer"`
	Sources []models.Citation `json:"sources"`
	Page    *PageDetail       `json:"page,omitempty"`
}

// Service coordinates the store, template catalogue, search index and AI merge.
type Service struct {
	store     *docstore.Store
	catalogue *templates.Catalogue
	db        index.PageIndex
	merger    *aimerge.Merger
}

// NewService creates a new page service. db and merger may be nil, in which
// case search and AI operations report that they are unavailable.
func NewService(store *docstore.Store, catalogue *templates.Catalogue, db index.PageIndex, merger *aimerge.Merger) *Service {
	return &Service{store: store, catalogue: catalogue, db: db, merger: merger}
}

// ListPages returns the title-sorted listing, filtered by a case-insensitive
// substring of the title when query is non-empty.
func (s *Service) ListPages(_ context.Context, query string) []docstore.Summary {
	all := s.store.List()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all
	}
	out := make([]docstore.Summary, 0, len(all))
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Title), query) {
			out = append(out, p)
		}
	}
	return out
}

// GetPage returns a page by id.
func (s *Service) GetPage(_ context.Context, id string) (*PageDetail, error) {
	p, ok := s.store.Page(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.detail(p), nil
}

// CreatePage creates a page and makes it current.
func (s *Service) CreatePage(_ context.Context, in CreateInput) (*PageDetail, error) {
	blocks, err := s.initialBlocks(in)
	if err != nil {
		return nil, err
	}
	id := s.store.CreatePage(blocks)
	p, ok := s.store.Page(id)
	if !ok {
		// Deleted by a concurrent request before we could read it back.
		return nil, apperr.ErrNotFound
	}
	return s.detail(p), nil
}

func (s *Service) initialBlocks(in CreateInput) ([]models.Block, error) {
	set := 0
	for _, ok := range []bool{in.Template != "", in.Blocks != nil, in.Markdown != ""} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("%w: only one of template, blocks or markdown may be given", apperr.ErrInvalidInput)
	}

	switch {
	case in.Template != "":
		t, ok := s.catalogue.Get(in.Template)
		if !ok {
			return nil, fmt.Errorf("%w: unknown template %q", apperr.ErrInvalidInput, in.Template)
		}
		return t.Instantiate(), nil
	case in.Blocks != nil:
		if err := ValidateBlocks(in.Blocks); err != nil {
			return nil, err
		}
		return in.Blocks, nil
	case in.Markdown != "":
		res, err := parser.Parse([]byte(in.Markdown))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
		}
		return res.Blocks, nil
	}
	return nil, nil
}

// ReplaceBlocks replaces the blocks of a page.
func (s *Service) ReplaceBlocks(_ context.Context, id string, blocks []models.Block) (*PageDetail, error) {
	if err := ValidateBlocks(blocks); err != nil {
		return nil, err
	}
	if _, ok := s.store.Page(id); !ok {
		return nil, apperr.ErrNotFound
	}
	s.store.ReplaceBlocks(id, blocks)
	p, ok := s.store.Page(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.detail(p), nil
}

// DeletePage removes a page. Deleting an unknown id succeeds without effect.
func (s *Service) DeletePage(_ context.Context, id string) error {
	s.store.DeletePage(id)
	return nil
}

// CurrentPage returns the page being edited.
func (s *Service) CurrentPage(_ context.Context) (*PageDetail, error) {
	p, ok := s.store.CurrentPage()
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.detail(p), nil
}

// SwitchPage makes id the current page.
func (s *Service) SwitchPage(ctx context.Context, id string) (*PageDetail, error) {
	if _, ok := s.store.Page(id); !ok {
		return nil, apperr.ErrNotFound
	}
	s.store.SwitchPage(id)
	return s.CurrentPage(ctx)
}

// Theme returns the editor theme.
func (s *Service) Theme(_ context.Context) docstore.Theme {
	return s.store.Theme()
}

// SetTheme sets the editor theme.
func (s *Service) SetTheme(_ context.Context, t docstore.Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown theme %q", apperr.ErrInvalidInput, t)
	}
	s.store.SetTheme(t)
	return nil
}

// ToggleTheme flips the editor theme and returns the new one.
func (s *Service) ToggleTheme(_ context.Context) docstore.Theme {
	return s.store.ToggleTheme()
}

// Templates lists the template catalogue.
func (s *Service) Templates(_ context.Context) []templates.Template {
	return s.catalogue.List()
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", apperr.ErrInvalidInput)
	}
	if s.db == nil {
		return []index.SearchResult{}, nil
	}
	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Export renders a page in the given format.
func (s *Service) Export(_ context.Context, id, format string) ([]byte, string, error) {
	p, ok := s.store.Page(id)
	if !ok {
		return nil, "", apperr.ErrNotFound
	}
	return export.Render(p, format)
}

// AIAvailable reports whether AI search can be attempted.
func (s *Service) AIAvailable() bool {
	return s.merger != nil && s.merger.Available()
}

// AskAI runs an AI search and appends the result to page id.
func (s *Service) AskAI(ctx context.Context, id, prompt string) (*AskResult, error) {
	if s.merger == nil {
		return nil, apperr.ErrNoCredential
	}
	res, err := s.merger.Ask(ctx, id, prompt)
	if err != nil {
		return nil, err
	}
	out := &AskResult{
		Applied: res.Applied,
		Answer:  res.Answer.Text,
		Sources: nonNilSlice(res.Answer.Sources),
	}
	if p, ok := s.store.Page(id); ok {
		out.Page = s.detail(p)
	}
	return out, nil
}

// ValidateBlocks rejects unknown block kinds.
func ValidateBlocks(blocks []models.Block) error {
	for i, b := range blocks {
		if !b.Kind.Valid() {
			return fmt.Errorf("%w: block %d has unknown type %q", apperr.ErrInvalidInput, i, b.Kind)
		}
	}
	return nil
}

func (s *Service) detail(p models.Page) *PageDetail {
	return &PageDetail{
		ID:      p.ID,
		Title:   p.Title,
		Blocks:  nonNilSlice(p.Blocks),
		Current: s.store.CurrentPageID() == p.ID,
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
