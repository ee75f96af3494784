// Package persist moves the document store to and from durable key/value
// storage. Saving is best effort: write failures are logged, never returned
// to the code that mutated the store.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/models"
	"github.com/starford/pagebook/internal/storage"
)

// Durable keys.
const (
	KeyTheme         = "editor-theme"
	KeyPages         = "editor-pages"
	KeyCurrentPageID = "editor-currentPageId"
)

// LoadOptions supplies the fallbacks used when durable state is missing.
type LoadOptions struct {
	// Seed returns the blocks of the page created when there is no usable
	// stored document.
	Seed func() []models.Block
	// SystemTheme reports the host's light/dark preference, if known.
	SystemTheme func() (docstore.Theme, bool)
	Logger      *slog.Logger
}

// Load hydrates the store state from kv. Corrupt data is logged and
// replaced by a freshly seeded page. A failed read is returned instead, so
// stored pages are never overwritten by a seed.
func Load(ctx context.Context, kv storage.KV, opts LoadOptions) (docstore.State, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	theme, err := loadTheme(ctx, kv, opts)
	if err != nil {
		return docstore.State{}, err
	}
	st := docstore.State{Theme: theme}

	raw, ok, err := kv.Get(ctx, KeyPages)
	if err != nil {
		return docstore.State{}, fmt.Errorf("persist: read pages: %w", err)
	}
	var pages map[string]models.Page
	if ok {
		pages, err = DecodePages([]byte(raw))
		if err != nil {
			logger.Warn("persist: stored pages unusable, seeding default page", slog.String("error", err.Error()))
		}
	}
	if len(pages) == 0 {
		var blocks []models.Block
		if opts.Seed != nil {
			blocks = opts.Seed()
		} else {
			blocks = docstore.BlankBlocks()
		}
		id := models.NewID()
		st.Pages = map[string]models.Page{id: models.NewPage(id, blocks)}
		st.CurrentPageID = id
		logger.Info("persist: seeded default page", slog.String("page_id", id))
		return st, nil
	}
	st.Pages = pages

	cur, ok, err := kv.Get(ctx, KeyCurrentPageID)
	if err != nil {
		return docstore.State{}, fmt.Errorf("persist: read current page: %w", err)
	}
	if _, exists := pages[cur]; !ok || !exists {
		cur = st.Summaries()[0].ID
	}
	st.CurrentPageID = cur
	logger.Info("persist: loaded", slog.Int("pages", len(pages)), slog.String("theme", string(st.Theme)))
	return st, nil
}

// DecodePages parses the stored page mapping. Titles are recomputed from the
// blocks rather than trusted.
func DecodePages(data []byte) (map[string]models.Page, error) {
	var pages map[string]models.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("persist: decode pages: %w", err)
	}
	for id, p := range pages {
		for i, b := range p.Blocks {
			if !b.Kind.Valid() {
				return nil, fmt.Errorf("persist: page %s block %d: unknown type %q", id, i, b.Kind)
			}
		}
		p.ID = id
		p.SetBlocks(p.Blocks)
		pages[id] = p
	}
	return pages, nil
}

// EncodePages serializes the page mapping.
func EncodePages(pages map[string]models.Page) ([]byte, error) {
	data, err := json.Marshal(pages)
	if err != nil {
		return nil, fmt.Errorf("persist: encode pages: %w", err)
	}
	return data, nil
}

func loadTheme(ctx context.Context, kv storage.KV, opts LoadOptions) (docstore.Theme, error) {
	raw, ok, err := kv.Get(ctx, KeyTheme)
	if err != nil {
		return "", fmt.Errorf("persist: read theme: %w", err)
	}
	if t := docstore.Theme(raw); ok && t.Valid() {
		return t, nil
	}
	if opts.SystemTheme != nil {
		if t, ok := opts.SystemTheme(); ok && t.Valid() {
			return t, nil
		}
	}
	return docstore.ThemeLight, nil
}
