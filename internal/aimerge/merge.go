// Package aimerge runs an AI search for a page and appends the answer to it.
package aimerge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/pagebook/internal/aisearch"
	"github.com/starford/pagebook/internal/apperr"
	"github.com/starford/pagebook/internal/docstore"
)

// Merger appends search results to the page they were requested for.
type Merger struct {
	store    *docstore.Store
	searcher aisearch.Searcher
	logger   *slog.Logger
}

// New creates a Merger.
func New(store *docstore.Store, searcher aisearch.Searcher, logger *slog.Logger) *Merger {
	return &Merger{store: store, searcher: searcher, logger: logger}
}

// Available reports whether searches can be attempted.
func (m *Merger) Available() bool {
	return m.searcher != nil && m.searcher.HasCredential()
}

// Outcome is the result of Ask. Answer holds the search result whether or not
// it could be appended.
type Outcome struct {
	Applied bool
	Answer  aisearch.Result
}

// Ask searches for prompt and appends the quoted prompt and the answer to the
// page pageID. The target is fixed when Ask is called: switching pages while
// the search runs does not redirect the result, and if the page is deleted
// meanwhile the result is dropped and Applied is false.
//
// A failed search returns an error wrapping apperr.ErrSearchFailed and leaves
// the store untouched.
func (m *Merger) Ask(ctx context.Context, pageID, prompt string) (Outcome, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Outcome{}, fmt.Errorf("%w: prompt is empty", apperr.ErrInvalidInput)
	}
	if !m.Available() {
		return Outcome{}, apperr.ErrNoCredential
	}
	if _, ok := m.store.Page(pageID); !ok {
		return Outcome{}, apperr.ErrNotFound
	}

	res, err := m.searcher.GenerateWithSearch(ctx, prompt)
	if err != nil {
		m.logger.Warn("aimerge: search failed",
			slog.String("page_id", pageID),
			slog.String("error", err.Error()))
		return Outcome{}, fmt.Errorf("%w: %w", apperr.ErrSearchFailed, err)
	}

	if _, ok := m.store.Page(pageID); !ok {
		m.logger.Info("aimerge: page gone, result discarded", slog.String("page_id", pageID))
		return Outcome{Answer: res}, nil
	}
	m.store.AppendAIResult(pageID, prompt, res.Text, res.Sources)
	m.logger.Debug("aimerge: appended",
		slog.String("page_id", pageID),
		slog.Int("sources", len(res.Sources)))
	return Outcome{Applied: true, Answer: res}, nil
}
