// Package aisearch calls an external generative model with web search
// grounding and returns the answer with its citations.
package aisearch

import (
	"context"

	"github.com/starford/pagebook/internal/models"
)

// Result is a generated answer and the sources it was grounded on.
type Result struct {
	Text    string
	Sources []models.Citation
}

// Searcher is the external search capability.
type Searcher interface {
	// GenerateWithSearch answers prompt. It may block on the network.
	GenerateWithSearch(ctx context.Context, prompt string) (Result, error)
	// HasCredential reports whether a call can be attempted at all.
	HasCredential() bool
}
