package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/index"
	"github.com/starford/pagebook/internal/models"
	"github.com/starford/pagebook/internal/pageservice"
)

const maxMarkdownLen = 1 << 20

// CreatePageRequest is the request body for creating a page. At most one of
// the fields may be set; an empty body creates a blank page.
type CreatePageRequest struct {
	Template string         `json:"template,omitempty" example:"meeting-notes"`
	Blocks   []models.Block `json:"blocks,omitempty"`
	Markdown string         `json:"markdown,omitempty" example:"# Hello\nWorld"`
}

// Validate validates the request.
func (r *CreatePageRequest) Validate() error {
	set := 0
	if r.Template != "" {
		set++
	}
	if r.Blocks != nil {
		set++
	}
	if r.Markdown != "" {
		set++
	}
	if set > 1 {
		return errors.New("only one of template, blocks or markdown may be given")
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Blocks, validation.Each(validation.By(blockRule))),
		validation.Field(&r.Markdown, validation.Length(0, maxMarkdownLen)),
	)
}

func (r *CreatePageRequest) input() pageservice.CreateInput {
	return pageservice.CreateInput{Template: r.Template, Blocks: r.Blocks, Markdown: r.Markdown}
}

// ReplaceBlocksRequest is the request body for replacing a page's blocks.
type ReplaceBlocksRequest struct {
	Blocks []models.Block `json:"blocks" validate:"required"`
}

// Validate validates the request.
func (r *ReplaceBlocksRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Blocks, validation.NotNil, validation.Each(validation.By(blockRule))),
	)
}

// SwitchPageRequest is the request body for switching the current page.
type SwitchPageRequest struct {
	ID string `json:"id" validate:"required"`
}

// Validate validates the request.
func (r *SwitchPageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required),
	)
}

// ThemeRequest is the request body for setting the theme. Toggle flips the
// current theme and ignores Theme.
type ThemeRequest struct {
	Theme  string `json:"theme,omitempty" example:"dark"`
	Toggle bool   `json:"toggle,omitempty"`
}

// Validate validates the request.
func (r *ThemeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Theme,
			validation.When(!r.Toggle, validation.Required),
			validation.In(string(docstore.ThemeLight), string(docstore.ThemeDark)),
		),
	)
}

// AISearchRequest is the request body for an AI search.
type AISearchRequest struct {
	Prompt string `json:"prompt" example:"What is a block editor?" validate:"required"`
}

// Validate validates the request.
func (r *AISearchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Prompt, validation.Required, validation.Length(1, 4000)),
	)
}

func blockRule(value any) error {
	b, ok := value.(models.Block)
	if !ok {
		return errors.New("must be a block")
	}
	return validation.Validate(string(b.Kind), validation.Required, validation.In(models.Kinds()...))
}

// PageDetail is the full page response type (aliased from the domain layer).
type PageDetail = pageservice.PageDetail

// PageListResponse wraps the page listing.
type PageListResponse struct {
	Pages   []docstore.Summary `json:"pages" validate:"required"`
	Current string             `json:"current" example:"3f0c..."`
}

// ThemeResponse reports the editor theme.
type ThemeResponse struct {
	Theme docstore.Theme `json:"theme" example:"light" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// AIStatusResponse reports whether AI search is configured.
type AIStatusResponse struct {
	Available bool `json:"available"`
}
