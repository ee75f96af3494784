// Package models defines the domain types for Pagebook.
package models

// Kind is the variant of a content block.
type Kind string

// Block kinds. The set is closed; unknown kinds are rejected on decode.
const (
	KindHeading1       Kind = "h1"
	KindHeading2       Kind = "h2"
	KindParagraph      Kind = "paragraph"
	KindBullet         Kind = "bullet"
	KindNumbered       Kind = "numbered"
	KindTodo           Kind = "todo"
	KindImage          Kind = "image"
	KindQuote          Kind = "quote"
	KindDivider        Kind = "divider"
	KindCode           Kind = "code"
	KindAISearchResult Kind = "ai-search-result"
)

var kinds = map[Kind]struct{}{
	KindHeading1:       {},
	KindHeading2:       {},
	KindParagraph:      {},
	KindBullet:         {},
	KindNumbered:       {},
	KindTodo:           {},
	KindImage:          {},
	KindQuote:          {},
	KindDivider:        {},
	KindCode:           {},
	KindAISearchResult: {},
}

// Valid reports whether k is one of the known block kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Kinds returns every known kind as strings, for validation rules.
func Kinds() []any {
	out := make([]any, 0, len(kinds))
	for k := range kinds {
		out = append(out, string(k))
	}
	return out
}

// Citation is a source attached to an AI search result.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Block is the atomic unit of page content.
//
// Checked is only meaningful for todo blocks, Src for image blocks, Language
// for code blocks and Sources for ai-search-result blocks.
type Block struct {
	ID       string     `json:"id"`
	Kind     Kind       `json:"type"`
	Content  string     `json:"content"`
	Checked  *bool      `json:"checked,omitempty"`
	Src      string     `json:"src,omitempty"`
	Language string     `json:"language,omitempty"`
	Sources  []Citation `json:"sources,omitempty"`
}

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	if b.Checked != nil {
		v := *b.Checked
		b.Checked = &v
	}
	if b.Sources != nil {
		b.Sources = append([]Citation(nil), b.Sources...)
	}
	return b
}

// IsChecked reports the todo state, treating an absent value as unchecked.
func (b Block) IsChecked() bool {
	return b.Checked != nil && *b.Checked
}
