package models

import (
	"strings"

	"golang.org/x/net/html"
)

// UntitledTitle is used when a page has no usable first-level heading.
const UntitledTitle = "Untitled"

// Page is a named, ordered collection of blocks.
//
// Title is derived from Blocks and must only change through SetBlocks.
type Page struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Blocks []Block `json:"blocks"`
}

// NewPage builds a page with its title derived from blocks.
func NewPage(id string, blocks []Block) Page {
	p := Page{ID: id}
	p.SetBlocks(blocks)
	return p
}

// SetBlocks replaces the block sequence and recomputes the title.
func (p *Page) SetBlocks(blocks []Block) {
	if blocks == nil {
		blocks = []Block{}
	}
	p.Blocks = blocks
	p.Title = DeriveTitle(blocks)
}

// Clone returns a deep copy of p.
func (p Page) Clone() Page {
	blocks := make([]Block, len(p.Blocks))
	for i, b := range p.Blocks {
		blocks[i] = b.Clone()
	}
	p.Blocks = blocks
	return p
}

// HasBlock reports whether a block with the given id exists on the page.
func (p Page) HasBlock(id string) bool {
	for _, b := range p.Blocks {
		if b.ID == id {
			return true
		}
	}
	return false
}

// DeriveTitle returns the plain text of the first h1 block, or UntitledTitle
// when there is none or it is blank once markup is removed.
func DeriveTitle(blocks []Block) string {
	for _, b := range blocks {
		if b.Kind != KindHeading1 {
			continue
		}
		if t := StripMarkup(b.Content); t != "" {
			return t
		}
		return UntitledTitle
	}
	return UntitledTitle
}

// StripMarkup removes inline markup tags from s, decodes entities, collapses
// non-breaking spaces and trims surrounding whitespace.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var buf strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			out := strings.ReplaceAll(buf.String(), "\u00a0", " ")
			return strings.TrimSpace(out)
		case html.TextToken:
			buf.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				buf.WriteByte(' ')
			}
		}
	}
}
