// Package parser converts a Markdown document, with optional YAML
// frontmatter, into a sequence of page blocks.
package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/starford/pagebook/internal/models"
)

// Result holds the output of parsing a Markdown document.
type Result struct {
	Frontmatter map[string]interface{}
	Blocks      []models.Block
}

var md = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// Parse converts Markdown into blocks with fresh ids. A frontmatter "title"
// becomes a leading h1 block when the body has no first-level heading.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	src := []byte(body)
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []models.Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		blocks = appendNode(blocks, n, src)
	}

	if title, ok := fm["title"].(string); ok && strings.TrimSpace(title) != "" && !hasHeading1(blocks) {
		h := models.Block{ID: models.NewID(), Kind: models.KindHeading1, Content: strings.TrimSpace(title)}
		blocks = append([]models.Block{h}, blocks...)
	}
	if blocks == nil {
		blocks = []models.Block{}
	}

	return &Result{Frontmatter: fm, Blocks: blocks}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Missing or invalid frontmatter leaves the whole
// input as body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

func appendNode(blocks []models.Block, n ast.Node, src []byte) []models.Block {
	switch node := n.(type) {
	case *ast.Heading:
		kind := models.KindHeading2
		if node.Level == 1 {
			kind = models.KindHeading1
		}
		return append(blocks, newBlock(kind, inlineText(node, src)))

	case *ast.Paragraph:
		if img, ok := soleImage(node); ok {
			b := newBlock(models.KindImage, inlineText(img, src))
			b.Src = string(img.Destination)
			return append(blocks, b)
		}
		return append(blocks, newBlock(models.KindParagraph, inlineText(node, src)))

	case *ast.Blockquote:
		var lines []string
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			lines = append(lines, inlineText(c, src))
		}
		return append(blocks, newBlock(models.KindQuote, strings.Join(lines, "\n")))

	case *ast.ThematicBreak:
		return append(blocks, newBlock(models.KindDivider, ""))

	case *ast.FencedCodeBlock:
		b := newBlock(models.KindCode, codeText(node, src))
		b.Language = string(node.Language(src))
		return append(blocks, b)

	case *ast.CodeBlock:
		return append(blocks, newBlock(models.KindCode, codeText(node, src)))

	case *ast.List:
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			blocks = appendListItem(blocks, item, node.IsOrdered(), src)
		}
		return blocks

	case *ast.HTMLBlock:
		return append(blocks, newBlock(models.KindParagraph, codeText(node, src)))
	}
	return blocks
}

func appendListItem(blocks []models.Block, item ast.Node, ordered bool, src []byte) []models.Block {
	kind := models.KindBullet
	if ordered {
		kind = models.KindNumbered
	}
	seen := false
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if list, ok := c.(*ast.List); ok {
			for sub := list.FirstChild(); sub != nil; sub = sub.NextSibling() {
				blocks = appendListItem(blocks, sub, list.IsOrdered(), src)
			}
			continue
		}
		if seen {
			continue
		}
		nb := newBlock(kind, inlineText(c, src))
		if box, ok := c.FirstChild().(*extast.TaskCheckBox); ok {
			nb.Kind = models.KindTodo
			checked := box.IsChecked
			nb.Checked = &checked
		}
		blocks = append(blocks, nb)
		seen = true
	}
	return blocks
}

func newBlock(kind models.Kind, content string) models.Block {
	return models.Block{ID: models.NewID(), Kind: kind, Content: content}
}

func soleImage(p *ast.Paragraph) (*ast.Image, bool) {
	if p.ChildCount() != 1 {
		return nil, false
	}
	img, ok := p.FirstChild().(*ast.Image)
	return img, ok
}

// inlineText flattens the inline children of n into plain text.
func inlineText(n ast.Node, src []byte) string {
	var buf strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
			return
		case *ast.String:
			buf.Write(t.Value)
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

func codeText(n ast.Node, src []byte) string {
	var buf strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}

func hasHeading1(blocks []models.Block) bool {
	for _, b := range blocks {
		if b.Kind == models.KindHeading1 {
			return true
		}
	}
	return false
}
