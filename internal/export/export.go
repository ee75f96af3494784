// Package export renders a page snapshot as a Markdown or HTML document.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/starford/pagebook/internal/apperr"
	"github.com/starford/pagebook/internal/models"
)

// Formats.
const (
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

// Render renders p in the given format and returns the body and its MIME type.
func Render(p models.Page, format string) ([]byte, string, error) {
	switch format {
	case FormatMarkdown, "markdown", "":
		return []byte(Markdown(p)), "text/markdown; charset=utf-8", nil
	case FormatHTML:
		out, err := HTML(p)
		if err != nil {
			return nil, "", err
		}
		return out, "text/html; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("%w: %s", apperr.ErrUnknownFormat, format)
	}
}

// Markdown renders the blocks of p in order. Inline markup is stripped.
func Markdown(p models.Page) string {
	var buf strings.Builder
	num := 0
	for i, b := range p.Blocks {
		if b.Kind != models.KindNumbered {
			num = 0
		}
		if i > 0 && !listItem(b.Kind) || i > 0 && !listItem(p.Blocks[i-1].Kind) {
			buf.WriteByte('\n')
		}
		text := models.StripMarkup(b.Content)
		switch b.Kind {
		case models.KindHeading1:
			fmt.Fprintf(&buf, "# %s\n", text)
		case models.KindHeading2:
			fmt.Fprintf(&buf, "## %s\n", text)
		case models.KindBullet:
			fmt.Fprintf(&buf, "- %s\n", text)
		case models.KindNumbered:
			num++
			fmt.Fprintf(&buf, "%d. %s\n", num, text)
		case models.KindTodo:
			mark := " "
			if b.IsChecked() {
				mark = "x"
			}
			fmt.Fprintf(&buf, "- [%s] %s\n", mark, text)
		case models.KindImage:
			fmt.Fprintf(&buf, "![%s](%s)\n", text, b.Src)
		case models.KindQuote:
			fmt.Fprintf(&buf, "> %s\n", strings.TrimPrefix(text, "> "))
		case models.KindDivider:
			buf.WriteString("---\n")
		case models.KindCode:
			f := fence(b.Content)
			fmt.Fprintf(&buf, "%s%s\n%s\n%s\n", f, b.Language, b.Content, f)
		case models.KindAISearchResult:
			buf.WriteString(text)
			buf.WriteByte('\n')
			if len(b.Sources) > 0 {
				buf.WriteString("\nSources:\n")
				for _, s := range b.Sources {
					title := s.Title
					if title == "" {
						title = s.URI
					}
					fmt.Fprintf(&buf, "- [%s](%s)\n", title, s.URI)
				}
			}
		default:
			buf.WriteString(text)
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// fence returns a backtick fence longer than any backtick run in content.
func fence(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

// HTML renders the Markdown form of p to an HTML fragment.
func HTML(p models.Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(p)), &buf); err != nil {
		return nil, fmt.Errorf("export: render html: %w", err)
	}
	return buf.Bytes(), nil
}

func listItem(k models.Kind) bool {
	return k == models.KindBullet || k == models.KindNumbered || k == models.KindTodo
}
