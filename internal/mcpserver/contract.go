package mcpserver

import (
	"context"
	"strings"
)

// BlockFormatContract describes how Markdown given to create_page maps onto
// page blocks, and how read_page renders them back.
const BlockFormatContract = `# Pagebook Block Format Contract

A page is an ordered list of blocks. Pages are created from Markdown; every
top-level Markdown element becomes one block.

## Mapping

| Markdown                         | Block type        |
|----------------------------------|-------------------|
| ` + "`# Heading`" + `                      | h1                |
| ` + "`## Heading`" + ` (and deeper)        | h2                |
| plain paragraph                  | paragraph         |
| ` + "`- item`" + ` / ` + "`* item`" + `              | bullet            |
| ` + "`1. item`" + `                        | numbered          |
| ` + "`- [ ] task`" + ` / ` + "`- [x] done`" + `     | todo              |
| paragraph holding only ` + "`![alt](url)`" + ` | image          |
| ` + "`> quoted`" + `                       | quote             |
| ` + "`---`" + `                            | divider           |
| fenced code with language        | code              |

## Rules

1. **The title is derived, never stored.** It is the text of the first h1
   block with markup removed, or "Untitled" when there is none or it is blank.
   Start every page with exactly one ` + "`# Title`" + ` line.
2. **Optional YAML frontmatter** may precede the body. Its ` + "`title`" + ` key
   becomes a leading h1 when the body has none; other keys are ignored.
3. **Nested lists are flattened**: each list item becomes its own block.
4. **Images** are referenced by URL; nothing is uploaded.
5. **AI results** (ai-search-result blocks) are only created by the ask_ai
   tool, preceded by a quote block holding the prompt.
6. **Encoding** is UTF-8.

## Example

~~~markdown
# Weekly standup

Attendees: Alice, Bob.

- [x] ship the importer
- [ ] review exports

> Decisions are final once written down.

---

` + "```" + `go
fmt.Println("hello")
` + "```" + `
~~~
`

// contract returns the block contract followed by the current template list.
func (s *Server) contract() string {
	var b strings.Builder
	b.WriteString(BlockFormatContract)
	b.WriteString("\n## Templates\n\nPass one of these names as create_page's `template` argument:\n\n")
	for _, t := range s.svc.Templates(context.Background()) {
		b.WriteString("- `" + t.Name + "`: " + t.Title + "\n")
	}
	return b.String()
}
