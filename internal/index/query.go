package index

import "strings"

// ftsQuery turns free text into an FTS5 expression: every whitespace
// separated term becomes a quoted string, so punctuation such as "?" or "-"
// is matched literally instead of parsed as query syntax.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
