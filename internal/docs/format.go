package docs

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/docdex/docdex/internal/store"
)

// formatResults renders ranked matches as numbered sections with a
// hierarchy breadcrumb, stopping once the character budget is spent.
// Returns the rendered text and how many sections made it in.
func formatResults(matches []store.SearchResult, maxChars int) (string, int) {
	if len(matches) == 0 {
		return "", 0
	}

	var b strings.Builder
	count := 0
	for i, m := range matches {
		section := formatSection(i+1, m)
		if b.Len() > 0 && b.Len()+len(section) > maxChars {
			break
		}
		if b.Len() == 0 && len(section) > maxChars {
			// Even a single section can exceed a tiny budget; trim its body.
			section = trimToBudget(section, maxChars)
		}
		b.WriteString(section)
		count++
	}
	return strings.TrimRight(b.String(), "\n"), count
}

func formatSection(rank int, m store.SearchResult) string {
	doc := m.Document

	var b strings.Builder
	fmt.Fprintf(&b, "## %d. %s\n", rank, doc.Title)
	if len(doc.Hierarchy) > 0 {
		fmt.Fprintf(&b, "Path: %s\n", strings.Join(doc.Hierarchy, " > "))
	}
	if doc.SourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n", doc.SourceURL)
	}
	fmt.Fprintf(&b, "Relevance: %.2f\n\n", m.Score)
	b.WriteString(strings.TrimSpace(doc.Content))
	b.WriteString("\n\n")
	return b.String()
}

// trimToBudget cuts a section to maxChars at a rune boundary, marking the
// cut with an ellipsis.
func trimToBudget(section string, maxChars int) string {
	const marker = "…\n"
	if maxChars <= len(marker) {
		return section[:0]
	}
	cut := maxChars - len(marker)
	for cut > 0 && !utf8.RuneStart(section[cut]) {
		cut--
	}
	return section[:cut] + marker
}

// excerpt returns the leading maxChars characters of content, cut at a word
// boundary where one is near.
func excerpt(content string, maxChars int) string {
	content = strings.TrimSpace(content)
	if len(content) <= maxChars {
		return content
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	if idx := strings.LastIndexByte(content[:cut], ' '); idx > maxChars/2 {
		cut = idx
	}
	return strings.TrimRight(content[:cut], " ") + "…"
}
