package store

import "strings"

// DetectCode scans content for fenced code blocks and returns whether any
// exist plus the language tag of the first fence that has one.
//
// Only opening fences are considered: a fence line is one starting with
// ``` (optionally indented); every other fence line closes the current block.
func DetectCode(content string) (hasCode bool, language string) {
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if inBlock {
			inBlock = false
			continue
		}
		inBlock = true
		hasCode = true
		if language == "" {
			tag := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			// "```go title=x" style info strings: only the first word is the language.
			if i := strings.IndexAny(tag, " \t"); i >= 0 {
				tag = tag[:i]
			}
			language = tag
		}
	}
	return hasCode, language
}
