package chunk

import (
	"regexp"
	"strings"
)

// header is one markdown heading with its byte extent. The end offset is the
// start of the next header at the same or shallower level, or end-of-document.
type header struct {
	level int // 1-6
	text  string
	start int
	end   int
}

var headerRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// scanHeaders finds all markdown headers outside fenced code blocks and
// computes their extents.
func scanHeaders(content string) []header {
	var headers []header

	inFence := false
	offset := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		lineStart := offset
		offset += len(line)

		trimmed := strings.TrimRight(line, "\n")
		if strings.HasPrefix(strings.TrimLeft(trimmed, " \t"), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		m := headerRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		headers = append(headers, header{
			level: len(m[1]),
			text:  m[2],
			start: lineStart,
		})
	}

	// A header's extent runs until the next header at the same or shallower
	// level, or end of document.
	for i := range headers {
		headers[i].end = len(content)
		for j := i + 1; j < len(headers); j++ {
			if headers[j].level <= headers[i].level {
				headers[i].end = headers[j].start
				break
			}
		}
	}

	return headers
}

// hierarchyAt derives the ordered header path enclosing the given offset.
// Headers are walked in document order maintaining an explicit stack: a
// header applies if offset lies in [start, end); before pushing, the stack
// is spliced down to the header's level so a level-L header never sits
// deeper than position L.
func hierarchyAt(headers []header, offset int) []string {
	var stack []header
	for _, h := range headers {
		if h.start > offset {
			break
		}
		if offset < h.start || offset >= h.end {
			continue
		}
		if d := h.level - 1; d < len(stack) {
			stack = stack[:d]
		}
		stack = append(stack, h)
	}

	if len(stack) == 0 {
		return nil
	}
	names := make([]string, len(stack))
	for i, h := range stack {
		names[i] = h.text
	}
	return names
}
