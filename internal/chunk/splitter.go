package chunk

import "strings"

// window is a half-open [start, end) byte range in the source text.
type window struct {
	start int
	end   int
}

// span is a fenced code block extent including both fence lines.
type span struct {
	start int
	end   int
}

// fencedRanges locates fenced code blocks. An unclosed fence extends to end
// of document.
func fencedRanges(content string) []span {
	var spans []span

	open := -1
	offset := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		lineStart := offset
		offset += len(line)

		trimmed := strings.TrimLeft(strings.TrimRight(line, "\n"), " \t")
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if open < 0 {
			open = lineStart
		} else {
			spans = append(spans, span{start: open, end: offset})
			open = -1
		}
	}
	if open >= 0 {
		spans = append(spans, span{start: open, end: len(content)})
	}
	return spans
}

// enclosingFence returns the fence containing offset, if any.
func enclosingFence(spans []span, offset int) (span, bool) {
	for _, s := range spans {
		if offset >= s.start && offset < s.end {
			return s, true
		}
	}
	return span{}, false
}

// split produces overlapping windows of roughly c.size characters. Cuts
// prefer paragraph boundaries and avoid landing inside a fenced code block
// whenever the fence fits the window; each window after the first starts
// c.overlap characters before the previous cut.
func (c *Chunker) split(content string) []window {
	if len(content) <= c.size {
		return []window{{start: 0, end: len(content)}}
	}

	fences := fencedRanges(content)

	var windows []window
	start := 0
	for start < len(content) {
		end := c.cut(content, fences, start)
		windows = append(windows, window{start: start, end: end})
		if end >= len(content) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return windows
}

// cut picks the end offset for a window starting at start.
func (c *Chunker) cut(content string, fences []span, start int) int {
	end := start + c.size
	if end >= len(content) {
		return len(content)
	}

	// Overlap must stay strictly smaller than the window, so never cut
	// before minEnd.
	minEnd := start + c.overlap + 1

	// Avoid splitting inside a fenced block when avoidable: cut before the
	// fence if enough of the window remains, otherwise swallow the whole
	// fence. A fence larger than two windows is split as a last resort.
	if f, ok := enclosingFence(fences, end); ok {
		switch {
		case f.start > minEnd:
			end = f.start
		case f.end-start <= 2*c.size:
			if f.end >= len(content) {
				return len(content)
			}
			return f.end
		}
	}

	// Prefer the last paragraph break in range, then the last line break.
	if p := strings.LastIndex(content[minEnd:end], "\n\n"); p >= 0 {
		cut := minEnd + p + 2
		if _, inside := enclosingFence(fences, cut); !inside {
			return cut
		}
	}
	if p := strings.LastIndex(content[minEnd:end], "\n"); p >= 0 {
		cut := minEnd + p + 1
		if _, inside := enclosingFence(fences, cut); !inside {
			return cut
		}
	}
	return end
}
