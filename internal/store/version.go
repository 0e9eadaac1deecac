package store

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeVersion converts a raw version string into a zero-padded form so
// that lexicographic ordering matches semver ordering:
//
//	"v18.2.0"  -> "0018.0002.0000"
//	"1.4"      -> "0001.0004.0000"
//	"2.0.0-rc1"-> "0002.0000.0000-rc1"
//
// Non-numeric inputs such as "latest" pass through unchanged.
func NormalizeVersion(raw string) string {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if s == "" {
		return raw
	}

	base, suffix := s, ""
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		base, suffix = s[:i], s[i:]
	}

	parts := strings.Split(base, ".")
	if len(parts) > 3 {
		return raw
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return raw
		}
		nums[i] = n
	}

	return fmt.Sprintf("%04d.%04d.%04d%s", nums[0], nums[1], nums[2], suffix)
}
