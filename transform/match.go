package transform

import "strings"

// MatchPath reports whether a glob-style pattern matches a request path.
// `*` matches exactly one path segment, `**` matches any number of segments
// including zero, and a bare `*` or `**` matches everything.
func MatchPath(pattern, path string) bool {
	if pattern == "*" || pattern == "**" {
		return true
	}
	return matchSegments(splitPath(pattern), splitPath(path))
}

// splitPath breaks a path into segments, dropping empty ones so leading and
// trailing slashes do not matter.
func splitPath(s string) []string {
	parts := strings.Split(s, "/")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// matchSegments matches pattern segments against path segments.
func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}

	head := pattern[0]
	if head == "**" {
		// `**` absorbs zero or more segments.
		for skip := 0; skip <= len(path); skip++ {
			if matchSegments(pattern[1:], path[skip:]) {
				return true
			}
		}
		return false
	}

	if len(path) == 0 {
		return false
	}
	if head != "*" && head != path[0] {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}
