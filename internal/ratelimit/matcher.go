package ratelimit

import "strings"

// Pattern matching for endpoint rules, most specific first:
// exact literal, then template ({param} segments), then prefix wildcard.
// Matching is pure so Check and Consume always agree on the applied rule.

// matchTemplate matches a pattern whose segments may be {param} placeholders,
// e.g. /users/{id}/profile against /users/42/profile. Segment counts must
// line up; literal segments must be equal.
func matchTemplate(pattern, path string) bool {
	if !strings.Contains(pattern, "{") {
		return false
	}
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	ts := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(ts) {
		return false
	}
	for i, seg := range ps {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if ts[i] == "" {
				return false
			}
			continue
		}
		if seg != ts[i] {
			return false
		}
	}
	return true
}

// matchPrefix matches a trailing-wildcard pattern such as /finance/* against
// any path under that prefix, including the bare prefix itself.
func matchPrefix(pattern, path string) bool {
	if !strings.HasSuffix(pattern, "/*") {
		return false
	}
	prefix := strings.TrimSuffix(pattern, "/*")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// moreSpecific orders two patterns of the same tier: longer pattern wins,
// ties broken lexicographically so matching stays deterministic.
func moreSpecific(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a < b
}
