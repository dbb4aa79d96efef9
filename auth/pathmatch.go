package auth

import "strings"

// requiresAuth reports whether path needs authentication given the excluded
// patterns. It fails closed: an empty path or an empty pattern list requires
// authentication.
//
// Paths and exact patterns are compared with a trailing slash appended, so
// "/api/status" and "/api/status/" are equivalent. A pattern ending in "*"
// matches any path starting with the text before the "*".
func requiresAuth(path string, excluded []string) bool {
	if path == "" || len(excluded) == 0 {
		return true
	}
	path = withTrailingSlash(path)
	for _, pattern := range excluded {
		if pattern == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return false
			}
			continue
		}
		if withTrailingSlash(pattern) == path {
			return false
		}
	}
	return true
}

func withTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
