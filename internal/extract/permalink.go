package extract

import (
	"strings"
)

const statusMarker = "/status/"

// Hrefs containing these point at viewers hanging off a status, not the
// status itself.
var nonCanonicalParts = []string{"/photo/", "/analytics"}

// Single-segment routes that are site sections rather than profiles.
var reservedRoutes = map[string]bool{
	"i":             true,
	"search":        true,
	"home":          true,
	"explore":       true,
	"notifications": true,
	"messages":      true,
	"settings":      true,
	"compose":       true,
}

// ParsePermalink reports whether href is a canonical status link and, if
// so, returns the status identifier and the absolute URL. Root-relative
// hrefs are resolved against origin; the query string is kept in the URL
// but never in the identifier.
func ParsePermalink(href, origin string) (id, absURL string, ok bool) {
	if !strings.Contains(href, statusMarker) {
		return "", "", false
	}
	for _, part := range nonCanonicalParts {
		if strings.Contains(href, part) {
			return "", "", false
		}
	}

	_, rest, _ := strings.Cut(href, statusMarker)
	id, _, _ = strings.Cut(rest, "?")
	id, _, _ = strings.Cut(id, "/")
	id, _, _ = strings.Cut(id, "#")
	if id == "" {
		return "", "", false
	}

	absURL = href
	if strings.HasPrefix(href, "/") {
		absURL = strings.TrimRight(origin, "/") + href
	}
	return id, absURL, true
}

// ProfileHandle returns the handle a profile link points at. Only
// root-relative, single-segment, non-reserved paths qualify.
func ProfileHandle(href string) (string, bool) {
	if !strings.HasPrefix(href, "/") || strings.Contains(href, statusMarker) {
		return "", false
	}
	path, _, _ := strings.Cut(href, "?")
	path, _, _ = strings.Cut(path, "#")
	handle := strings.Trim(path, "/")
	if handle == "" || strings.Contains(handle, "/") {
		return "", false
	}
	if reservedRoutes[strings.ToLower(handle)] {
		return "", false
	}
	return handle, true
}
