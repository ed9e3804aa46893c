package customdata

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
)

// GenerateSlug derives the url-safe identifier of a display name. It fails with
// ErrInvalidDisplayName when nothing usable is left.
func GenerateSlug(displayName string) (string, error) {
	slug := strings.ToLower(displayName)
	slug = whitespaceRun.ReplaceAllString(slug, "-")
	slug = disallowed.ReplaceAllString(slug, "")
	slug = hyphenRun.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "", ErrInvalidDisplayName
	}
	return slug, nil
}
