package registry

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// plainText strips all markup; the policy is safe for concurrent use
var plainText = bluemonday.StrictPolicy()

// sanitizeText reduces publisher-supplied text to plain, trimmed text.
// Entities escaped by the policy are decoded again so "R&D" stays "R&D".
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}
