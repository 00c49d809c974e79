package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// maxPasses bounds how many layers of entity encoding Text unwraps.
const maxPasses = 4

// Text strips all markup from user input and trims surrounding whitespace.
// The result is plain text: entities are decoded, and markup hidden behind
// entity encoding (&lt;b&gt;) is stripped as well. Input that still decodes
// to something new after maxPasses is returned in its escaped form.
func Text(input string) string {
	out := input
	for range maxPasses {
		next := html.UnescapeString(StrictPolicy.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	return strings.TrimSpace(StrictPolicy.Sanitize(out))
}

// OptionalText applies Text to a possibly absent value.
func OptionalText(input *string) *string {
	if input == nil {
		return nil
	}
	out := Text(*input)
	return &out
}
