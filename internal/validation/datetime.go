package validation

import (
	"strings"
	"time"

	dateparser "github.com/markusmobius/go-dateparser"
)

var strictLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// DateTime parses a user supplied event date. ISO 8601 forms are tried
// first; anything else goes through the natural-language parser with now as
// the reference point. Values without a zone are read as UTC.
func DateTime(field, value string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, NewError(field, "is required")
	}

	for _, layout := range strictLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return parsed.UTC(), nil
		}
	}

	cfg := &dateparser.Configuration{
		CurrentTime:     now,
		DefaultTimezone: time.UTC,
	}
	parsed, err := dateparser.Parse(cfg, trimmed)
	if err != nil || parsed.Time.IsZero() {
		return time.Time{}, NewError(field, "must be a valid date and time")
	}
	return parsed.Time.UTC(), nil
}
