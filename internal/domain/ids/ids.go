package ids

import (
	"crypto/rand"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// PublicSlugLength is the length of an event's public share slug.
const PublicSlugLength = 16

var (
	ulidRegex = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)
	slugRegex = regexp.MustCompile(`^[0-9a-hjkmnp-tv-z]{16}$`)

	ErrInvalidULID = errors.New("invalid ULID")
	ErrInvalidSlug = errors.New("invalid public slug")
)

// NewULID generates a new ULID string.
func NewULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID returns true when value is a valid ULID (case-insensitive Crockford Base32).
func IsULID(value string) bool {
	return ulidRegex.MatchString(strings.TrimSpace(value))
}

// ValidateULID validates a ULID string.
func ValidateULID(value string) error {
	if !IsULID(value) {
		return ErrInvalidULID
	}
	return nil
}

// NormalizeULID trims and upper-cases a ULID so lookups are case-insensitive.
func NormalizeULID(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// NewPublicSlug returns an unguessable lowercase slug built from 80 bits of
// ULID entropy. The timestamp half of the ULID is discarded so slugs do not
// reveal when an event was created.
func NewPublicSlug() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	encoded := id.String()
	return strings.ToLower(encoded[len(encoded)-PublicSlugLength:]), nil
}

// ValidatePublicSlug rejects values that could never have been minted by
// NewPublicSlug.
func ValidatePublicSlug(value string) error {
	if !slugRegex.MatchString(value) {
		return ErrInvalidSlug
	}
	return nil
}
