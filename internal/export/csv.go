// Package export renders RSVP rows for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
)

const (
	ContentType = "text/csv; charset=utf-8"
	// timestampLayout is ISO 8601 in UTC with millisecond precision.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	header       = []string{"Name", "Email", "Message", "RSVP Date"}
	unsafeInName = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)
)

// WriteCSV writes rows with a header line. Rows are written in the order given.
func WriteCSV(w io.Writer, rows []rsvps.Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			cell(row.Name),
			cell(row.Email),
			cell(row.Message),
			row.CreatedAt.UTC().Format(timestampLayout),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// cell prefixes values a spreadsheet would evaluate as a formula with a
// single quote, so guest input is always shown as text.
func cell(value string) string {
	if value != "" && strings.ContainsRune("=+-@\t\r", rune(value[0])) {
		return "'" + value
	}
	return value
}

// Filename returns "<title>-rsvps.csv" with characters that are unsafe in a
// Content-Disposition header or on common filesystems replaced.
func Filename(title string) string {
	cleaned := strings.TrimSpace(unsafeInName.ReplaceAllString(title, "_"))
	if cleaned == "" {
		cleaned = "event"
	}
	if len(cleaned) > 100 {
		cleaned = cleaned[:100]
	}
	return cleaned + "-rsvps.csv"
}
