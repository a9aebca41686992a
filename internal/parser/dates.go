package parser

import (
	"strings"
	"time"
)

// dateLayouts covers the formats seen across diarium endpoints. Most
// regions render plain dates, a few include a time component, and the
// transport API returns ISO 8601 timestamps.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02/01/2006",
}

// ParseDate normalizes a scraped date string to a time value. It returns
// nil for empty or unparseable input so callers can store the field as
// NULL instead of failing the row.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	// Timestamps with fractional seconds or trailing noise still carry a
	// usable date part before the first space.
	if strings.Contains(s, "-") {
		if head, _, found := strings.Cut(s, " "); found {
			if t, err := time.Parse("2006-01-02", head); err == nil {
				return &t
			}
		}
		if head, _, found := strings.Cut(s, "T"); found {
			if t, err := time.Parse("2006-01-02", head); err == nil {
				return &t
			}
		}
	}

	return nil
}
