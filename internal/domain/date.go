package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical date form used for cache keys and output.
const DateLayout = "2006-01-02"

// dateLayouts lists the accepted input forms, canonical first.
var dateLayouts = []string{
	DateLayout,   // 2025-11-22
	"01/02/2006", // 11/22/2025
	"01-02-2006", // 11-22-2025
}

// ParseDate parses a request date in YYYY-MM-DD, MM/DD/YYYY or MM-DD-YYYY
// form and returns midnight UTC of that calendar date. Impossible dates such
// as "13/40/2025" fail with ErrInvalidDate.
func ParseDate(input string) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date, expected YYYY-MM-DD, MM/DD/YYYY or MM-DD-YYYY", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q, expected YYYY-MM-DD, MM/DD/YYYY or MM-DD-YYYY", ErrInvalidDate, input)
}

// CanonicalDate normalizes any accepted date spelling to YYYY-MM-DD.
func CanonicalDate(input string) (string, error) {
	t, err := ParseDate(input)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}
