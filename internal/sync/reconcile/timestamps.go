package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are the ISO forms upstream uses. Values without an offset are local time.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// parseTimestamp reads an optional upstream timestamp. Null and empty values are nil.
func parseTimestamp(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, *raw, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", *raw)
}

// parseClock reads "15:04" as minutes since midnight.
func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("unrecognized time of day %q", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}
