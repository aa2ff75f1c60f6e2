package spec

import (
	"regexp"
	"time"
)

// conservativeEmailPattern is a deliberately conservative email check
// ("email uses a conservative regex"), rejecting most
// malformed addresses before the stdlib mail parser runs.
var conservativeEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// dateLayouts are the formats parseFlexibleDate tries, in order
// ("date accepts ISO-8601 and common formats").
var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
}

func parseFlexibleDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
