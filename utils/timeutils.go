package utils

import (
	"time"
)

// Iso8601Now returns the current time in ISO8601 format
func Iso8601Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Iso8601FromUnixSeconds converts Unix timestamp to ISO8601 format
func Iso8601FromUnixSeconds(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// Iso8601FromTime formats a time in ISO8601, normalized to UTC
func Iso8601FromTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var iso8601Layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
}

// ParseISO8601 parses an ISO8601 timestamp. Accepts a "Z" suffix as well as
// numeric UTC offsets with or without a colon; a timestamp with no zone at
// all is taken as UTC.
func ParseISO8601(s string) (time.Time, error) {
	var err error
	for _, layout := range iso8601Layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
