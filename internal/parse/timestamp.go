package parse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBlank is returned for empty cells and the placeholders used for them.
var ErrBlank = errors.New("blank timestamp")

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"1/2/2006, 3:04:05 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/2006, 3:04 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006, 15:04:05",
	"1/2/2006 15:04:05",
	"2006-01-02",
	"1/2/2006",
}

// Present reports whether raw carries a value rather than a blank placeholder.
func Present(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "n/a", "null", "undefined":
		return false
	}
	return true
}

// Timestamp parses the date formats found in attendance sheets. Values without
// a zone are interpreted in loc.
func Timestamp(raw string, loc *time.Location) (time.Time, error) {
	if !Present(raw) {
		return time.Time{}, ErrBlank
	}
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(raw)

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", raw)
}
