package xmltv

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparsableTime is returned when a timestamp string does not match the
// XMLTV time grammar or does not name a calendar-valid instant.
var ErrUnparsableTime = errors.New("unparsable XMLTV time")

// timeLayout is the 14-digit civil time block of the XMLTV grammar.
const timeLayout = "20060102150405"

// ParseTime parses an XMLTV timestamp into an absolute UTC instant.
//
// The grammar is 14 digits YYYYMMDDHHMMSS, optionally followed by whitespace
// and a signed 4-digit offset such as "+0000" or "-0500". Without an offset
// the digits are taken as UTC civil time. With an offset the digits are local
// civil time at that offset and are converted to UTC by subtracting it, so
// "20240101120000 +0500" is 2024-01-01T07:00:00Z. Content after the
// recognized prefix is ignored.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(timeLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableTime, s)
	}

	block := s[:len(timeLayout)]
	for _, r := range block {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableTime, s)
		}
	}

	// time.Parse rejects calendar-invalid values such as month 13 or
	// hour 25 instead of normalizing them.
	t, err := time.Parse(timeLayout, block)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableTime, s)
	}

	if offset, ok := parseOffset(s[len(timeLayout):]); ok {
		t = t.Add(-offset)
	}
	return t, nil
}

// parseOffset extracts a leading ±HHMM offset from the tail of a timestamp,
// after optional whitespace. Anything that does not match the offset shape is
// treated as ignorable trailing content.
func parseOffset(tail string) (time.Duration, bool) {
	tail = strings.TrimLeft(tail, " \t")
	if len(tail) < 5 {
		return 0, false
	}

	sign := time.Duration(1)
	switch tail[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, false
	}

	for _, r := range tail[1:5] {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	hours := time.Duration(tail[1]-'0')*10 + time.Duration(tail[2]-'0')
	minutes := time.Duration(tail[3]-'0')*10 + time.Duration(tail[4]-'0')

	return sign * (hours*time.Hour + minutes*time.Minute), true
}
