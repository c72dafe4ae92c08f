package timefmt

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidStartClock is returned when a start clock string matches no known ISO-8601 layout
var ErrInvalidStartClock = errors.New("invalid start clock")

// StartClock is the wall-clock instant a recording started.
// HasOffset is false when the source string carried no UTC offset.
type StartClock struct {
	Time      time.Time
	HasOffset bool
}

var (
	offsetLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999-0700",
		"2006-01-02T15:04-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999-0700",
		"2006-01-02 15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseStartClock parses an ISO-8601 date-time, with or without an offset
func ParseStartClock(s string) (*StartClock, error) {
	s = strings.TrimSpace(s)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &StartClock{Time: t, HasOffset: true}, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &StartClock{Time: t}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidStartClock, s)
}

// Relative formats a seconds offset as HH:MM:SS,mmm. Hours are not wrapped.
// seconds must be >= 0.
func Relative(seconds float64) string {
	totalMs := int64(math.Round(seconds * 1000))
	h := totalMs / 3_600_000
	m := (totalMs % 3_600_000) / 60_000
	s := (totalMs % 60_000) / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// WallClock returns the time of day at start+offset as "HH:MM:SS ±HH:MM".
// The second return value is false when start is nil.
func WallClock(start *StartClock, offsetSeconds float64) (string, bool) {
	if start == nil {
		return "", false
	}
	ts := start.Time.Add(time.Duration(offsetSeconds * float64(time.Second)))
	if !start.HasOffset {
		return ts.Format("15:04:05"), true
	}
	return ts.Format("15:04:05 -07:00"), true
}
