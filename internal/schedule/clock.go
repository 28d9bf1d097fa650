package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Clock is a wall-clock time-of-day with minute granularity,
// stored as minutes since midnight.
type Clock int

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseClock parses "HH:MM" (00:00 .. 23:59).
func ParseClock(raw string) (Clock, error) {
	m := reClock.FindStringSubmatch(raw)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid time %q (use HH:MM)", raw)
	}
	hh := int(m[1][0] - '0')
	if len(m[1]) == 2 {
		hh = hh*10 + int(m[1][1]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", raw)
	}
	return Clock(hh*60 + mm), nil
}

// mustClock is ParseClock for literals.
func mustClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time-of-day of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// String renders zero-padded HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns c shifted by min minutes. No wrap-around at midnight.
func (c Clock) Add(min int) Clock { return c + Clock(min) }

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// deadlineLayouts are the forms a browser datetime input (and API clients) send.
var deadlineLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// ParseDeadline parses a deadline date-time. The returned time keeps the
// wall clock exactly as written (no zone conversion).
func ParseDeadline(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q", raw)
}
