package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is an opening interval in minutes since midnight, Close exclusive
type Window struct {
	Open  int
	Close int
}

func (w Window) Contains(start, end int) bool {
	return start >= w.Open && end <= w.Close
}

// ParseClock parses "HH:MM" into minutes since midnight
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseOpeningHours turns {weekday: "HH:MM-HH:MM"} into windows
func ParseOpeningHours(raw map[int]string) (map[time.Weekday]Window, error) {
	hours := make(map[time.Weekday]Window, len(raw))
	for day, spec := range raw {
		if day < 0 || day > 6 {
			return nil, fmt.Errorf("invalid weekday %d", day)
		}
		open, close, ok := strings.Cut(spec, "-")
		if !ok {
			return nil, fmt.Errorf("invalid opening hours %q for weekday %d", spec, day)
		}
		o, err := ParseClock(strings.TrimSpace(open))
		if err != nil {
			return nil, err
		}
		c, err := ParseClock(strings.TrimSpace(close))
		if err != nil {
			return nil, err
		}
		if c <= o {
			return nil, fmt.Errorf("opening hours %q for weekday %d close before they open", spec, day)
		}
		hours[time.Weekday(day)] = Window{Open: o, Close: c}
	}
	return hours, nil
}
