// Package slots holds time-of-day arithmetic and the per-day slot grid.
package slots

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// MinutesPerDay is also the latest legal end of a booking ("24:00").
	MinutesPerDay = 24 * 60

	DateLayout = "2006-01-02"
)

// ParseClock converts "HH:MM" to minutes since midnight.
// "24:00" is accepted as the end-of-day marker.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 || !digitsOnly(parts[0]) || !digitsOnly(parts[1]) {
		return 0, fmt.Errorf("invalid time format: %q, expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}

	if hour == 24 && minute == 0 {
		return MinutesPerDay, nil
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return hour*60 + minute, nil
}

// digitsOnly rejects the signs strconv.Atoi would accept.
func digitsOnly(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// HoursToMinutes converts a (possibly fractional) hour count to whole minutes.
func HoursToMinutes(hours float64) int {
	return int(math.Round(hours * 60))
}

// AddHours returns clock + hours as "HH:MM". It fails when the result leaves
// the calendar day; bookings never wrap past midnight.
func AddHours(clock string, hours float64) (string, error) {
	start, err := ParseClock(clock)
	if err != nil {
		return "", err
	}
	end := start + HoursToMinutes(hours)
	if end < 0 || end > MinutesPerDay {
		return "", fmt.Errorf("%s + %gh crosses midnight", clock, hours)
	}
	return FormatClock(end), nil
}

// Overlaps is the half-open interval test: [aStart,aEnd) and [bStart,bEnd)
// intersect iff aStart < bEnd && aEnd > bStart.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// ParseDate validates a calendar-day string.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}
