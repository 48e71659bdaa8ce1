// Package dateparse resolves the scheduling shorthand accepted by job
// flags into calendar dates. Technicians book work as "+2w" or "friday";
// records store plain ISO 8601 days.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the storage format for scheduled days.
const ISODate = "2006-01-02"

// ParseDate resolves a scheduling input against the current time.
// Accepted forms: exact days ("2026-09-01"), offsets ("+7d", "+2w", "+1m"),
// weekday names ("friday", always the next occurrence), and the keywords
// "today", "tomorrow", "next-week", "next-month".
func ParseDate(input string) (string, error) {
	return ParseDateFrom(input, time.Now())
}

// ParseDateFrom is ParseDate with an explicit reference time, which keeps
// tests deterministic.
func ParseDateFrom(input string, now time.Time) (string, error) {
	norm := strings.TrimSpace(strings.ToLower(input))
	if norm == "" {
		return "", fmt.Errorf("empty date input")
	}
	for _, resolve := range resolvers {
		day, ok, err := resolve(norm, now)
		if err != nil {
			return "", err
		}
		if ok {
			return day.Format(ISODate), nil
		}
	}
	return "", fmt.Errorf("unrecognized date format: %q", input)
}

// resolver handles one input family. ok=false means the input is not this
// family's; the next resolver gets a turn.
type resolver func(input string, now time.Time) (time.Time, bool, error)

var resolvers = []resolver{exactDay, keyword, offset, weekdayName}

func exactDay(input string, _ time.Time) (time.Time, bool, error) {
	t, err := time.Parse(ISODate, input)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func keyword(input string, now time.Time) (time.Time, bool, error) {
	switch input {
	case "today":
		return now, true, nil
	case "tomorrow":
		return now.AddDate(0, 0, 1), true, nil
	case "next-week":
		return now.AddDate(0, 0, daysUntil(time.Monday, now)), true, nil
	case "next-month":
		year, month, _ := now.Date()
		return time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location()), true, nil
	}
	return time.Time{}, false, nil
}

// offsetRe matches "+<count><unit>".
var offsetRe = regexp.MustCompile(`^\+(\d+)([a-z])$`)

func offset(input string, now time.Time) (time.Time, bool, error) {
	m := offsetRe.FindStringSubmatch(input)
	if m == nil {
		return time.Time{}, false, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false, nil
	}
	switch m[2] {
	case "d":
		return now.AddDate(0, 0, n), true, nil
	case "w":
		return now.AddDate(0, 0, n*7), true, nil
	case "m":
		return now.AddDate(0, n, 0), true, nil
	}
	return time.Time{}, false, fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", m[2], input)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func weekdayName(input string, now time.Time) (time.Time, bool, error) {
	target, ok := weekdays[input]
	if !ok {
		return time.Time{}, false, nil
	}
	return now.AddDate(0, 0, daysUntil(target, now)), true, nil
}

// daysUntil counts days to the next occurrence of target, never zero: a job
// booked for "friday" on a Friday lands on next week's.
func daysUntil(target time.Weekday, now time.Time) int {
	d := (int(target) - int(now.Weekday()) + 7) % 7
	if d == 0 {
		d = 7
	}
	return d
}
