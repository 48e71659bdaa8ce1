package dateparse

import (
	"testing"
	"time"
)

// Reference time for deterministic cases: Wednesday, 2026-02-18.
var wednesday = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func TestParseDateFrom(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"exact day", "2026-03-01", "2026-03-01"},
		{"exact day in the past", "2025-12-31", "2025-12-31"},

		{"today", "today", "2026-02-18"},
		{"tomorrow", "tomorrow", "2026-02-19"},
		{"next-week is next monday", "next-week", "2026-02-23"},
		{"next-month is the 1st", "next-month", "2026-03-01"},

		{"zero day offset", "+0d", "2026-02-18"},
		{"day offset", "+7d", "2026-02-25"},
		{"day offset across month end", "+14d", "2026-03-04"},
		{"week offset", "+2w", "2026-03-04"},
		{"month offset", "+1m", "2026-03-18"},

		{"weekday tomorrow", "thursday", "2026-02-19"},
		{"weekday later this week", "saturday", "2026-02-21"},
		{"same weekday advances a full week", "wednesday", "2026-02-25"},
		{"weekday mixed case", "FRIDAY", "2026-02-20"},
		{"surrounding whitespace", "  tomorrow  ", "2026-02-19"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDateFrom(tc.input, wednesday)
			if err != nil {
				t.Fatalf("ParseDateFrom(%q): %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ParseDateFrom(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseDateFrom_Rejected(t *testing.T) {
	inputs := []string{
		"",
		"yesterday",
		"next year",
		"+3x",
		"+d",
		"+w",
		"notaday",
		"2026/03/01",
	}
	for _, input := range inputs {
		if _, err := ParseDateFrom(input, wednesday); err == nil {
			t.Errorf("ParseDateFrom(%q): expected error, got nil", input)
		}
	}
}

func TestParseDateFrom_MonthEndOverflow(t *testing.T) {
	// AddDate normalizes Jan 31 + 1 month past short February
	jan31 := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateFrom("+1m", jan31)
	if err != nil {
		t.Fatalf("ParseDateFrom: %v", err)
	}
	if got != "2026-03-03" {
		t.Errorf("Jan 31 + 1m = %q, want %q", got, "2026-03-03")
	}
}

func TestParseDateFrom_NextWeekOnMonday(t *testing.T) {
	monday := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateFrom("next-week", monday)
	if err != nil {
		t.Fatalf("ParseDateFrom: %v", err)
	}
	if got != "2026-02-23" {
		t.Errorf("next-week on a Monday = %q, want the following Monday", got)
	}
}

func TestParseDateFrom_NextMonthFromDecember(t *testing.T) {
	dec := time.Date(2025, 12, 15, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateFrom("next-month", dec)
	if err != nil {
		t.Fatalf("ParseDateFrom: %v", err)
	}
	if got != "2026-01-01" {
		t.Errorf("next-month from December = %q, want %q", got, "2026-01-01")
	}
}

func TestParseDateUsesCurrentTime(t *testing.T) {
	got, err := ParseDate("today")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if want := time.Now().Format(ISODate); got != want {
		t.Errorf("ParseDate(today) = %q, want %q", got, want)
	}
}
