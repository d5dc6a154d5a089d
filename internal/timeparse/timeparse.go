// Package timeparse extracts occurrence dates and times from the free-text
// values platforms hand us: POS line-item titles such as
// "Ghost Tour (7:00 PM)" and order item meta such as "June 1, 2025".
//
// Every function reports "no match" explicitly; callers decide the fallback.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the canonical 24-hour time of day, e.g. "19:00".
const TimeLayout = "15:04"

// DateLayout is the canonical date key layout.
const DateLayout = "2006-01-02"

var (
	parenGroup = regexp.MustCompile(`\(([^()]*)\)`)
	clock12    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?\s*m\b\.?`)
	clock24    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)(?::[0-5]\d)?\b`)
)

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Monday, January 2, 2006",
	"2 January 2006",
	"20060102",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimeToken finds a time-of-day token in title and returns it as "15:04".
// A trailing parenthesised group wins over tokens elsewhere in the title.
func ParseTimeToken(title string) (string, bool) {
	groups := parenGroup.FindAllStringSubmatch(title, -1)
	for i := len(groups) - 1; i >= 0; i-- {
		if t, ok := findClock(groups[i][1]); ok {
			return t, true
		}
	}
	return findClock(title)
}

// findClock returns the last clock token in s.
func findClock(s string) (string, bool) {
	if m := clock12.FindAllStringSubmatch(s, -1); len(m) > 0 {
		last := m[len(m)-1]
		return fromParts(last[1], last[2], strings.ToLower(last[3]))
	}
	if m := clock24.FindAllStringSubmatch(s, -1); len(m) > 0 {
		last := m[len(m)-1]
		return fromParts(last[1], last[2], "")
	}
	return "", false
}

func fromParts(hourStr, minStr, meridiem string) (string, bool) {
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return "", false
	}
	minute := 0
	if minStr != "" {
		if minute, err = strconv.Atoi(minStr); err != nil || minute > 59 {
			return "", false
		}
	}
	switch meridiem {
	case "a":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// NormalizeTime converts a user or platform supplied time ("7pm", "7:00 PM",
// "19:00:00") to "15:04". Empty input yields "" without error.
func NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, ok := findClock(s); ok {
		return t, nil
	}
	return "", fmt.Errorf("unrecognised time %q", s)
}

// ParseDate parses the date formats seen in order item meta.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// DateKey builds the mapping override key for a date and optional time.
func DateKey(date, clock string) string {
	if clock == "" {
		return date
	}
	return date + " " + clock
}

// SplitDateKey is the inverse of DateKey.
func SplitDateKey(key string) (date, clock string) {
	date, clock, _ = strings.Cut(key, " ")
	return date, clock
}
