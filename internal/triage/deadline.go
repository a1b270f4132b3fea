package triage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?\b`)
	monthDayRe  = regexp.MustCompile(`(?i)\b(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthNames + `)\b`)
)

const monthNames = `january|february|march|april|may|june|july|august|september|october|november|december|` +
	`jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

var monthAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

func monthOf(name string) time.Month {
	return monthAbbrev[strings.ToLower(name)[:3]]
}

// concreteDates extracts calendar dates from raw. Dates written without a
// year resolve to their next occurrence on or after today.
func concreteDates(raw string, today time.Time) []time.Time {
	var out []time.Time
	add := func(y int, m time.Month, d int) {
		if m < time.January || m > time.December || d < 1 || d > 31 {
			return
		}
		if y == 0 {
			y = today.Year()
			if t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC); t.Before(today) {
				y++
			}
		}
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if t.Day() != d {
			return // Feb 30 and friends
		}
		out = append(out, t)
	}

	for _, m := range isoDateRe.FindAllStringSubmatch(raw, -1) {
		add(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
	}
	for _, m := range slashDateRe.FindAllStringSubmatch(raw, -1) {
		y := 0
		if m[3] != "" {
			y = atoi(m[3])
			if y < 100 {
				y += 2000
			}
		}
		add(y, time.Month(atoi(m[1])), atoi(m[2]))
	}
	for _, m := range monthDayRe.FindAllStringSubmatch(raw, -1) {
		add(0, monthOf(m[1]), atoi(m[2]))
	}
	for _, m := range dayMonthRe.FindAllStringSubmatch(raw, -1) {
		add(0, monthOf(m[2]), atoi(m[1]))
	}
	return out
}

// nearDeadline reports the first concrete date in raw that falls within
// horizon days of today, in either direction.
func nearDeadline(raw string, today time.Time, horizon int) (string, bool) {
	if today.IsZero() {
		return "", false
	}
	for _, d := range concreteDates(raw, today) {
		days := int(d.Sub(today).Hours() / 24)
		if days <= horizon && days >= -horizon {
			return fmt.Sprintf("deadline %s (%+d days)", d.Format(time.DateOnly), days), true
		}
	}
	return "", false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
