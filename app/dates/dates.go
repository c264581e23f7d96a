// Package dates normalizes loose calendar-date input to the strict
// YYYY-MM-DD form used everywhere in storage, and converts strict dates to
// comparable UTC instants for sorting. Today is always computed in local
// time, not UTC, to avoid off-by-one-day results near midnight UTC.
package dates

import (
	"regexp"
	"strconv"
	"time"
)

const layout = "2006-01-02"

var (
	strictRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	looseRe  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
)

// TodayLocal returns the current calendar date in the local timezone as
// strict YYYY-MM-DD.
func TodayLocal() string {
	return time.Now().Format(layout)
}

// IsValid reports if the value is a strict YYYY-MM-DD string naming a real
// calendar date. Shape-correct but impossible dates like 2025-02-31 fail.
func IsValid(value string) bool {
	m := strictRe.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return calendarOK(year, month, day)
}

// Normalize accepts YEAR-M-D through YEAR-MM-DD input, zero-pads month and
// day, and validates calendar correctness. Invalid input of any kind gives
// an empty string, never an error or a silently-corrected date.
func Normalize(value string) string {
	m := looseRe.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if !calendarOK(year, month, day) {
		return ""
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Format(layout)
}

// ToUTCMillis maps a strict date to its UTC-midnight instant in epoch
// milliseconds. Invalid input maps to 0 so malformed records sort to the end
// instead of breaking a comparator.
func ToUTCMillis(value string) int64 {
	if !IsValid(value) {
		return 0
	}
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// calendarOK checks the date is real by round-tripping through time.Date,
// which normalizes overflow (Feb 31 becomes Mar 2/3).
func calendarOK(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}
