package task

import (
	"time"

	"gcp-billing-cost/domain/plugin"
)

const (
	MonthLayout = "2006-01"
	DayLayout   = "2006-01-02"
)

// ParsePeriod accepts YYYY-MM or YYYY-MM-DD and returns midnight UTC of that day
// (the first of the month for YYYY-MM).
func ParsePeriod(s string) (time.Time, error) {
	for _, layout := range []string{DayLayout, MonthLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, plugin.InvalidParameterType("start", "YYYY-MM or YYYY-MM-DD")
}

// Midnight strips the time of day and the zone, keeping the wall-clock date.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns midnight of the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns midnight of the last day of t's month.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

// Months lists the first day of every month from start's month through end's month, inclusive.
func Months(start, end time.Time) []time.Time {
	var out []time.Time
	last := MonthStart(end)
	for m := MonthStart(start); !m.After(last); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out
}
