package model

import (
	"fmt"
	"time"
)

// DateLayout is the storage format for calendar dates.
const DateLayout = "2006-01-02"

// InputDateLayout is the command-line format for dates, e.g. 12/01/19.
const InputDateLayout = "01/02/06"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a storage-format date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t in the command-line format.
func FormatDate(t time.Time) string {
	return t.Format(InputDateLayout)
}
