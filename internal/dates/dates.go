// Package dates renders timestamps in the journal's in-world calendar: Polish
// month names and a fixed year offset.
package dates

import (
	"fmt"
	"strings"
	"time"
)

const YearOffset = 942

var monthsPolish = [12]string{
	"stycznia",
	"lutego",
	"marca",
	"kwietnia",
	"maja",
	"czerwca",
	"lipca",
	"sierpnia",
	"wrzesnia",
	"pazdziernika",
	"listopada",
	"grudnia",
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Parse accepts the ISO-like formats used in frontmatter and in the database.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Transform shifts t by YearOffset years. February 29 becomes February 28
// when the target year is not a leap year.
func Transform(t time.Time) time.Time {
	year := t.Year() + YearOffset
	day := t.Day()
	if t.Month() == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, t.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func FormatPolish(t time.Time, withTime bool) string {
	tr := Transform(t)
	out := fmt.Sprintf("%d %s %d", tr.Day(), monthsPolish[tr.Month()-1], tr.Year())
	if withTime {
		out += fmt.Sprintf(", %02d:%02d", tr.Hour(), tr.Minute())
	}
	return out
}

// FormatPolishString formats a stored timestamp. Unparsable input is returned
// unchanged.
func FormatPolishString(s string, withTime bool) string {
	t, err := Parse(s)
	if err != nil {
		return s
	}
	return FormatPolish(t, withTime)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
