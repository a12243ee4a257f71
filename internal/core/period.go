package core

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// isoMillis is the layout used for range bounds in the record store: UTC
// with millisecond precision, matching what the mobile app writes to createdAt.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// Period is one calendar month in a configured time zone.
type Period struct {
	Year  int
	Month time.Month
	// Start and End are inclusive UTC instants.
	Start time.Time
	End   time.Time
	Label string
}

// ResolvePreviousMonth returns the calendar month before now, evaluated in loc.
func ResolvePreviousMonth(now time.Time, loc *time.Location) Period {
	local := now.In(locationOrUTC(loc))
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, local.Location())
	prev := first.AddDate(0, -1, 0)
	return monthPeriod(prev.Year(), prev.Month(), local.Location())
}

// ResolveMonth returns the calendar month containing now, evaluated in loc.
func ResolveMonth(now time.Time, loc *time.Location) Period {
	local := now.In(locationOrUTC(loc))
	return monthPeriod(local.Year(), local.Month(), local.Location())
}

// MonthOf returns the given month in loc.
func MonthOf(year int, month int, loc *time.Location) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	return monthPeriod(year, time.Month(month), locationOrUTC(loc)), nil
}

// ParsePeriodKey parses a "YYYY-MM" key back into a period in loc.
func ParsePeriodKey(key string, loc *time.Location) (Period, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("parse period key %q: %w", key, err)
	}
	return MonthOf(t.Year(), int(t.Month()), loc)
}

func monthPeriod(year int, month time.Month, loc *time.Location) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return Period{
		Year:  year,
		Month: month,
		Start: start.UTC(),
		End:   end.UTC(),
		Label: MonthLabel(year, month),
	}
}

// MonthLabel returns the capitalized Spanish month name and year, e.g. "Enero 2024".
func MonthLabel(year int, month time.Month) string {
	// A Caser keeps state between calls, so each label gets its own.
	title := cases.Title(language.Spanish)
	return fmt.Sprintf("%s %d", title.String(spanishMonths[month-1]), year)
}

// Key identifies the period for idempotency checks, e.g. "2024-01".
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) StartISO() string {
	return FormatISO(p.Start)
}

func (p Period) EndISO() string {
	return FormatISO(p.End)
}

// FormatISO renders t the way createdAt is stored: UTC with milliseconds,
// e.g. "2024-01-01T08:00:00.000Z". Strings in this form sort by time.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// Contains reports whether t falls within the inclusive bounds.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Previous returns the month before p in loc.
func (p Period) Previous(loc *time.Location) Period {
	first := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, locationOrUTC(loc))
	prev := first.AddDate(0, -1, 0)
	return monthPeriod(prev.Year(), prev.Month(), first.Location())
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
