package core

import (
	"fmt"
	"strings"
	"time"
)

// Period identifies a calendar month, rendered as YYYY-MM.
type Period struct {
	Year  int
	Month time.Month
}

// CurrentPeriod returns the period containing now.
func CurrentPeriod(now time.Time) Period {
	return DateOf(now).Period()
}

// ParsePeriod parses a YYYY-MM key.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Bounds returns the half-open range [start, end) covering the month.
func (p Period) Bounds() (start, end Date) {
	start = NewDate(p.Year, p.Month, 1)
	end = Date{Time: start.AddDate(0, 1, 0)}
	return start, end
}

// Contains reports whether d falls inside the month.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.Year && d.Time.Month() == p.Month
}

// Days lists every calendar day of the month.
func (p Period) Days() []Date {
	start, end := p.Bounds()
	var out []Date
	for d := start; d.Before(end.Time); d = (Date{Time: d.AddDate(0, 0, 1)}) {
		out = append(out, d)
	}
	return out
}

func (p Period) Prev() Period {
	start, _ := p.Bounds()
	return Date{Time: start.AddDate(0, -1, 0)}.Period()
}

func (p Period) Next() Period {
	_, end := p.Bounds()
	return end.Period()
}

// Label renders the period in Spanish, e.g. "agosto 2025".
func (p Period) Label() string {
	if p.Month < time.January || p.Month > time.December {
		return p.String()
	}
	return fmt.Sprintf("%s %d", monthNames[p.Month-1], p.Year)
}

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}
