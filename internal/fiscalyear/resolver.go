// Package fiscalyear maps calendar dates onto financial years that start on a
// configured month, e.g. April to March.
package fiscalyear

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfiguration = errors.New("invalid_configuration")

// Year identifies a financial year by the calendar year it starts in.
type Year struct {
	StartYear  int
	ResetMonth time.Month
}

// Resolve returns the two-digit label of the financial year containing date.
// With resetMonth 4, 2026-02-10 resolves to "25" and 2026-04-01 to "26".
func Resolve(date time.Time, resetMonth int) (string, error) {
	fy, err := Of(date, resetMonth)
	if err != nil {
		return "", err
	}
	return fy.Label(), nil
}

// Of returns the financial year containing date.
func Of(date time.Time, resetMonth int) (Year, error) {
	if err := ValidateResetMonth(resetMonth); err != nil {
		return Year{}, err
	}

	start := date.Year()
	if int(date.Month()) < resetMonth {
		start--
	}
	return Year{StartYear: start, ResetMonth: time.Month(resetMonth)}, nil
}

func ValidateResetMonth(resetMonth int) error {
	if resetMonth < 1 || resetMonth > 12 {
		return fmt.Errorf("%w: reset month %d outside 1-12", ErrInvalidConfiguration, resetMonth)
	}
	return nil
}

// Label is the two-digit start year.
func (y Year) Label() string {
	return fmt.Sprintf("%02d", mod100(y.StartYear))
}

// FullLabel renders "2025-26" for years that span two calendar years and
// "2025" when the year starts in January.
func (y Year) FullLabel() string {
	if y.ResetMonth == time.January {
		return fmt.Sprintf("%04d", y.StartYear)
	}
	return fmt.Sprintf("%04d-%02d", y.StartYear, mod100(y.StartYear+1))
}

// Bounds returns the first instant of the year and the first instant of the
// next one, in UTC.
func (y Year) Bounds() (time.Time, time.Time) {
	start := time.Date(y.StartYear, y.ResetMonth, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

func (y Year) Contains(t time.Time) bool {
	start, end := y.Bounds()
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}

func mod100(year int) int {
	m := year % 100
	if m < 0 {
		m += 100
	}
	return m
}
