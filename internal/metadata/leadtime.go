package metadata

import (
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
)

var (
	// ErrLeadtimeMismatch is matched by a LeadtimeError.
	ErrLeadtimeMismatch = errors.New("leadtime mismatch")
	// ErrUnsupportedUnit is returned for leadtime units other than months or days.
	ErrUnsupportedUnit = errors.New("unsupported leadtime_units")
)

// LeadtimeError reports a declared leadtime that disagrees with the distance
// between the issued and valid dates.
type LeadtimeError struct {
	Declared int
	Computed int
	Units    string
	Issued   time.Time
	Valid    time.Time
}

func (e *LeadtimeError) Error() string {
	return fmt.Sprintf("Leadtime mismatch: declared %d %s, computed %d %s between issued %s and valid %s",
		e.Declared, e.Units, e.Computed, e.Units,
		e.Issued.Format(time.DateOnly), e.Valid.Format(time.DateOnly))
}

func (e *LeadtimeError) Is(target error) bool { return target == ErrLeadtimeMismatch }

// CheckLeadtime verifies that the leadtime attribute equals the calendar
// distance from the issued date to the valid date. Month leadtimes compare
// year-month only; day leadtimes compare full dates. An unset day counts as
// the first of the month.
func CheckLeadtime(a Attrs) error {
	units := a[KeyLeadtimeUnits]
	if units != UnitsMonths && units != UnitsDays {
		return fmt.Errorf("%w: %q", ErrUnsupportedUnit, units)
	}

	declared, ok, err := a.Int(KeyLeadtime)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: leadtime is unset", ErrIncomplete)
	}

	issued, err := dateFor(a, KeyYearIssued, KeyMonthIssued, KeyDateIssued)
	if err != nil {
		return fmt.Errorf("issued date: %w", err)
	}
	valid, err := dateFor(a, KeyYearValid, KeyMonthValid, KeyDateValid)
	if err != nil {
		return fmt.Errorf("valid date: %w", err)
	}

	var computed int
	switch units {
	case UnitsMonths:
		computed = calendar.MonthsBetween(issued, valid)
	case UnitsDays:
		computed = calendar.DaysBetween(issued, valid)
	}

	if computed != declared {
		return &LeadtimeError{
			Declared: declared,
			Computed: computed,
			Units:    units,
			Issued:   issued,
			Valid:    valid,
		}
	}
	return nil
}

// dateFor assembles a date from year/month/day attributes. Year and month
// are required; an unset day defaults to 1.
func dateFor(a Attrs, yearKey, monthKey, dayKey string) (time.Time, error) {
	year, ok, err := a.Int(yearKey)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s is unset", ErrIncomplete, yearKey)
	}
	month, ok, err := a.Int(monthKey)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s is unset", ErrIncomplete, monthKey)
	}
	day, ok, err := a.Int(dayKey)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		day = 1
	}

	d := calendar.Date(year, time.Month(month), day)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d is not a calendar date", ErrIncomplete, year, month, day)
	}
	return d, nil
}
