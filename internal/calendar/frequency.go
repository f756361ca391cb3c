package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Frequency is the publication cadence of a data product.
type Frequency string

const (
	Daily   Frequency = "daily"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// ErrUnknownFrequency is returned for a cadence name outside daily, monthly
// and yearly.
var ErrUnknownFrequency = errors.New("unknown frequency")

// ParseFrequency converts a cadence name into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case Daily, Monthly, Yearly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
	}
}

// Align truncates t to the start of its cadence period: the day itself for
// daily, the first of the month for monthly, January 1st for yearly.
func (f Frequency) Align(t time.Time) time.Time {
	switch f {
	case Monthly:
		return Date(t.Year(), t.Month(), 1)
	case Yearly:
		return Date(t.Year(), time.January, 1)
	default:
		return Truncate(t)
	}
}

// Next returns the start of the period following the one containing t.
func (f Frequency) Next(t time.Time) time.Time {
	t = f.Align(t)
	switch f {
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Yearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Previous returns the start of the period preceding the one containing t.
func (f Frequency) Previous(t time.Time) time.Time {
	t = f.Align(t)
	switch f {
	case Monthly:
		return t.AddDate(0, -1, 0)
	case Yearly:
		return t.AddDate(-1, 0, 0)
	default:
		return t.AddDate(0, 0, -1)
	}
}

// Enumerate lists the cadence-aligned dates in [start, end] in ascending
// order. For monthly and yearly cadences a start that is not aligned begins
// at the next period boundary, so every returned date lies inside the range.
func (f Frequency) Enumerate(start, end time.Time) []time.Time {
	start, end = Truncate(start), Truncate(end)
	cur := f.Align(start)
	if cur.Before(start) {
		cur = f.Next(cur)
	}

	var dates []time.Time
	for !cur.After(end) {
		dates = append(dates, cur)
		cur = f.Next(cur)
	}
	return dates
}
