// Package coverage compares the dates a product should have been published
// for against the artifacts that actually exist, to drive backfill.
package coverage

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/filename"
)

// ErrEmptyWindow is returned when a window expects no dates at all, which is
// always a configuration mistake by the caller.
var ErrEmptyWindow = errors.New("coverage window has no expected dates")

// Window is a date range at a publication cadence.
type Window struct {
	Start     time.Time
	End       time.Time
	Frequency calendar.Frequency
}

// ExpectedDates enumerates the cadence-aligned dates in [Start, End].
func (w Window) ExpectedDates() []time.Time {
	return w.Frequency.Enumerate(w.Start, w.End)
}

// String renders the window for logs.
func (w Window) String() string {
	return fmt.Sprintf("%s..%s %s", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly), w.Frequency)
}

// DateSet is a set of calendar dates.
type DateSet map[time.Time]struct{}

// NewDateSet builds a set from the given dates, truncated to calendar days.
func NewDateSet(dates ...time.Time) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

// Add inserts d, truncated to its calendar day.
func (s DateSet) Add(d time.Time) { s[calendar.Truncate(d)] = struct{}{} }

// Has reports whether d is in the set.
func (s DateSet) Has(d time.Time) bool {
	_, ok := s[calendar.Truncate(d)]
	return ok
}

// Sorted returns the dates in ascending order.
func (s DateSet) Sorted() []time.Time {
	out := make([]time.Time, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

// Result is the outcome of a coverage check.
type Result struct {
	Window      Window
	Expected    int
	Present     int
	Missing     []time.Time
	CoveragePct float64
}

// Complete reports whether nothing is missing.
func (r Result) Complete() bool { return len(r.Missing) == 0 }

// ComputeMissing returns the expected dates absent from existing, in
// ascending order, and the share of expected dates that are present.
// Existing dates outside the window do not count towards coverage.
func ComputeMissing(w Window, existing DateSet) (Result, error) {
	expected := w.ExpectedDates()
	if len(expected) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyWindow, w)
	}

	res := Result{Window: w, Expected: len(expected)}
	for _, d := range expected {
		if existing.Has(d) {
			res.Present++
			continue
		}
		res.Missing = append(res.Missing, d)
	}
	res.CoveragePct = 100 * float64(res.Present) / float64(res.Expected)
	return res, nil
}

// DatesFromNames decodes each artifact name and aligns its date to the
// cadence, so the many leadtime artifacts of one forecast issue collapse to
// a single date. A name without a recoverable date is an error: skipping it
// would silently under-report coverage.
func DatesFromNames(names []string, f calendar.Frequency) (DateSet, error) {
	s := make(DateSet, len(names))
	for _, n := range names {
		d, _, err := filename.Decode(n)
		if err != nil {
			return nil, err
		}
		s.Add(f.Align(d))
	}
	return s, nil
}
