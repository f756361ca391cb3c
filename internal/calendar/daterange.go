package calendar

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is returned when a requested date range is reversed, falls
// outside the accepted bounds, or is empty.
var ErrInvalidRange = errors.New("invalid date range")

type rangeBounds struct {
	min, max time.Time
}

// RangeOption restricts the dates DateRange accepts.
type RangeOption func(*rangeBounds)

// NotBefore rejects ranges starting before t, e.g. the first date a product
// was published.
func NotBefore(t time.Time) RangeOption {
	return func(b *rangeBounds) { b.min = Truncate(t) }
}

// NotAfter rejects ranges ending after t.
func NotAfter(t time.Time) RangeOption {
	return func(b *rangeBounds) { b.max = Truncate(t) }
}

// DateRange returns every day from start to end inclusive.
func DateRange(start, end time.Time, opts ...RangeOption) ([]time.Time, error) {
	var b rangeBounds
	for _, opt := range opts {
		opt(&b)
	}

	start, end = Truncate(start), Truncate(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: end date %s is before start date %s",
			ErrInvalidRange, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if !b.min.IsZero() && start.Before(b.min) {
		return nil, fmt.Errorf("%w: start date %s is before the minimum accepted date %s",
			ErrInvalidRange, start.Format(time.DateOnly), b.min.Format(time.DateOnly))
	}
	if !b.max.IsZero() && end.After(b.max) {
		return nil, fmt.Errorf("%w: end date %s is after the maximum accepted date %s",
			ErrInvalidRange, end.Format(time.DateOnly), b.max.Format(time.DateOnly))
	}

	dates := Daily.Enumerate(start, end)
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: range is empty", ErrInvalidRange)
	}
	return dates, nil
}
