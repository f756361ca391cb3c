// Package calendar implements the month and day arithmetic that links a
// forecast's issue date to the date it is valid for, plus the cadence
// enumeration used by coverage checks.
//
// Months are 1-indexed (1 = January). Month arithmetic wraps at 12 with an
// implicit year rollover: a valid month smaller than its issue month is
// taken to fall in the following year.
package calendar

import "time"

// LeadtimeBetween returns the distance in months from issuedMonth forward to
// validMonth. The valid month is assumed to be in the same year as the issue
// month or the next one, so the result is always in [0, 11].
func LeadtimeBetween(issuedMonth, validMonth int) int {
	if validMonth < issuedMonth {
		validMonth += 12
	}
	return validMonth - issuedMonth
}

// MonthsInWindow returns windowSize consecutive months starting at
// startMonth, wrapping after December: MonthsInWindow(12, 3) is [12 1 2].
func MonthsInWindow(startMonth, windowSize int) []int {
	months := make([]int, 0, max(windowSize, 0))
	for i := 0; i < windowSize; i++ {
		months = append(months, (startMonth+i-1)%12+1)
	}
	return months
}

// ValidMonthFor is the inverse of LeadtimeBetween: the month a forecast issued
// in issuedMonth describes at the given leadtime. Leadtime 0 is the issue month.
func ValidMonthFor(issuedMonth, leadtime int) int {
	return (issuedMonth+leadtime-1)%12 + 1
}

// ValidYearFor returns the year of the month described by a forecast issued
// in issuedMonth/issuedYear at the given leadtime in months.
func ValidYearFor(issuedMonth, issuedYear, leadtime int) int {
	return issuedYear + (issuedMonth+leadtime-1)/12
}

// MonthsBetween returns the signed number of calendar months from a to b,
// ignoring the day of month.
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// DaysBetween returns the signed number of whole days from a to b, comparing
// calendar dates only.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

// Truncate drops the clock part of t and returns the calendar date at UTC
// midnight.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date is shorthand for a UTC midnight date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
