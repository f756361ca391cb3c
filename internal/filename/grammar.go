package filename

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNoDate is wrapped by ParseError when no pattern of the grammar matches.
var ErrNoDate = errors.New("no date pattern found")

// Pattern is one rule of the decoding grammar. The "date" subexpression holds
// the date token parsed with Layout; an optional "role" subexpression holds
// the role marker.
type Pattern struct {
	Name   string
	re     *regexp.Regexp
	layout string
}

// Grammar lists the date patterns Decode tries, highest priority first.
// A role-marked ISO date wins over any bare date elsewhere in the name, so
// "aer_area_300s_v2025-01-02_v05r01.tif" decodes from "v2025-01-02" and not
// from the version token.
var Grammar = []Pattern{
	{
		Name:   "role-marked ISO date",
		re:     regexp.MustCompile(`(?P<role>[iv])(?P<date>\d{4}-\d{2}-\d{2})`),
		layout: dateLayout,
	},
	{
		Name:   "bare ISO date",
		re:     regexp.MustCompile(`(?P<date>\d{4}-\d{2}-\d{2})`),
		layout: dateLayout,
	},
	{
		Name:   "compact date",
		re:     regexp.MustCompile(`(?P<date>\d{8})`),
		layout: "20060102",
	},
}

// ParseError reports a name from which no date could be recovered.
type ParseError struct {
	Name    string
	Pattern string // matching pattern, empty when none matched
	Err     error
}

func (e *ParseError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("cannot get date from %q (%s): %v", e.Name, e.Pattern, e.Err)
	}
	return fmt.Sprintf("cannot get date from %q: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
