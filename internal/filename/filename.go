// Package filename maps an artifact's temporal identity (a date and whether
// that date is the issue date or the valid date) to its persisted name and
// back.
//
// Names follow the template
//
//	<prefix>_<marker><YYYY-MM-DD>[_lt<N>][<suffix>].<ext>
//
// where the marker is "i" for an issued date and "v" for a valid date, e.g.
// "precip_em_i2025-03-01_lt3.tif" or "precip_reanalysis_v2020-06-01.tif".
// Products without a role marker embed a bare date instead, which decodes as
// a valid date.
package filename

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role says which of an artifact's dates the name carries.
type Role int

const (
	// RoleNone encodes a bare date with no marker. It decodes as RoleValid.
	RoleNone Role = iota
	RoleIssued
	RoleValid
)

// Marker returns the single-character role prefix written before the date.
func (r Role) Marker() string {
	switch r {
	case RoleIssued:
		return "i"
	case RoleValid:
		return "v"
	default:
		return ""
	}
}

// String returns "issued", "valid" or "none".
func (r Role) String() string {
	switch r {
	case RoleIssued:
		return "issued"
	case RoleValid:
		return "valid"
	default:
		return "none"
	}
}

// Suffix returns the metadata field suffix for the role ("_issued" or
// "_valid"). RoleNone shares the valid suffix since bare dates decode as valid.
func (r Role) Suffix() string {
	if r == RoleIssued {
		return "_issued"
	}
	return "_valid"
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleIssued {
		return RoleValid
	}
	return RoleIssued
}

const dateLayout = time.DateOnly

// Name is the semantic identity of a persisted artifact.
type Name struct {
	Prefix string
	// Separator joins the prefix to the dated token. Defaults to "_".
	Separator string
	Role      Role
	Date      time.Time
	// Leadtime, when set, is appended as "_lt<N>".
	Leadtime *int
	// Suffix is appended verbatim after the date and leadtime, e.g. "_v05r01".
	Suffix string
	Ext    string
}

// Encode renders the name. Distinct (role, date, leadtime) tuples for the
// same prefix, suffix and extension never produce the same string.
func (n Name) Encode() string {
	sep := n.Separator
	if sep == "" {
		sep = "_"
	}

	var b strings.Builder
	b.WriteString(n.Prefix)
	if n.Prefix != "" {
		b.WriteString(sep)
	}
	b.WriteString(n.Role.Marker())
	b.WriteString(n.Date.Format(dateLayout))
	if n.Leadtime != nil {
		b.WriteString("_lt")
		b.WriteString(strconv.Itoa(*n.Leadtime))
	}
	b.WriteString(n.Suffix)
	if n.Ext != "" {
		b.WriteString(".")
		b.WriteString(strings.TrimPrefix(n.Ext, "."))
	}
	return b.String()
}

// String implements fmt.Stringer.
func (n Name) String() string { return n.Encode() }

// Leadtime returns a pointer to lt for use in Name literals.
func Leadtime(lt int) *int { return &lt }

// Decode recovers the date and role embedded in name. See Grammar for the
// patterns tried and their priority.
func Decode(name string) (time.Time, Role, error) {
	for _, p := range Grammar {
		m := p.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		date, err := time.Parse(p.layout, m[p.re.SubexpIndex("date")])
		if err != nil {
			return time.Time{}, RoleNone, &ParseError{Name: name, Pattern: p.Name, Err: err}
		}
		role := RoleValid
		if i := p.re.SubexpIndex("role"); i >= 0 && m[i] == "i" {
			role = RoleIssued
		}
		return date, role, nil
	}
	return time.Time{}, RoleNone, &ParseError{Name: name, Err: ErrNoDate}
}

// MustDecode is like Decode but panics on error. It is meant for tests and
// fixed names only.
func MustDecode(name string) (time.Time, Role) {
	d, r, err := Decode(name)
	if err != nil {
		panic(fmt.Sprintf("filename.MustDecode(%q): %v", name, err))
	}
	return d, r
}
