package metadata

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/couchcryptid/raster-pipeline/internal/filename"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
)

// Bounds is the geographic extent an artifact must fall within.
type Bounds struct {
	North float64 `yaml:"north"`
	South float64 `yaml:"south"`
	East  float64 `yaml:"east"`
	West  float64 `yaml:"west"`
}

// GlobalBounds covers the whole globe.
var GlobalBounds = Bounds{North: 90, South: -90, East: 180, West: -180}

// ErrSchema is matched by every SchemaError.
var ErrSchema = errors.New("schema violation")

// SchemaError describes why an artifact failed a shape or attribute check.
type SchemaError struct {
	Rule   string
	Reason string
}

func (e *SchemaError) Error() string { return fmt.Sprintf("%s: %s", e.Rule, e.Reason) }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

func schemaErr(rule, format string, args ...any) error {
	return &SchemaError{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Rule names reported in SchemaError.Rule.
const (
	RuleExtent   = "extent"
	RuleCRS      = "crs"
	RuleDType    = "dtype"
	RuleFields   = "fields"
	RuleRole     = "role"
	RuleAttrType = "attribute"
)

// Validator checks an artifact's geometry and attributes against its name.
type Validator struct {
	bounds Bounds
	logger *slog.Logger
}

// NewValidator creates a Validator for artifacts inside the given bounds.
func NewValidator(bounds Bounds, logger *slog.Logger) *Validator {
	return &Validator{bounds: bounds, logger: logger}
}

// Validate reports whether the artifact passes every check. Schema
// violations return false with the reason logged. A filename without a
// recoverable date and an inconsistent leadtime are returned as errors
// instead, since they point at a defect rather than bad data.
func (v *Validator) Validate(g raster.Geometry, name string, a Attrs) (bool, error) {
	err := v.Check(g, name, a)
	if err == nil {
		return true, nil
	}

	var se *SchemaError
	if errors.As(err, &se) {
		v.logger.Error("artifact failed validation",
			"name", name,
			"rule", se.Rule,
			"reason", se.Reason,
		)
		return false, nil
	}
	return false, err
}

// Check runs the same checks as Validate and returns the first failure:
// a *SchemaError, a *filename.ParseError, a *LeadtimeError or
// ErrUnsupportedUnit.
func (v *Validator) Check(g raster.Geometry, name string, a Attrs) error {
	if err := v.checkExtent(g); err != nil {
		return err
	}
	if g.CRS != raster.CRSWGS84 {
		return schemaErr(RuleCRS, "CRS is %q, want %q", g.CRS, raster.CRSWGS84)
	}
	if g.DType != raster.Float32 {
		return schemaErr(RuleDType, "data type is %q, want %q", g.DType, raster.Float32)
	}
	if err := checkFieldSet(a); err != nil {
		return err
	}
	if err := checkRoles(name, a); err != nil {
		return err
	}
	if a.IsSet(KeyLeadtime) && !unlinkedZero(a) {
		return CheckLeadtime(a)
	}
	return nil
}

// checkExtent expects north-first rows and west-first columns, which
// raster.NormalizeOrientation guarantees.
func (v *Validator) checkExtent(g raster.Geometry) error {
	if len(g.Lat) == 0 || len(g.Lon) == 0 {
		return schemaErr(RuleExtent, "grid has no coordinates (%d lat, %d lon)", len(g.Lat), len(g.Lon))
	}
	lat0, latN := g.Lat[0], g.Lat[len(g.Lat)-1]
	lon0, lonN := g.Lon[0], g.Lon[len(g.Lon)-1]
	if lat0 > v.bounds.North || latN < v.bounds.South || lon0 < v.bounds.West || lonN > v.bounds.East {
		return schemaErr(RuleExtent,
			"coordinate range lat [%g, %g] lon [%g, %g] is outside north %g south %g west %g east %g",
			lat0, latN, lon0, lonN, v.bounds.North, v.bounds.South, v.bounds.West, v.bounds.East)
	}
	return nil
}

func checkFieldSet(a Attrs) error {
	if len(a) != len(CanonicalKeys) {
		return schemaErr(RuleFields, "metadata has %d fields, want %d: %v", len(a), len(CanonicalKeys), a.Keys())
	}
	if keys := a.Keys(); !slices.Equal(keys, CanonicalKeys) {
		return schemaErr(RuleFields, "metadata fields %v differ from canonical fields %v", keys, CanonicalKeys)
	}
	return nil
}

// checkRoles compares the date fields of the role encoded in the name with
// the name's date, and requires the other role's fields to be unset unless a
// leadtime links the two dates.
func checkRoles(name string, a Attrs) error {
	date, role, err := filename.Decode(name)
	if err != nil {
		return err
	}

	live := roleKeys(role)
	year, yearOK, err := a.Int(live[0])
	if err != nil {
		return schemaErr(RuleAttrType, "%v", err)
	}
	month, monthOK, err := a.Int(live[1])
	if err != nil {
		return schemaErr(RuleAttrType, "%v", err)
	}
	day, dayOK, err := a.Int(live[2])
	if err != nil {
		return schemaErr(RuleAttrType, "%v", err)
	}
	if !yearOK || !monthOK {
		return schemaErr(RuleRole, "year%s and month%s must be set for %s date %s in filename %s",
			role.Suffix(), role.Suffix(), role, date.Format("2006-01-02"), name)
	}
	if !dayOK {
		day = 1
	}
	if year != date.Year() || month != int(date.Month()) || day != date.Day() {
		return schemaErr(RuleRole, "date does not match filename %s: day %d month %d year %d, filename date %s",
			name, day, month, year, date.Format("2006-01-02"))
	}

	if linked(a) {
		return nil
	}
	for _, k := range roleKeys(role.Other()) {
		if a.IsSet(k) {
			return schemaErr(RuleRole, "all %s fields should be unset for %s date in filename %s, %s is %q",
				role.Other().Suffix(), role, name, k, a[k])
		}
	}
	return nil
}

// linked reports whether the attributes declare a leadtime tying the issued
// date to the valid date, the one case where both groups may be set.
func linked(a Attrs) bool {
	return a.IsSet(KeyLeadtime) && a.IsSet(KeyLeadtimeUnits) && !unlinkedZero(a)
}

// unlinkedZero reports a zero leadtime on a record carrying only one date
// group. A zero leadtime links nothing, so it is neither checked nor lets
// the other group be set.
func unlinkedZero(a Attrs) bool {
	lt, ok, err := a.Int(KeyLeadtime)
	if err != nil || !ok || lt != 0 {
		return false
	}
	return !groupSet(a, filename.RoleIssued) || !groupSet(a, filename.RoleValid)
}

func groupSet(a Attrs, r filename.Role) bool {
	for _, k := range roleKeys(r) {
		if a.IsSet(k) {
			return true
		}
	}
	return false
}

func roleKeys(r filename.Role) [3]string {
	if r == filename.RoleIssued {
		return [3]string{KeyYearIssued, KeyMonthIssued, KeyDateIssued}
	}
	return [3]string{KeyYearValid, KeyMonthValid, KeyDateValid}
}
