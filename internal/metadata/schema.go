// Package metadata defines the attribute set every persisted artifact
// carries and the checks that keep those attributes consistent with the
// artifact's name.
package metadata

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Canonical attribute keys.
const (
	KeyUnits           = "units"
	KeyAveragingPeriod = "averaging_period"
	KeyGridResolution  = "grid_resolution"
	KeyYearValid       = "year_valid"
	KeyYearIssued      = "year_issued"
	KeyMonthValid      = "month_valid"
	KeyMonthIssued     = "month_issued"
	KeyDateValid       = "date_valid"
	KeyDateIssued      = "date_issued"
	KeyLeadtime        = "leadtime"
	KeyLeadtimeUnits   = "leadtime_units"
	KeySource          = "source"
	KeyVersion         = "version"
	KeyProduct         = "product"
	KeyDownloadDate    = "download_date"
)

// CanonicalKeys is the exact key set of a valid attribute map, sorted.
var CanonicalKeys = []string{
	KeyAveragingPeriod,
	KeyDateIssued,
	KeyDateValid,
	KeyDownloadDate,
	KeyGridResolution,
	KeyLeadtime,
	KeyLeadtimeUnits,
	KeyMonthIssued,
	KeyMonthValid,
	KeyProduct,
	KeySource,
	KeyUnits,
	KeyVersion,
	KeyYearIssued,
	KeyYearValid,
}

// Leadtime units.
const (
	UnitsMonths = "months"
	UnitsDays   = "days"
)

// Attrs is the persisted form of an artifact's metadata. An empty value
// means the field is unset.
type Attrs map[string]string

// IsSet reports whether key holds a value.
func (a Attrs) IsSet(key string) bool { return a[key] != "" }

// Int returns the integer stored under key. ok is false when the field is
// unset; err is non-nil when it is set but not an integer.
func (a Attrs) Int(key string) (v int, ok bool, err error) {
	s := a[key]
	if s == "" {
		return 0, false, nil
	}
	v, err = strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("attribute %s: %w", key, err)
	}
	return v, true, nil
}

// Keys returns the attribute keys in sorted order.
func (a Attrs) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a copy of the map.
func (a Attrs) Clone() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Defaults are the per-product fields that do not change between units.
type Defaults struct {
	Units           string  `yaml:"units"`
	AveragingPeriod string  `yaml:"averaging_period"`
	GridResolution  float64 `yaml:"grid_resolution"`
	Source          string  `yaml:"source"`
	Product         string  `yaml:"product"`
	Version         string  `yaml:"version"`
	LeadtimeUnits   string  `yaml:"leadtime_units"`
}

// Record is the typed metadata of one processed unit. Nil pointers are
// unset fields. A Record is built fresh for every unit from the product's
// Defaults so no field can leak from one unit into the next.
type Record struct {
	Defaults

	YearValid   *int
	YearIssued  *int
	MonthValid  *int
	MonthIssued *int
	DateValid   *int
	DateIssued  *int
	Leadtime    *int

	DownloadDate time.Time
}

// NewRecord starts a record for one unit.
func NewRecord(d Defaults, downloaded time.Time) Record {
	return Record{Defaults: d, DownloadDate: downloaded}
}

// Int returns a pointer to v for populating Record fields.
func Int(v int) *int { return &v }

// SetValid populates the valid-date fields. Pass day 0 for products whose
// cadence is monthly or coarser.
func (r Record) SetValid(year, month, day int) Record {
	r.YearValid, r.MonthValid = Int(year), Int(month)
	r.DateValid = nil
	if day > 0 {
		r.DateValid = Int(day)
	}
	return r
}

// SetIssued populates the issued-date fields. Pass day 0 to leave the day unset.
func (r Record) SetIssued(year, month, day int) Record {
	r.YearIssued, r.MonthIssued = Int(year), Int(month)
	r.DateIssued = nil
	if day > 0 {
		r.DateIssued = Int(day)
	}
	return r
}

// SetLeadtime records the leadtime in the product's leadtime units.
func (r Record) SetLeadtime(lt int) Record {
	r.Leadtime = Int(lt)
	return r
}

// ErrIncomplete is returned by Attrs when a leadtime is set without units.
var ErrIncomplete = errors.New("incomplete metadata record")

// Attrs converts the record into its persisted attribute map, which always
// holds exactly the canonical keys.
func (r Record) Attrs() (Attrs, error) {
	if r.Leadtime != nil && r.LeadtimeUnits == "" {
		return nil, fmt.Errorf("%w: leadtime %d has no units", ErrIncomplete, *r.Leadtime)
	}

	resolution := ""
	if r.GridResolution != 0 {
		resolution = strconv.FormatFloat(r.GridResolution, 'f', -1, 64)
	}
	download := ""
	if !r.DownloadDate.IsZero() {
		download = r.DownloadDate.Format(time.DateOnly)
	}

	return Attrs{
		KeyUnits:           r.Units,
		KeyAveragingPeriod: r.AveragingPeriod,
		KeyGridResolution:  resolution,
		KeyYearValid:       formatInt(r.YearValid),
		KeyYearIssued:      formatInt(r.YearIssued),
		KeyMonthValid:      formatInt(r.MonthValid),
		KeyMonthIssued:     formatInt(r.MonthIssued),
		KeyDateValid:       formatInt(r.DateValid),
		KeyDateIssued:      formatInt(r.DateIssued),
		KeyLeadtime:        formatInt(r.Leadtime),
		KeyLeadtimeUnits:   leadtimeUnits(r),
		KeySource:          r.Source,
		KeyVersion:         r.Version,
		KeyProduct:         r.Product,
		KeyDownloadDate:    download,
	}, nil
}

// leadtimeUnits only persists the units when a leadtime is present, so valid
// artifacts of forecast products don't claim a linkage they lack.
func leadtimeUnits(r Record) string {
	if r.Leadtime == nil {
		return ""
	}
	return r.LeadtimeUnits
}

func formatInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
