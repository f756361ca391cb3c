package metadata

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/couchcryptid/raster-pipeline/internal/filename"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
)

func sampleGeometry() raster.Geometry {
	return raster.Geometry{
		Lat:   []float64{1, 1.0 / 3, -1.0 / 3, -1},
		Lon:   []float64{-1, -1.0 / 3, 1.0 / 3, 1},
		CRS:   raster.CRSWGS84,
		DType: raster.Float32,
	}
}

// attrsWith returns a canonical attribute map with every field unset except
// the download date, overridden by fields.
func attrsWith(fields map[string]string) Attrs {
	a := make(Attrs, len(CanonicalKeys))
	for _, k := range CanonicalKeys {
		a[k] = ""
	}
	a[KeyDownloadDate] = "2025-04-01"
	for k, v := range fields {
		a[k] = v
	}
	return a
}

func discardValidator() *Validator {
	return NewValidator(GlobalBounds, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func bufferValidator(buf *bytes.Buffer) *Validator {
	return NewValidator(GlobalBounds, slog.New(slog.NewTextHandler(buf, nil)))
}

func TestValidate_Passes(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		attrs Attrs
	}{
		{
			name: "reanalysis valid date",
			file: "precip_reanalysis_v2020-06-01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearValid: "2020", KeyMonthValid: "6",
			}),
		},
		{
			name: "daily product with day",
			file: "aer_area_300s_v2025-01-02_v05r01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearValid: "2025", KeyMonthValid: "1", KeyDateValid: "2",
			}),
		},
		{
			name: "forecast with leadtime",
			file: "precip_em_i2025-03-01_lt3.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "3",
				KeyYearValid: "2025", KeyMonthValid: "6",
				KeyLeadtime: "3", KeyLeadtimeUnits: UnitsMonths,
			}),
		},
		{
			name: "forecast crossing the year",
			file: "precip_em_i2025-11-01_lt3.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "11",
				KeyYearValid: "2026", KeyMonthValid: "2",
				KeyLeadtime: "3", KeyLeadtimeUnits: UnitsMonths,
			}),
		},
		{
			name: "issued only with zero leadtime",
			file: "precip_em_i2025-03-01_lt0.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "3",
				KeyLeadtime: "0", KeyLeadtimeUnits: UnitsMonths,
			}),
		},
		{
			name: "zero leadtime with both dates equal",
			file: "precip_em_i2025-03-01_lt0.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "3",
				KeyYearValid: "2025", KeyMonthValid: "3",
				KeyLeadtime: "0", KeyLeadtimeUnits: UnitsMonths,
			}),
		},
		{
			name: "bare date decodes as valid",
			file: "imerg-daily-late-2025-01-01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearValid: "2025", KeyMonthValid: "1", KeyDateValid: "1",
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := discardValidator().Validate(sampleGeometry(), tt.file, tt.attrs)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestValidate_RoleFailures(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		attrs   Attrs
		message string
	}{
		{
			name: "daily month mismatch",
			file: "imerg-daily-late-2025-01-01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearValid: "2025", KeyMonthValid: "9", KeyDateValid: "1",
			}),
			message: "date does not match filename imerg-daily-late-2025-01-01.tif: day 1 month 9 year 2025",
		},
		{
			name: "issued month mismatch",
			file: "precip_em_i2025-01-01_lt0.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "3",
				KeyYearValid: "2025", KeyMonthValid: "6",
			}),
			message: "date does not match filename precip_em_i2025-01-01_lt0.tif: day 1 month 3 year 2025",
		},
		{
			name: "valid year mismatch",
			file: "precip_reanalysis_v2025-05-01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "1",
				KeyYearValid: "2024", KeyMonthValid: "1", KeyDateValid: "1",
			}),
			message: "date does not match filename precip_reanalysis_v2025-05-01.tif: day 1 month 1 year 2024",
		},
		{
			name: "unset day defaults to first",
			file: "aer_area_300s_v2025-01-02_v05r01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearValid: "2025", KeyMonthValid: "1",
			}),
			message: "date does not match filename aer_area_300s_v2025-01-02_v05r01.tif: day 1 month 1 year 2025",
		},
		{
			name: "issued year set on valid artifact",
			file: "aer_area_300s_v2025-01-01_v05r01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025",
				KeyYearValid:  "2025", KeyMonthValid: "1",
			}),
			message: "all _issued fields should be unset for valid date",
		},
		{
			name: "valid fields set on issued artifact without leadtime",
			file: "precip_em_i2025-01-01_lt0.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "1",
				KeyYearValid: "2025", KeyMonthValid: "6",
			}),
			message: "all _valid fields should be unset for issued date",
		},
		{
			name: "both groups set on reanalysis",
			file: "precip_reanalysis_v2025-01-01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "1",
				KeyYearValid: "2025", KeyMonthValid: "1", KeyDateValid: "1",
			}),
			message: "all _issued fields should be unset for valid date",
		},
		{
			name: "live role unset",
			file: "precip_reanalysis_v2025-01-01.tif",
			attrs: attrsWith(map[string]string{
				KeyYearIssued: "2025", KeyMonthIssued: "1",
			}),
			message: "year_valid and month_valid must be set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ok, err := bufferValidator(&buf).Validate(sampleGeometry(), tt.file, tt.attrs)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Contains(t, buf.String(), tt.message)
		})
	}
}

func TestValidate_GeometryFailures(t *testing.T) {
	attrs := attrsWith(map[string]string{KeyYearValid: "2020", KeyMonthValid: "6"})
	const file = "precip_reanalysis_v2020-06-01.tif"

	tests := []struct {
		name   string
		mutate func(*raster.Geometry)
		rule   string
	}{
		{"north of bounds", func(g *raster.Geometry) { g.Lat[0] = 90.5 }, RuleExtent},
		{"south of bounds", func(g *raster.Geometry) { g.Lat[3] = -91 }, RuleExtent},
		{"west of bounds", func(g *raster.Geometry) { g.Lon[0] = -180.5 }, RuleExtent},
		{"east of bounds", func(g *raster.Geometry) { g.Lon[3] = 181 }, RuleExtent},
		{"empty axes", func(g *raster.Geometry) { g.Lat = nil }, RuleExtent},
		{"wrong crs", func(g *raster.Geometry) { g.CRS = "EPSG:3857" }, RuleCRS},
		{"wrong dtype", func(g *raster.Geometry) { g.DType = raster.Float64 }, RuleDType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := sampleGeometry()
			tt.mutate(&g)

			err := discardValidator().Check(g, file, attrs)
			var se *SchemaError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.rule, se.Rule)

			ok, err := discardValidator().Validate(g, file, attrs)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestValidate_ConfiguredBounds(t *testing.T) {
	v := NewValidator(Bounds{North: 38, South: 29, East: 75, West: 60}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	attrs := attrsWith(map[string]string{KeyYearValid: "2020", KeyMonthValid: "6"})

	inside := raster.Geometry{Lat: []float64{38, 29}, Lon: []float64{60, 75}, CRS: raster.CRSWGS84, DType: raster.Float32}
	ok, err := v.Validate(inside, "precip_reanalysis_v2020-06-01.tif", attrs)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Validate(sampleGeometry(), "precip_reanalysis_v2020-06-01.tif", attrs)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_MissingVersionKey(t *testing.T) {
	attrs := attrsWith(map[string]string{KeyYearValid: "2020", KeyMonthValid: "6"})
	delete(attrs, KeyVersion)

	var buf bytes.Buffer
	ok, err := bufferValidator(&buf).Validate(sampleGeometry(), "precip_reanalysis_v2020-06-01.tif", attrs)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "metadata has 14 fields, want 15")
}

func TestValidate_NonCanonicalKey(t *testing.T) {
	attrs := attrsWith(map[string]string{KeyYearValid: "2020", KeyMonthValid: "6"})
	delete(attrs, KeyVersion)
	attrs["revision"] = "7"

	err := discardValidator().Check(sampleGeometry(), "precip_reanalysis_v2020-06-01.tif", attrs)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, RuleFields, se.Rule)
	assert.Contains(t, se.Reason, "revision")
}

func TestValidate_FieldSetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attrs := attrsWith(map[string]string{KeyYearValid: "2020", KeyMonthValid: "6"})
		removed := rapid.SliceOfDistinct(rapid.SampledFrom(CanonicalKeys), rapid.ID[string]).Draw(t, "removed")
		extra := rapid.SliceOfDistinct(rapid.StringMatching(`x_[a-z]{1,8}`), rapid.ID[string]).Draw(t, "extra")
		if len(removed) == 0 && len(extra) == 0 {
			t.Skip("unchanged key set")
		}
		for _, k := range removed {
			delete(attrs, k)
		}
		for _, k := range extra {
			attrs[k] = "1"
		}

		err := discardValidator().Check(sampleGeometry(), "precip_reanalysis_v2020-06-01.tif", attrs)
		var se *SchemaError
		if !errors.As(err, &se) || se.Rule != RuleFields {
			t.Fatalf("want fields violation for removed=%v extra=%v, got %v", removed, extra, err)
		}
	})
}

func TestValidate_MutualExclusionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, rapid.IntRange(0, 15000).Draw(t, "day"))
		role := rapid.SampledFrom([]filename.Role{filename.RoleIssued, filename.RoleValid}).Draw(t, "role")
		other := rapid.IntRange(1, 12).Draw(t, "otherMonth")

		fields := map[string]string{}
		live := roleKeys(role)
		fields[live[0]] = strconv.Itoa(d.Year())
		fields[live[1]] = strconv.Itoa(int(d.Month()))
		fields[live[2]] = strconv.Itoa(d.Day())
		dead := roleKeys(role.Other())
		fields[dead[0]] = strconv.Itoa(d.Year())
		fields[dead[1]] = strconv.Itoa(other)

		name := filename.Name{Prefix: "precip", Role: role, Date: d, Ext: "tif"}.Encode()
		ok, err := discardValidator().Validate(sampleGeometry(), name, attrsWith(fields))
		if err != nil || ok {
			t.Fatalf("Validate(%s) = %v, %v; want false, nil", name, ok, err)
		}
	})
}

func TestValidate_LeadtimeErrorsPropagate(t *testing.T) {
	attrs := attrsWith(map[string]string{
		KeyYearIssued: "2025", KeyMonthIssued: "3",
		KeyYearValid: "2025", KeyMonthValid: "5",
		KeyLeadtime: "3", KeyLeadtimeUnits: UnitsMonths,
	})

	ok, err := discardValidator().Validate(sampleGeometry(), "precip_em_i2025-03-01_lt3.tif", attrs)
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrLeadtimeMismatch)
	assert.Contains(t, err.Error(), "Leadtime mismatch")
}

func TestValidate_ZeroLeadtimeStillChecksLinkedDates(t *testing.T) {
	attrs := attrsWith(map[string]string{
		KeyYearIssued: "2025", KeyMonthIssued: "3",
		KeyYearValid: "2025", KeyMonthValid: "4",
		KeyLeadtime: "0", KeyLeadtimeUnits: UnitsMonths,
	})

	ok, err := discardValidator().Validate(sampleGeometry(), "precip_em_i2025-03-01_lt0.tif", attrs)
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrLeadtimeMismatch)
}

func TestValidate_ParseErrorPropagates(t *testing.T) {
	attrs := attrsWith(map[string]string{KeyYearValid: "2020", KeyMonthValid: "6"})

	ok, err := discardValidator().Validate(sampleGeometry(), "precip_reanalysis.tif", attrs)
	assert.False(t, ok)
	var pe *filename.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestValidate_NonIntegerAttribute(t *testing.T) {
	attrs := attrsWith(map[string]string{KeyYearValid: "2020", KeyMonthValid: "June"})

	err := discardValidator().Check(sampleGeometry(), "precip_reanalysis_v2020-06-01.tif", attrs)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, RuleAttrType, se.Rule)
}

