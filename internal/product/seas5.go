package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/filename"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
)

// secondsPerDay converts a precipitation rate in m/s to mm/day together with
// the factor 1000 for metres to millimetres.
const secondsPerDay = 3600 * 24

// SEAS5 is the ECMWF seasonal forecast of total precipitation. Every monthly
// issue fans out into one unit per leadtime month.
type SEAS5 struct {
	base
}

// LatestDate is this month: the forecast is issued on the first.
func (s *SEAS5) LatestDate(now time.Time) time.Time {
	return calendar.Monthly.Align(now)
}

func (s *SEAS5) Units(date time.Time) []pipeline.Unit {
	issued := calendar.Monthly.Align(date)
	months := calendar.MonthsInWindow(int(issued.Month()), s.cfg.LeadtimeWindow)
	units := make([]pipeline.Unit, len(months))
	for i, m := range months {
		units[i] = pipeline.LeadtimeUnit(issued, calendar.LeadtimeBetween(int(issued.Month()), m))
	}
	return units
}

// RawName follows the dissemination naming of the forecast files: issue
// month, then forecast month.
func (s *SEAS5) RawName(u pipeline.Unit) string {
	issued := int(u.Date.Month())
	return fmt.Sprintf("T8L%02d010000%02d______1.grib", issued, calendar.ValidMonthFor(issued, leadtime(u)))
}

func (s *SEAS5) ProcessedName(u pipeline.Unit) string {
	return filename.Name{
		Prefix:   "precip_em",
		Role:     filename.RoleIssued,
		Date:     u.Date,
		Leadtime: u.Leadtime,
		Ext:      "tif",
	}.Encode()
}

// FetchRaw requests the file without its extension, which the upstream
// bucket omits.
func (s *SEAS5) FetchRaw(ctx context.Context, u pipeline.Unit) ([]byte, error) {
	if u.Leadtime == nil {
		return nil, errors.New("seas5: unit has no leadtime")
	}
	return s.fetch(ctx, config.URLData{
		Date:     u.Date,
		Raw:      strings.TrimSuffix(s.RawName(u), ".grib"),
		Leadtime: *u.Leadtime,
	})
}

// Transform converts the ensemble-mean precipitation rate from m/s to mm/day
// and fills both the issued and the valid date, linked by the leadtime.
func (s *SEAS5) Transform(_ context.Context, raw []byte, u pipeline.Unit) (raster.Grid, metadata.Record, error) {
	if u.Leadtime == nil {
		return raster.Grid{}, metadata.Record{}, errors.New("seas5: unit has no leadtime")
	}
	g, err := s.decode(raw, u.Date)
	if err != nil {
		return raster.Grid{}, metadata.Record{}, err
	}
	g = g.Scale(1000 * secondsPerDay).RoundCoords(2).WithCRS(raster.CRSWGS84).AsFloat32()

	lt := *u.Leadtime
	year, month := u.Date.Year(), int(u.Date.Month())
	rec := s.record().
		SetIssued(year, month, 0).
		SetValid(calendar.ValidYearFor(month, year, lt), calendar.ValidMonthFor(month, lt), 0).
		SetLeadtime(lt)
	return g, rec, nil
}

func leadtime(u pipeline.Unit) int {
	if u.Leadtime == nil {
		return 0
	}
	return *u.Leadtime
}
