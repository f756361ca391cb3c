package product

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/filename"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
)

// ERA5 is the ECMWF monthly-mean total precipitation reanalysis.
type ERA5 struct {
	base
}

// LatestDate is last month: a month is published once it is complete.
func (s *ERA5) LatestDate(now time.Time) time.Time {
	return calendar.Monthly.Previous(now)
}

func (s *ERA5) RawName(u pipeline.Unit) string {
	return fmt.Sprintf("tp_reanalysis_monthly_%d_%02d.grib", u.Date.Year(), int(u.Date.Month()))
}

func (s *ERA5) ProcessedName(u pipeline.Unit) string {
	return filename.Name{Prefix: "precip_reanalysis", Role: filename.RoleValid, Date: u.Date, Ext: "tif"}.Encode()
}

func (s *ERA5) FetchRaw(ctx context.Context, u pipeline.Unit) ([]byte, error) {
	return s.fetch(ctx, config.URLData{Date: u.Date, Raw: s.RawName(u)})
}

// Transform converts total precipitation from metres to millimetres and
// moves longitudes from 0..360 to -180..180.
func (s *ERA5) Transform(_ context.Context, raw []byte, u pipeline.Unit) (raster.Grid, metadata.Record, error) {
	g, err := s.decode(raw, u.Date)
	if err != nil {
		return raster.Grid{}, metadata.Record{}, err
	}
	g = raster.ShiftLongitude(g).Scale(1000).WithCRS(raster.CRSWGS84).AsFloat32()
	rec := s.record().SetValid(u.Date.Year(), int(u.Date.Month()), 0)
	return g, rec, nil
}
