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

// IMERG is NASA's daily precipitation estimate from the GPM constellation,
// in its late or early processing run.
type IMERG struct {
	base
	runCode string
}

func newIMERG(b base) (*IMERG, error) {
	switch b.cfg.Run {
	case "late", "":
		b.cfg.Run = "late"
		return &IMERG{base: b, runCode: "L"}, nil
	case "early":
		return &IMERG{base: b, runCode: "E"}, nil
	default:
		return nil, fmt.Errorf("imerg: unknown run %q (want late or early)", b.cfg.Run)
	}
}

// LatestDate is yesterday.
func (s *IMERG) LatestDate(now time.Time) time.Time {
	return calendar.Daily.Previous(now)
}

func (s *IMERG) RawName(u pipeline.Unit) string {
	return fmt.Sprintf("3B-DAY-%s.MS.MRG.3IMERG.%s-S000000-E235959.V07B.nc4", s.runCode, u.Date.Format("20060102"))
}

func (s *IMERG) ProcessedName(u pipeline.Unit) string {
	return filename.Name{
		Prefix:    "imerg-daily-" + s.cfg.Run,
		Separator: "-",
		Date:      u.Date,
		Ext:       "tif",
	}.Encode()
}

func (s *IMERG) FetchRaw(ctx context.Context, u pipeline.Unit) ([]byte, error) {
	return s.fetch(ctx, config.URLData{Date: u.Date, Raw: s.RawName(u)})
}

// Transform tags the daily grid. Its lat/lon axes arrive south-first and are
// flipped by the pipeline's orientation normalization.
func (s *IMERG) Transform(_ context.Context, raw []byte, u pipeline.Unit) (raster.Grid, metadata.Record, error) {
	g, err := s.decode(raw, u.Date)
	if err != nil {
		return raster.Grid{}, metadata.Record{}, err
	}
	g = g.WithCRS(raster.CRSWGS84).AsFloat32()
	rec := s.record().SetValid(u.Date.Year(), int(u.Date.Month()), u.Date.Day())
	return g, rec, nil
}
