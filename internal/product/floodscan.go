package product

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/filename"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
)

// FloodScan is AER's daily flooded-fraction product for Africa. The upstream
// publishes a zip of the last 90 daily GeoTIFFs per band; the raw file of a
// date is that archive, and its member for the date is the grid.
type FloodScan struct {
	base
	versionTag string // e.g. "_v05r01"
}

func newFloodScan(b base) (*FloodScan, error) {
	v, err := strconv.Atoi(b.cfg.Metadata.Version)
	if err != nil {
		return nil, fmt.Errorf("floodscan: metadata version %q is not a number", b.cfg.Metadata.Version)
	}
	switch b.cfg.Band = strings.ToLower(b.cfg.Band); b.cfg.Band {
	case "sfed", "mfed":
	case "":
		b.cfg.Band = "sfed"
	default:
		return nil, fmt.Errorf("floodscan: unknown band %q (want sfed or mfed)", b.cfg.Band)
	}
	return &FloodScan{base: b, versionTag: fmt.Sprintf("_v%02dr01", v)}, nil
}

// LatestDate is yesterday.
func (s *FloodScan) LatestDate(now time.Time) time.Time {
	return calendar.Daily.Previous(now)
}

func (s *FloodScan) RawName(u pipeline.Unit) string {
	return fmt.Sprintf("aer_floodscan_%s_area_flooded_fraction_africa_90days_%s.zip", s.cfg.Band, u.Date.Format(time.DateOnly))
}

func (s *FloodScan) ProcessedName(u pipeline.Unit) string {
	return filename.Name{
		Prefix: "aer_area_300s",
		Role:   filename.RoleValid,
		Date:   u.Date,
		Suffix: s.versionTag,
		Ext:    "tif",
	}.Encode()
}

func (s *FloodScan) FetchRaw(ctx context.Context, u pipeline.Unit) ([]byte, error) {
	return s.fetch(ctx, config.URLData{Date: u.Date, Raw: s.RawName(u)})
}

func (s *FloodScan) Transform(_ context.Context, raw []byte, u pipeline.Unit) (raster.Grid, metadata.Record, error) {
	member, err := s.extract(raw, u.Date)
	if err != nil {
		return raster.Grid{}, metadata.Record{}, err
	}
	g, err := s.decode(member, u.Date)
	if err != nil {
		return raster.Grid{}, metadata.Record{}, err
	}
	g = g.WithCRS(raster.CRSWGS84).AsFloat32()
	rec := s.record().SetValid(u.Date.Year(), int(u.Date.Month()), u.Date.Day())
	return g, rec, nil
}

// MemberName is the name of the daily GeoTIFF for date inside the upstream
// archive.
func (s *FloodScan) MemberName(date time.Time) string {
	return fmt.Sprintf("aer_floodscan_%s_area_flooded_fraction_africa_%s%s.tif", s.cfg.Band, date.Format("20060102"), s.versionTag)
}

// extract returns the archive member holding date. Members are matched on
// the date in their name and the product version.
func (s *FloodScan) extract(raw []byte, date time.Time) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open floodscan archive: %w", err)
	}

	var latest string
	for _, f := range zr.File {
		base := path.Base(f.Name)
		if !strings.HasSuffix(base, s.versionTag+".tif") {
			continue
		}
		d, _, err := filename.Decode(base)
		if err != nil {
			continue
		}
		if base > latest {
			latest = base
		}
		if !d.Equal(date) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("no member of the floodscan archive matches %s (latest is %q)", date.Format(time.DateOnly), latest)
}
