package product

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/filename"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

// --- helpers ---

type recordingFetcher struct {
	urls []string
	data []byte
	err  error
}

func (f *recordingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.data, f.err
}

func catalogProduct(t *testing.T, name string) config.Product {
	t.Helper()
	c, err := config.DefaultCatalog()
	require.NoError(t, err)
	p, err := c.Lookup(name)
	require.NoError(t, err)
	return p
}

func newSource(t *testing.T, name string, mode storage.Mode, f Fetcher) pipeline.Source {
	t.Helper()
	if f == nil {
		f = &recordingFetcher{}
	}
	src, err := New(catalogProduct(t, name), mode, f, raster.EnvelopeDecoder{})
	require.NoError(t, err)
	return src
}

func rawEnvelope(t *testing.T, lat, lon []float64, stamp *time.Time) []byte {
	t.Helper()
	data := make([]float32, len(lat)*len(lon))
	for i := range data {
		data[i] = float32(i + 1)
	}
	b, err := raster.EncodeArtifact(raster.Grid{
		Geometry: raster.Geometry{Lat: lat, Lon: lon, DType: raster.Float64},
		Data:     data,
		Time:     stamp,
	}, nil)
	require.NoError(t, err)
	return b
}

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time { return calendar.Date(y, m, d) }

// --- ERA5 ---

func TestERA5_Names(t *testing.T) {
	src := newSource(t, "era5", storage.ModeLocal, nil)
	u := pipeline.Unit{Date: date(2020, 3, 1)}

	assert.Equal(t, "tp_reanalysis_monthly_2020_03.grib", src.RawName(u))
	assert.Equal(t, "precip_reanalysis_v2020-03-01.tif", src.ProcessedName(u))
	assert.Equal(t, date(2025, 9, 1), src.LatestDate(time.Date(2025, 10, 18, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, []pipeline.Unit{{Date: date(2020, 3, 1)}}, src.Units(date(2020, 3, 17)))

	d := src.Descriptor()
	assert.Equal(t, "era5", d.Product)
	assert.Equal(t, calendar.Monthly, d.Frequency)
	assert.Equal(t, "era5/monthly/raw/tp_reanalysis_monthly_2020_03.grib", d.RawKey(src.RawName(u)))
}

func TestERA5_FetchRaw(t *testing.T) {
	f := &recordingFetcher{data: []byte("raw")}
	src := newSource(t, "era5", storage.ModeDev, f)

	raw, err := src.FetchRaw(context.Background(), pipeline.Unit{Date: date(2020, 3, 1)})
	require.NoError(t, err)
	assert.Equal(t, "raw", string(raw))
	require.Len(t, f.urls, 1)
	assert.Contains(t, f.urls[0], "/2020/tp_reanalysis_monthly_2020_03.grib")
}

func TestERA5_Transform(t *testing.T) {
	src := newSource(t, "era5", storage.ModeLocal, nil)
	raw := rawEnvelope(t, []float64{90, 0, -90}, []float64{0, 90, 180, 270}, ptr(date(2020, 3, 1)))

	g, rec, err := src.Transform(context.Background(), raw, pipeline.Unit{Date: date(2020, 3, 1)})
	require.NoError(t, err)

	assert.Equal(t, []float64{-90, 0, 90, 180}, g.Lon)
	assert.Equal(t, raster.CRSWGS84, g.CRS)
	assert.Equal(t, raster.Float32, g.DType)
	// Column 270 (sample 4) moved to the front and was scaled to millimetres.
	assert.InDelta(t, 4000, g.At(0, 0), 1e-3)
	assert.InDelta(t, 1000, g.At(0, 1), 1e-3)

	assert.Equal(t, 2020, *rec.YearValid)
	assert.Equal(t, 3, *rec.MonthValid)
	assert.Nil(t, rec.DateValid)
	assert.Nil(t, rec.YearIssued)
	assert.Equal(t, "ERA5 Reanalysis", rec.Product)
}

func TestERA5_TransformDateMismatch(t *testing.T) {
	src := newSource(t, "era5", storage.ModeLocal, nil)
	raw := rawEnvelope(t, []float64{1, 0}, []float64{0, 1}, ptr(date(2020, 2, 1)))

	_, _, err := src.Transform(context.Background(), raw, pipeline.Unit{Date: date(2020, 3, 1)})
	require.ErrorIs(t, err, ErrDateMismatch)
	assert.Contains(t, err.Error(), "date mismatch: 2020-03-01 does not match dataset time 2020-02-01")
}

func TestERA5_TransformBadRaw(t *testing.T) {
	src := newSource(t, "era5", storage.ModeLocal, nil)
	_, _, err := src.Transform(context.Background(), []byte("GRIB"), pipeline.Unit{Date: date(2020, 3, 1)})
	require.ErrorIs(t, err, raster.ErrNotEnvelope)
}

// --- SEAS5 ---

func TestSEAS5_Units(t *testing.T) {
	src := newSource(t, "seas5", storage.ModeLocal, nil)

	units := src.Units(date(2025, 11, 20))
	require.Len(t, units, 7)
	for i, u := range units {
		assert.Equal(t, date(2025, 11, 1), u.Date)
		require.NotNil(t, u.Leadtime)
		assert.Equal(t, i, *u.Leadtime)
	}
}

func TestSEAS5_Names(t *testing.T) {
	src := newSource(t, "seas5", storage.ModeLocal, nil)
	u := pipeline.LeadtimeUnit(date(2025, 11, 1), 2)

	assert.Equal(t, "T8L1101000001______1.grib", src.RawName(u))
	assert.Equal(t, "precip_em_i2025-11-01_lt2.tif", src.ProcessedName(u))
	assert.Equal(t, date(2025, 10, 1), src.LatestDate(time.Date(2025, 10, 18, 0, 0, 0, 0, time.UTC)))

	d, role := filename.MustDecode(src.ProcessedName(u))
	assert.Equal(t, date(2025, 11, 1), d)
	assert.Equal(t, filename.RoleIssued, role)
}

func TestSEAS5_FetchRawUsesModeBounds(t *testing.T) {
	tests := []struct {
		mode storage.Mode
		area string
	}{
		{storage.ModeLocal, "area=38/60/29/75"},
		{storage.ModeProd, "area=90/-180/-90/180"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			f := &recordingFetcher{}
			src := newSource(t, "seas5", tt.mode, f)
			_, err := src.FetchRaw(context.Background(), pipeline.LeadtimeUnit(date(2025, 3, 1), 0))
			require.NoError(t, err)
			require.Len(t, f.urls, 1)
			assert.Contains(t, f.urls[0], "/T8L0301000003______1?")
			assert.Contains(t, f.urls[0], tt.area)
		})
	}
}

func TestSEAS5_Transform(t *testing.T) {
	src := newSource(t, "seas5", storage.ModeLocal, nil)
	raw := rawEnvelope(t, []float64{30.0000001, 34, 37.6}, []float64{60.4, 64.8, 74.8}, ptr(date(2025, 11, 1)))

	g, rec, err := src.Transform(context.Background(), raw, pipeline.LeadtimeUnit(date(2025, 11, 1), 2))
	require.NoError(t, err)

	assert.Equal(t, []float64{30, 34, 37.6}, g.Lat, "coordinates are rounded")
	assert.InDelta(t, 86_400_000, g.Data[0], 1, "m/s converted to mm/day")

	attrs, err := rec.Attrs()
	require.NoError(t, err)
	assert.Equal(t, "2025", attrs[metadata.KeyYearIssued])
	assert.Equal(t, "11", attrs[metadata.KeyMonthIssued])
	assert.Equal(t, "2026", attrs[metadata.KeyYearValid])
	assert.Equal(t, "1", attrs[metadata.KeyMonthValid])
	assert.Equal(t, "2", attrs[metadata.KeyLeadtime])
	assert.Equal(t, metadata.UnitsMonths, attrs[metadata.KeyLeadtimeUnits])
	require.NoError(t, metadata.CheckLeadtime(attrs))
}

func TestSEAS5_TransformDateMismatch(t *testing.T) {
	src := newSource(t, "seas5", storage.ModeLocal, nil)
	raw := rawEnvelope(t, []float64{30, 34}, []float64{61, 62}, ptr(date(2025, 10, 1)))

	_, _, err := src.Transform(context.Background(), raw, pipeline.LeadtimeUnit(date(2025, 11, 1), 0))
	require.ErrorIs(t, err, ErrDateMismatch)
}

func TestSEAS5_RequiresLeadtime(t *testing.T) {
	src := newSource(t, "seas5", storage.ModeLocal, nil)
	_, err := src.FetchRaw(context.Background(), pipeline.Unit{Date: date(2025, 11, 1)})
	require.Error(t, err)
	_, _, err = src.Transform(context.Background(), nil, pipeline.Unit{Date: date(2025, 11, 1)})
	require.Error(t, err)
}

// --- IMERG ---

func TestIMERG_Names(t *testing.T) {
	src := newSource(t, "imerg", storage.ModeLocal, nil)
	u := pipeline.Unit{Date: date(2024, 5, 3)}

	assert.Equal(t, "3B-DAY-L.MS.MRG.3IMERG.20240503-S000000-E235959.V07B.nc4", src.RawName(u))
	assert.Equal(t, "imerg-daily-late-2024-05-03.tif", src.ProcessedName(u))
	assert.Equal(t, date(2025, 10, 17), src.LatestDate(time.Date(2025, 10, 18, 0, 30, 0, 0, time.UTC)))

	d, role := filename.MustDecode(src.ProcessedName(u))
	assert.Equal(t, date(2024, 5, 3), d)
	assert.Equal(t, filename.RoleValid, role)
}

func TestIMERG_EarlyRun(t *testing.T) {
	p := catalogProduct(t, "imerg")
	p.Run = "early"
	f := &recordingFetcher{}
	src, err := New(p, storage.ModeLocal, f, raster.EnvelopeDecoder{})
	require.NoError(t, err)

	u := pipeline.Unit{Date: date(2024, 5, 3)}
	assert.Equal(t, "imerg-daily-early-2024-05-03.tif", src.ProcessedName(u))
	assert.Contains(t, src.RawName(u), "3B-DAY-E.")

	_, err = src.FetchRaw(context.Background(), u)
	require.NoError(t, err)
	assert.Contains(t, f.urls[0], "GPM_3IMERGDE.07/2024/05/")

	p.Run = "final"
	_, err = New(p, storage.ModeLocal, f, raster.EnvelopeDecoder{})
	require.Error(t, err)
}

func TestIMERG_Transform(t *testing.T) {
	src := newSource(t, "imerg", storage.ModeLocal, nil)
	raw := rawEnvelope(t, []float64{-89.95, 89.95}, []float64{-179.95, 179.95}, nil)

	g, rec, err := src.Transform(context.Background(), raw, pipeline.Unit{Date: date(2024, 5, 3)})
	require.NoError(t, err)
	assert.Equal(t, raster.Float32, g.DType)
	assert.Equal(t, 3, *rec.DateValid)
	assert.Equal(t, "7", rec.Version)
}

// --- FloodScan ---

func floodscanArchive(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFloodScan_Names(t *testing.T) {
	src := newSource(t, "floodscan", storage.ModeLocal, nil)
	u := pipeline.Unit{Date: date(2024, 5, 3)}

	assert.Equal(t, "aer_floodscan_sfed_area_flooded_fraction_africa_90days_2024-05-03.zip", src.RawName(u))
	assert.Equal(t, "aer_area_300s_v2024-05-03_v05r01.tif", src.ProcessedName(u))
	assert.Equal(t, date(1998, 1, 12), src.Descriptor().Earliest)
	assert.Equal(t, "aer_floodscan_sfed_area_flooded_fraction_africa_20240503_v05r01.tif",
		src.(*FloodScan).MemberName(u.Date))
}

func TestFloodScan_TransformPicksDate(t *testing.T) {
	src := newSource(t, "floodscan", storage.ModeLocal, nil)
	lat, lon := []float64{37, 0, -34}, []float64{-17, 0, 51}
	want := rawEnvelope(t, lat, lon, nil)
	other := rawEnvelope(t, lat[:2], lon, nil)

	raw := floodscanArchive(t, map[string][]byte{
		"90days/aer_floodscan_sfed_area_flooded_fraction_africa_20240502_v05r01.tif": other,
		"90days/aer_floodscan_sfed_area_flooded_fraction_africa_20240503_v05r01.tif": want,
		"90days/README.txt": []byte("readme"),
	})

	g, rec, err := src.Transform(context.Background(), raw, pipeline.Unit{Date: date(2024, 5, 3)})
	require.NoError(t, err)
	assert.Len(t, g.Lat, 3)
	assert.Equal(t, 2024, *rec.YearValid)
	assert.Equal(t, 5, *rec.MonthValid)
	assert.Equal(t, 3, *rec.DateValid)
	assert.Equal(t, "FloodScan", rec.Product)
}

func TestFloodScan_TransformMissingDate(t *testing.T) {
	src := newSource(t, "floodscan", storage.ModeLocal, nil)
	raw := floodscanArchive(t, map[string][]byte{
		"aer_floodscan_sfed_area_flooded_fraction_africa_20240502_v05r01.tif": []byte("x"),
	})
	_, _, err := src.Transform(context.Background(), raw, pipeline.Unit{Date: date(2024, 5, 3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-05-03")

	_, _, err = src.Transform(context.Background(), []byte("not a zip"), pipeline.Unit{Date: date(2024, 5, 3)})
	require.Error(t, err)
}

func TestFloodScan_BandAndVersion(t *testing.T) {
	p := catalogProduct(t, "floodscan")
	p.Band = "MFED"
	src, err := New(p, storage.ModeLocal, &recordingFetcher{}, raster.EnvelopeDecoder{})
	require.NoError(t, err)
	assert.Contains(t, src.RawName(pipeline.Unit{Date: date(2024, 5, 3)}), "_mfed_")

	p.Band = "both"
	_, err = New(p, storage.ModeLocal, &recordingFetcher{}, raster.EnvelopeDecoder{})
	require.Error(t, err)

	p = catalogProduct(t, "floodscan")
	p.Metadata.Version = "five"
	_, err = New(p, storage.ModeLocal, &recordingFetcher{}, raster.EnvelopeDecoder{})
	require.Error(t, err)
}

// --- all sources ---

func TestNew_Unknown(t *testing.T) {
	p := catalogProduct(t, "era5")
	p.Name = "chirps"
	_, err := New(p, storage.ModeLocal, &recordingFetcher{}, raster.EnvelopeDecoder{})
	require.Error(t, err)
}

func TestFetchErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	src := newSource(t, "imerg", storage.ModeLocal, &recordingFetcher{err: boom})
	_, err := src.FetchRaw(context.Background(), pipeline.Unit{Date: date(2024, 5, 3)})
	require.ErrorIs(t, err, boom)
}

// Every source's output, once oriented and stamped, passes validation
// against its own processed name.
func TestSources_ProduceValidArtifacts(t *testing.T) {
	stamp := time.Date(2025, 10, 18, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		product string
		unit    pipeline.Unit
		raw     func(t *testing.T) []byte
	}{
		{"era5", pipeline.Unit{Date: date(2020, 3, 1)}, func(t *testing.T) []byte {
			return rawEnvelope(t, []float64{-90, 90}, []float64{0, 180, 270}, nil)
		}},
		{"seas5", pipeline.LeadtimeUnit(date(2025, 11, 1), 6), func(t *testing.T) []byte {
			return rawEnvelope(t, []float64{29.2, 37.6}, []float64{60.4, 74.8}, nil)
		}},
		{"imerg", pipeline.Unit{Date: date(2024, 2, 29)}, func(t *testing.T) []byte {
			return rawEnvelope(t, []float64{-89.95, 89.95}, []float64{-179.95, 179.95}, nil)
		}},
		{"floodscan", pipeline.Unit{Date: date(2024, 5, 3)}, func(t *testing.T) []byte {
			return floodscanArchive(t, map[string][]byte{
				"aer_floodscan_sfed_area_flooded_fraction_africa_20240503_v05r01.tif": rawEnvelope(t, []float64{-34, 37}, []float64{-17, 51}, nil),
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			p := catalogProduct(t, tt.product)
			src, err := New(p, storage.ModeLocal, &recordingFetcher{}, raster.EnvelopeDecoder{})
			require.NoError(t, err)

			g, rec, err := src.Transform(context.Background(), tt.raw(t), tt.unit)
			require.NoError(t, err)
			g = raster.NormalizeOrientation(g)
			rec.DownloadDate = stamp
			attrs, err := rec.Attrs()
			require.NoError(t, err)

			v := metadata.NewValidator(p.BoundsFor(storage.ModeLocal), slog.New(slog.NewTextHandler(io.Discard, nil)))
			require.NoError(t, v.Check(g.Geometry, src.ProcessedName(tt.unit), attrs))
		})
	}
}
