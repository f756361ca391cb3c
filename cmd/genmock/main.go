// Command genmock writes mock raw files for a product into storage, so the
// pipeline can run end to end with --use-cache and no upstream access.
// Raw files are envelopes holding a small grid over the product's bounds, in
// the units and conventions of the real provider (ERA5 in metres on a 0..360
// longitude axis, SEAS5 as a rate in m/s, IMERG with south-first rows,
// FloodScan as a zip of daily members).
//
// Usage:
//
//	go run ./cmd/genmock -product seas5 -start 2024-01-01 -end 2024-03-01
package main

import (
	"archive/zip"
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
	"github.com/couchcryptid/raster-pipeline/internal/product"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

// gridSize is the number of rows and columns of every mock grid.
const gridSize = 8

// floodscanDays is how many daily members each mock FloodScan archive holds.
const floodscanDays = 3

// magnitude is the typical sample value per product, in provider units.
var magnitude = map[string]float64{
	"era5":      3e-3,
	"seas5":     3e-8,
	"imerg":     5,
	"floodscan": 0.05,
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	name := flag.String("product", "", "product to generate raw files for")
	mode := flag.String("mode", string(storage.ModeLocal), "storage mode: local, dev or prod")
	start := flag.String("start", "", "first date (YYYY-MM-DD)")
	end := flag.String("end", "", "last date (YYYY-MM-DD)")
	flag.Parse()

	if *name == "" || *start == "" || *end == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -product, -start, -end")
	}
	from, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	to, err := time.Parse(time.DateOnly, *end)
	if err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}
	m, err := storage.ParseMode(*mode)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	prod, err := cfg.Catalog.Lookup(*name)
	if err != nil {
		return err
	}
	sc, err := cfg.StorageFor(m, prod.Container)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, sc)
	if err != nil {
		return err
	}
	src, err := product.New(prod, m, nil, raster.EnvelopeDecoder{})
	if err != nil {
		return err
	}

	dates := prod.Frequency.Enumerate(from, to)
	n, err := generate(ctx, store, src, prod.BoundsFor(m), dates)
	if err != nil {
		return err
	}
	log.Printf("wrote %d raw files for %s to %s", n, prod.Name, store.Location())
	return nil
}

// generate writes one raw file per unit of every date and returns how many
// were written.
func generate(ctx context.Context, store storage.Backend, src pipeline.Source, b metadata.Bounds, dates []time.Time) (int, error) {
	d := src.Descriptor()
	n := 0
	for _, date := range dates {
		for _, u := range src.Units(date) {
			raw, err := mockRaw(src, b, u)
			if err != nil {
				return n, fmt.Errorf("%s: %w", u, err)
			}
			key := d.RawKey(src.RawName(u))
			if err := store.Write(ctx, key, raw, storage.WriteOptions{Tier: storage.TierCool}); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func mockRaw(src pipeline.Source, b metadata.Bounds, u pipeline.Unit) ([]byte, error) {
	name := src.Descriptor().Product
	if fs, ok := src.(*product.FloodScan); ok {
		return mockFloodScanArchive(fs, b, u.Date)
	}

	seed := u.Date.Unix()
	if u.Leadtime != nil {
		seed += int64(*u.Leadtime)
	}
	g := mockGrid(b, magnitude[name], seed)
	stamp := u.Date
	g.Time = &stamp

	switch name {
	case "era5":
		for i, lon := range g.Lon {
			if lon < 0 {
				g.Lon[i] = lon + 360
			}
		}
	case "imerg":
		g = southFirst(g)
	}
	return raster.EncodeArtifact(g, nil)
}

func mockFloodScanArchive(fs *product.FloodScan, b metadata.Bounds, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := range floodscanDays {
		day := date.AddDate(0, 0, -i)
		member, err := raster.EncodeArtifact(mockGrid(b, magnitude["floodscan"], day.Unix()), nil)
		if err != nil {
			return nil, err
		}
		w, err := zw.Create(fs.MemberName(day))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(member); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mockGrid returns a north-first float64 grid whose cell centres lie inside b.
func mockGrid(b metadata.Bounds, scale float64, seed int64) raster.Grid {
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	latStep := (b.North - b.South) / gridSize
	lonStep := (b.East - b.West) / gridSize

	g := raster.Grid{
		Geometry: raster.Geometry{
			Lat:   make([]float64, gridSize),
			Lon:   make([]float64, gridSize),
			DType: raster.Float64,
		},
		Data: make([]float32, gridSize*gridSize),
	}
	for i := range gridSize {
		g.Lat[i] = b.North - latStep*(float64(i)+0.5)
		g.Lon[i] = b.West + lonStep*(float64(i)+0.5)
	}
	for i := range g.Data {
		g.Data[i] = float32(scale * rng.Float64() * 2)
	}
	return g
}

func southFirst(g raster.Grid) raster.Grid {
	rows, cols := g.Rows(), g.Cols()
	lat := make([]float64, rows)
	data := make([]float32, len(g.Data))
	for r := range rows {
		lat[r] = g.Lat[rows-1-r]
		copy(data[r*cols:(r+1)*cols], g.Data[(rows-1-r)*cols:(rows-r)*cols])
	}
	g.Lat, g.Data = lat, data
	return g
}
