// Package product implements the data sources the pipeline knows how to
// ingest. Each source owns its naming templates, its update cadence and the
// unit conversions applied to the provider's grids.
package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

// ErrDateMismatch is returned when a decoded grid is stamped with a date
// other than the one requested.
var ErrDateMismatch = errors.New("date mismatch")

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// New returns the source named by p.Name.
func New(p config.Product, mode storage.Mode, f Fetcher, dec raster.Decoder) (pipeline.Source, error) {
	b := base{cfg: p, mode: mode, fetcher: f, decoder: dec}
	switch p.Name {
	case "era5":
		return &ERA5{base: b}, nil
	case "seas5":
		if p.LeadtimeWindow <= 0 {
			return nil, errors.New("seas5: leadtime_window must be positive")
		}
		return &SEAS5{base: b}, nil
	case "imerg":
		return newIMERG(b)
	case "floodscan":
		return newFloodScan(b)
	default:
		return nil, fmt.Errorf("no source implementation for product %q", p.Name)
	}
}

// base holds what every source shares: its catalog entry and collaborators.
type base struct {
	cfg     config.Product
	mode    storage.Mode
	fetcher Fetcher
	decoder raster.Decoder
}

func (b *base) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		Product:       b.cfg.Name,
		Frequency:     b.cfg.Frequency,
		RawPath:       b.cfg.RawPath,
		ProcessedPath: b.cfg.ProcessedPath,
		Earliest:      b.cfg.EarliestDate(),
	}
}

// Units is one unit per date, which suits every source without leadtimes.
func (b *base) Units(date time.Time) []pipeline.Unit {
	return []pipeline.Unit{{Date: b.cfg.Frequency.Align(date)}}
}

func (b *base) fetch(ctx context.Context, d config.URLData) ([]byte, error) {
	d.Run = b.cfg.Run
	d.Bounds = b.cfg.BoundsFor(b.mode)
	url, err := b.cfg.URL(d)
	if err != nil {
		return nil, err
	}
	return b.fetcher.Fetch(ctx, url)
}

func (b *base) decode(raw []byte, want time.Time) (raster.Grid, error) {
	g, err := b.decoder.Decode(raw)
	if err != nil {
		return raster.Grid{}, fmt.Errorf("decode %s raw data: %w", b.cfg.Name, err)
	}
	if err := checkGridDate(g, want, b.cfg.Frequency); err != nil {
		return raster.Grid{}, err
	}
	return g, nil
}

func (b *base) record() metadata.Record {
	return metadata.NewRecord(b.cfg.Metadata, time.Time{})
}

// checkGridDate compares the grid's own time stamp, when it carries one,
// with the requested date at the product's cadence.
func checkGridDate(g raster.Grid, want time.Time, f calendar.Frequency) error {
	if g.Time == nil {
		return nil
	}
	if got := f.Align(*g.Time); !got.Equal(f.Align(want)) {
		return fmt.Errorf("%w: %s does not match dataset time %s",
			ErrDateMismatch, f.Align(want).Format(time.DateOnly), g.Time.Format(time.DateOnly))
	}
	return nil
}
