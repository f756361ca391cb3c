package pipeline

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
)

// Unit is the smallest independently persisted piece of work: one date, and
// for forecast products one leadtime of the forecast issued on that date.
type Unit struct {
	Date     time.Time
	Leadtime *int
}

// LeadtimeUnit returns a unit for a forecast issued on date.
func LeadtimeUnit(date time.Time, lt int) Unit {
	return Unit{Date: date, Leadtime: &lt}
}

func (u Unit) String() string {
	s := u.Date.Format(time.DateOnly)
	if u.Leadtime != nil {
		s += " lt" + strconv.Itoa(*u.Leadtime)
	}
	return s
}

// Descriptor is the static description of a data source.
type Descriptor struct {
	Product       string
	Frequency     calendar.Frequency
	RawPath       string
	ProcessedPath string
	// Earliest is the first date the product was published. Zero means unknown.
	Earliest time.Time
}

// RawKey is the storage key of a raw file name.
func (d Descriptor) RawKey(name string) string { return path.Join(d.RawPath, name) }

// ProcessedKey is the storage key of a processed artifact name.
func (d Descriptor) ProcessedKey(name string) string { return path.Join(d.ProcessedPath, name) }

// Source is one upstream data product.
type Source interface {
	Descriptor() Descriptor
	// Units expands a cadence-aligned date into the units to process for it.
	Units(date time.Time) []Unit
	// LatestDate is the most recent date expected to be published at now.
	LatestDate(now time.Time) time.Time
	RawName(u Unit) string
	ProcessedName(u Unit) string
	FetchRaw(ctx context.Context, u Unit) ([]byte, error)
	// Transform decodes raw data into a grid and its metadata. The record's
	// download date is stamped by the pipeline.
	Transform(ctx context.Context, raw []byte, u Unit) (raster.Grid, metadata.Record, error)
}

// Notifier announces persisted artifacts to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, e ArtifactEvent) error
}

// ArtifactEvent describes a processed artifact that was just persisted.
type ArtifactEvent struct {
	RunID       string    `json:"run_id"`
	Product     string    `json:"product"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	Leadtime    *int      `json:"leadtime,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

func (e ArtifactEvent) String() string {
	return fmt.Sprintf("%s %s", e.Product, e.Name)
}
