// Package raster holds the in-memory grid produced by decoding a provider
// file, the normalizations applied to it before persistence, and the
// envelope format an artifact is written in.
//
// Grids are plate carrée (EPSG:4326): Lat holds row coordinates and Lon
// column coordinates, and Data is row-major with len(Lat)*len(Lon) samples.
package raster

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// CRSWGS84 is the only coordinate reference system artifacts are written in.
const CRSWGS84 = "EPSG:4326"

// DType names the sample type of a grid.
type DType string

const (
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// Geometry describes the spatial frame and sample type of a grid.
type Geometry struct {
	Lat   []float64 `json:"lat"`
	Lon   []float64 `json:"lon"`
	CRS   string    `json:"crs"`
	DType DType     `json:"dtype"`
}

// Grid is a single 2-D raster band.
type Grid struct {
	Geometry
	Data []float32
	// Time is the timestamp carried by the source file, when it has one.
	Time *time.Time
}

// ErrShape is returned when a grid's data length disagrees with its axes.
var ErrShape = errors.New("grid shape mismatch")

// Rows returns the number of latitude rows.
func (g Grid) Rows() int { return len(g.Lat) }

// Cols returns the number of longitude columns.
func (g Grid) Cols() int { return len(g.Lon) }

// CheckShape verifies that the data matches the axes.
func (g Grid) CheckShape() error {
	if want := g.Rows() * g.Cols(); len(g.Data) != want {
		return fmt.Errorf("%w: %d samples for %dx%d grid", ErrShape, len(g.Data), g.Rows(), g.Cols())
	}
	return nil
}

// At returns the sample at row r, column c.
func (g Grid) At(r, c int) float32 { return g.Data[r*g.Cols()+c] }

// Scale multiplies every sample by f, e.g. to convert metres to millimetres.
func (g Grid) Scale(f float64) Grid {
	out := g.clone()
	for i, v := range out.Data {
		out.Data[i] = float32(float64(v) * f)
	}
	return out
}

// WithCRS returns the grid tagged with the given reference system.
func (g Grid) WithCRS(crs string) Grid {
	out := g.clone()
	out.CRS = crs
	return out
}

// AsFloat32 marks the grid for float32 output. Samples are held as float32
// in memory, so only the declared type changes.
func (g Grid) AsFloat32() Grid {
	out := g.clone()
	out.DType = Float32
	return out
}

func (g Grid) clone() Grid {
	out := g
	out.Lat = append([]float64(nil), g.Lat...)
	out.Lon = append([]float64(nil), g.Lon...)
	out.Data = append([]float32(nil), g.Data...)
	return out
}

// RoundCoords rounds both axes to the given number of decimals, removing the
// floating point noise some providers leave in coordinate values.
func (g Grid) RoundCoords(decimals int) Grid {
	out := g.clone()
	p := math.Pow(10, float64(decimals))
	for i, v := range out.Lat {
		out.Lat[i] = math.Round(v*p) / p
	}
	for i, v := range out.Lon {
		out.Lon[i] = math.Round(v*p) / p
	}
	return out
}
