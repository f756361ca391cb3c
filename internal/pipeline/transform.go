package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
)

// artifact is a processed unit ready to persist.
type artifact struct {
	name     string
	data     []byte
	geometry raster.Geometry
	attrs    metadata.Attrs
}

// transformError marks a failure caused by the provider's data, which skips
// the unit rather than stopping the run.
type transformError struct {
	err error
}

func (e *transformError) Error() string { return e.err.Error() }

func (e *transformError) Unwrap() error { return e.err }

// transform turns raw data into the encoded artifact and decodes it back, so
// the geometry and attributes handed to validation are those of the bytes
// that will be written.
func (p *Pipeline) transform(ctx context.Context, raw []byte, u Unit) (artifact, error) {
	grid, rec, err := p.source.Transform(ctx, raw, u)
	if err != nil {
		return artifact{}, &transformError{err: err}
	}
	grid = raster.NormalizeOrientation(grid)
	if err := grid.CheckShape(); err != nil {
		return artifact{}, &transformError{err: err}
	}

	rec.DownloadDate = p.clock.Now()
	attrs, err := rec.Attrs()
	if err != nil {
		return artifact{}, fmt.Errorf("build metadata for %s: %w", u, err)
	}

	name := p.source.ProcessedName(u)
	data, err := raster.EncodeArtifact(grid, attrs)
	if err != nil {
		return artifact{}, fmt.Errorf("encode %s: %w", name, err)
	}
	decoded, err := raster.DecodeArtifact(data)
	if err != nil {
		return artifact{}, fmt.Errorf("decode %s: %w", name, err)
	}

	return artifact{
		name:     name,
		data:     data,
		geometry: decoded.Grid.Geometry,
		attrs:    metadata.Attrs(decoded.Attrs),
	}, nil
}
