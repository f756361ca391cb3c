// Package pipeline runs a data source through fetch, transform, validation
// and persistence, one unit at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/raster-pipeline/internal/coverage"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/observability"
	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

const contentTypeTIFF = "image/tiff"

// ErrInvalidArtifact is returned when a processed artifact fails a schema
// check. The wrapped error is the *metadata.SchemaError.
var ErrInvalidArtifact = errors.New("artifact failed validation")

// ErrNotPublished is matched by fetch errors for dates the upstream has not
// published yet. Such fetches are skipped without retrying.
var ErrNotPublished = errors.New("not published")

// Options tune a Pipeline.
type Options struct {
	// UseCache reuses raw files already in storage instead of fetching them.
	UseCache bool
	Mode     storage.Mode
	// FetchRetries is the number of extra attempts after a failed fetch.
	// Dates the upstream has not published yet are never retried.
	FetchRetries int
	RetryBackoff time.Duration

	Clock    clockwork.Clock
	Notifier Notifier
}

// Summary counts what a run did.
type Summary struct {
	RunID     string
	Product   string
	Dates     int
	Processed int
	Skipped   int
	Cached    int
	Coverage  *coverage.Result
}

// Pipeline orchestrates the fetch-transform-validate-write loop of one source.
type Pipeline struct {
	source    Source
	store     storage.Backend
	validator *metadata.Validator
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	opts      Options
	ready     atomic.Bool
	last      atomic.Pointer[Summary]
}

// New creates a Pipeline for src persisting to store.
func New(src Source, store storage.Backend, v *metadata.Validator, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		source:    src,
		store:     store,
		validator: v,
		logger:    logger.With("product", src.Descriptor().Product),
		metrics:   metrics,
		clock:     clock,
		opts:      opts,
	}
}

// CheckReadiness returns nil once the pipeline has persisted at least one
// artifact, or an error describing why it is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not persisted any artifacts yet")
	}
	return nil
}

// LastSummary returns the summary of the most recent finished run, whether
// it completed or stopped on an error.
func (p *Pipeline) LastSummary() (Summary, bool) {
	s := p.last.Load()
	if s == nil {
		return Summary{}, false
	}
	return *s, true
}

// Run resolves plan into dates and processes every unit of every date in
// order. Fetch and transform failures skip the unit. Validation failures,
// metadata inconsistencies and storage errors stop the run, as does
// cancellation of ctx between units.
func (p *Pipeline) Run(ctx context.Context, plan Plan) (sum Summary, err error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	sum = Summary{RunID: runID, Product: p.source.Descriptor().Product}

	p.metrics.PipelineRunning.Set(1)
	defer func() {
		p.metrics.PipelineRunning.Set(0)
		finished := sum
		p.last.Store(&finished)
	}()

	dates, cov, err := plan.resolve(ctx, p)
	if err != nil {
		return sum, fmt.Errorf("plan run: %w", err)
	}
	sum.Dates, sum.Coverage = len(dates), cov
	logger.Info("pipeline started", "mode", p.opts.Mode, "dates", len(dates), "use_cache", p.opts.UseCache)

	for _, date := range dates {
		for _, u := range p.source.Units(date) {
			if err := ctx.Err(); err != nil {
				logger.Info("pipeline stopping", "reason", err, "processed", sum.Processed)
				return sum, err
			}
			if err := p.processUnit(ctx, logger, runID, u, &sum); err != nil {
				logger.Error("pipeline aborted", "unit", u.String(), "error", err)
				return sum, err
			}
		}
	}

	logger.Info("pipeline completed",
		"processed", sum.Processed,
		"skipped", sum.Skipped,
		"cached", sum.Cached,
	)
	return sum, nil
}

func (p *Pipeline) processUnit(ctx context.Context, logger *slog.Logger, runID string, u Unit, sum *Summary) error {
	start := p.clock.Now()
	d := p.source.Descriptor()
	logger = logger.With("unit", u.String())

	raw, cached, err := p.getRaw(ctx, logger, u)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("fetch failed, skipping unit", "error", err)
		p.metrics.UnitsSkipped.WithLabelValues(d.Product, "fetch").Inc()
		sum.Skipped++
		return nil
	}
	if cached {
		sum.Cached++
	}

	art, err := p.transform(ctx, raw, u)
	var skip *transformError
	if errors.As(err, &skip) {
		logger.Warn("transform failed, skipping unit", "error", skip.err)
		p.metrics.UnitsSkipped.WithLabelValues(d.Product, "transform").Inc()
		sum.Skipped++
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.validate(logger, art); err != nil {
		return err
	}

	key := d.ProcessedKey(art.name)
	if err := p.store.Write(ctx, key, art.data, storage.WriteOptions{ContentType: contentTypeTIFF, Tier: storage.TierHot}); err != nil {
		return fmt.Errorf("persist %s: %w", art.name, err)
	}
	p.ready.Store(true)
	sum.Processed++
	p.metrics.UnitsProcessed.WithLabelValues(d.Product).Inc()
	p.metrics.UnitDuration.WithLabelValues(d.Product).Observe(p.clock.Since(start).Seconds())
	logger.Info("artifact persisted", "name", art.name, "location", p.store.Location())

	p.notify(ctx, logger, ArtifactEvent{
		RunID:       runID,
		Product:     d.Product,
		Name:        art.name,
		Key:         key,
		Location:    p.store.Location(),
		Date:        u.Date,
		Leadtime:    u.Leadtime,
		PublishedAt: p.clock.Now().UTC(),
	})
	return nil
}

// validate checks the artifact as it was decoded back from its encoded
// bytes, so what is checked is exactly what gets persisted.
func (p *Pipeline) validate(logger *slog.Logger, art artifact) error {
	err := p.validator.Check(art.geometry, art.name, art.attrs)
	if err == nil {
		return nil
	}

	var se *metadata.SchemaError
	if errors.As(err, &se) {
		logger.Error("artifact failed validation", "name", art.name, "rule", se.Rule, "reason", se.Reason)
		p.metrics.ValidationFailures.WithLabelValues(p.source.Descriptor().Product, se.Rule).Inc()
		return fmt.Errorf("%w: %s: %w", ErrInvalidArtifact, art.name, err)
	}
	return fmt.Errorf("validate %s: %w", art.name, err)
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, e ArtifactEvent) {
	if p.opts.Notifier == nil {
		return
	}
	if err := p.opts.Notifier.Notify(ctx, e); err != nil {
		logger.Warn("artifact notification failed", "name", e.Name, "error", err)
		p.metrics.NotifyErrors.Inc()
	}
}
