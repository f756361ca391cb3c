package pipeline

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/coverage"
)

// Plan selects the dates a run processes.
type Plan interface {
	resolve(ctx context.Context, p *Pipeline) ([]time.Time, *coverage.Result, error)
}

// Range processes every cadence date in [Start, End].
type Range struct {
	Start, End time.Time
}

func (r Range) resolve(_ context.Context, p *Pipeline) ([]time.Time, *coverage.Result, error) {
	d := p.source.Descriptor()
	// The latest period is accepted up to its last day.
	latest := d.Frequency.Next(p.source.LatestDate(p.clock.Now())).AddDate(0, 0, -1)
	opts := []calendar.RangeOption{calendar.NotAfter(latest)}
	if !d.Earliest.IsZero() {
		opts = append(opts, calendar.NotBefore(d.Earliest))
	}
	// DateRange validates the bounds, Enumerate applies the cadence.
	if _, err := calendar.DateRange(r.Start, r.End, opts...); err != nil {
		return nil, nil, err
	}
	return d.Frequency.Enumerate(r.Start, r.End), nil, nil
}

// Backfill processes the dates of Window that have no processed artifact.
// A zero Window.Frequency uses the source's cadence.
type Backfill struct {
	Window coverage.Window
}

func (b Backfill) resolve(ctx context.Context, p *Pipeline) ([]time.Time, *coverage.Result, error) {
	d := p.source.Descriptor()
	w := b.Window
	if w.Frequency == "" {
		w.Frequency = d.Frequency
	}

	res, err := p.Coverage(ctx, w)
	if err != nil {
		return nil, nil, err
	}
	return res.Missing, &res, nil
}

// Update processes the most recent date the source should have published.
type Update struct{}

func (Update) resolve(_ context.Context, p *Pipeline) ([]time.Time, *coverage.Result, error) {
	return []time.Time{p.source.LatestDate(p.clock.Now())}, nil, nil
}

// Coverage compares the processed artifacts in storage against the dates w
// expects, and logs a coverage report.
func (p *Pipeline) Coverage(ctx context.Context, w coverage.Window) (coverage.Result, error) {
	d := p.source.Descriptor()
	keys, err := p.store.List(ctx, d.ProcessedPath+"/")
	if err != nil {
		return coverage.Result{}, fmt.Errorf("list processed artifacts: %w", err)
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = path.Base(k)
	}

	existing, err := CompleteDates(p.source, names)
	if err != nil {
		return coverage.Result{}, err
	}
	if w.Frequency != d.Frequency {
		aligned := make(coverage.DateSet, len(existing))
		for t := range existing {
			aligned.Add(w.Frequency.Align(t))
		}
		existing = aligned
	}
	res, err := coverage.ComputeMissing(w, existing)
	if err != nil {
		return coverage.Result{}, err
	}

	p.metrics.CoveragePercent.WithLabelValues(d.Product).Set(res.CoveragePct)
	coverage.Report{
		Product:  d.Product,
		Mode:     string(p.opts.Mode),
		Location: p.store.Location(),
		Result:   res,
	}.Log(p.logger)
	return res, nil
}

// CompleteDates decodes processed artifact names and returns the cadence
// dates for which every unit of src has an artifact. A forecast issue with
// some leadtimes missing is not complete.
func CompleteDates(src Source, names []string) (coverage.DateSet, error) {
	dates, err := coverage.DatesFromNames(names, src.Descriptor().Frequency)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(names))
	for _, n := range names {
		have[n] = struct{}{}
	}

	complete := make(coverage.DateSet, len(dates))
	for d := range dates {
		if hasAllUnits(src, d, have) {
			complete.Add(d)
		}
	}
	return complete, nil
}

func hasAllUnits(src Source, date time.Time, have map[string]struct{}) bool {
	for _, u := range src.Units(date) {
		if _, ok := have[src.ProcessedName(u)]; !ok {
			return false
		}
	}
	return true
}
