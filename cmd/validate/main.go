// Command validate audits the processed artifacts of a product in storage:
// every name must decode to a date, every artifact must pass the metadata
// validator, and the dates present are compared against the expected
// publication dates.
//
// Usage:
//
//	go run ./cmd/validate -product seas5 -mode dev -start 2024-01-01 -end 2024-12-01
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/coverage"
	"github.com/couchcryptid/raster-pipeline/internal/filename"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
	"github.com/couchcryptid/raster-pipeline/internal/product"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	name := flag.String("product", "", "product to audit")
	mode := flag.String("mode", string(storage.ModeLocal), "storage mode: local, dev or prod")
	start := flag.String("start", "", "first expected date (YYYY-MM-DD), default the product's earliest date")
	end := flag.String("end", "", "last expected date (YYYY-MM-DD), default the latest published date")
	flag.Parse()

	if *name == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*name, *mode, *start, *end))
}

func run(name, modeFlag, start, end string) int {
	m, err := storage.ParseMode(modeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	prod, err := cfg.Catalog.Lookup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	// Audits never fetch, so the source gets no fetcher.
	src, err := product.New(prod, m, nil, raster.EnvelopeDecoder{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	w, err := window(src, start, end, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	sc, err := cfg.StorageFor(m, prod.Container)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open storage: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := auditor{
		store:     store,
		src:       src,
		prefix:    prod.ProcessedPath + "/",
		validator: metadata.NewValidator(prod.BoundsFor(m), logger),
		report:    coverage.Report{Product: prod.Name, Mode: string(m), Location: store.Location()},
	}
	if a.run(ctx, w, os.Stdout) {
		return 0
	}
	return 1
}

// window is the range of expected dates. Unset bounds default to the
// product's first date and the latest date it should have published by now.
func window(src pipeline.Source, start, end string, now time.Time) (coverage.Window, error) {
	d := src.Descriptor()
	w := coverage.Window{Start: d.Earliest, End: src.LatestDate(now), Frequency: d.Frequency}
	var err error
	if start != "" {
		if w.Start, err = time.Parse(time.DateOnly, start); err != nil {
			return coverage.Window{}, fmt.Errorf("invalid -start %q: %w", start, err)
		}
	}
	if end != "" {
		if w.End, err = time.Parse(time.DateOnly, end); err != nil {
			return coverage.Window{}, fmt.Errorf("invalid -end %q: %w", end, err)
		}
	}
	if w.Start.IsZero() {
		return coverage.Window{}, fmt.Errorf("product %s has no earliest date, -start is required", d.Product)
	}
	return w, nil
}

type auditor struct {
	store     storage.Backend
	src       pipeline.Source
	prefix    string
	validator *metadata.Validator
	report    coverage.Report
}

// run prints a PASS/FAIL line per phase followed by the coverage report and
// the detailed errors. It reports whether every phase passed.
func (a auditor) run(ctx context.Context, w coverage.Window, out io.Writer) bool {
	fmt.Fprintln(out, "=== Artifact Integrity Audit ===")
	fmt.Fprintln(out)

	keys, err := a.store.List(ctx, a.prefix)
	if err != nil {
		fmt.Fprintf(out, "FATAL: list %s: %v\n", a.prefix, err)
		return false
	}

	names, naming := checkNames(keys)
	schema := a.checkArtifacts(ctx, names)
	cov, res := checkCoverage(a.src, w, names)
	phases := []*phase{naming, schema, cov}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintf(out, "\nArtifacts: %d listed, %d dated\n\n", len(keys), len(names))
	if res != nil {
		r := a.report
		r.Result = *res
		if err := r.Render(out); err != nil {
			fmt.Fprintf(out, "render coverage report: %v\n", err)
		}
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return true
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return false
}

// checkNames returns the keys whose base name decodes to a date.
func checkNames(keys []string) ([]string, *phase) {
	p := &phase{name: "Filename decoding"}
	var dated []string
	for _, k := range keys {
		if _, _, err := filename.Decode(path.Base(k)); err != nil {
			p.errorf("%s: %v", k, err)
			continue
		}
		dated = append(dated, k)
	}
	return dated, p
}

func (a auditor) checkArtifacts(ctx context.Context, keys []string) *phase {
	p := &phase{name: "Artifact schema and metadata"}
	for _, k := range keys {
		data, err := a.store.Read(ctx, k)
		if err != nil {
			p.errorf("%s: read: %v", k, err)
			continue
		}
		art, err := raster.DecodeArtifact(data)
		if err != nil {
			p.errorf("%s: decode: %v", k, err)
			continue
		}
		if err := a.validator.Check(art.Grid.Geometry, path.Base(k), metadata.Attrs(art.Attrs)); err != nil {
			p.errorf("%s: %v", k, err)
		}
	}
	return p
}

// checkCoverage counts a date as present only when all of its units have
// an artifact.
func checkCoverage(src pipeline.Source, w coverage.Window, keys []string) (*phase, *coverage.Result) {
	p := &phase{name: "Coverage " + w.String()}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = path.Base(k)
	}
	existing, err := pipeline.CompleteDates(src, names)
	if err != nil {
		p.errorf("%v", err)
		return p, nil
	}
	res, err := coverage.ComputeMissing(w, existing)
	if err != nil {
		p.errorf("%v", err)
		return p, nil
	}
	if !res.Complete() {
		p.errorf("%d of %d expected dates missing", len(res.Missing), res.Expected)
	}
	return p, &res
}
