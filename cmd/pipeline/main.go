// Command pipeline ingests one data product into storage.
//
//	pipeline <era5|seas5|imerg|floodscan> [flags]
//
// Exactly one of --start/--end, --update or --backfill selects the dates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/raster-pipeline/internal/adapter/fetch"
	httpadapter "github.com/couchcryptid/raster-pipeline/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/raster-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/coverage"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/observability"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
	"github.com/couchcryptid/raster-pipeline/internal/product"
	"github.com/couchcryptid/raster-pipeline/internal/raster"
	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

// cliOptions are the parsed command-line arguments.
type cliOptions struct {
	product      string
	mode         storage.Mode
	start, end   time.Time
	update       bool
	backfill     bool
	useCache     bool
	logLevel     string
	retries      int
	retryBackoff time.Duration
	cacheMB      int
	serve        bool
}

func parseArgs(args []string, stderr io.Writer) (cliOptions, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return cliOptions{}, errors.New("usage: pipeline <era5|seas5|imerg|floodscan> [flags]")
	}
	opts := cliOptions{product: strings.ToLower(args[0])}

	fs := flag.NewFlagSet("pipeline "+opts.product, flag.ContinueOnError)
	fs.SetOutput(stderr)
	mode := fs.String("mode", string(storage.ModeLocal), "storage mode: local, dev or prod")
	var start, end string
	fs.StringVar(&start, "start", "", "first date to process (YYYY-MM-DD)")
	fs.StringVar(&start, "start-date", "", "alias of --start")
	fs.StringVar(&end, "end", "", "last date to process (YYYY-MM-DD)")
	fs.StringVar(&end, "end-date", "", "alias of --end")
	fs.BoolVar(&opts.update, "update", false, "process the most recent published date")
	fs.BoolVar(&opts.backfill, "backfill", false, "process dates missing from storage, within --start/--end when given")
	fs.BoolVar(&opts.useCache, "use-cache", false, "reuse raw files already in storage")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	fs.IntVar(&opts.retries, "retries", 3, "extra attempts after a failed fetch")
	fs.DurationVar(&opts.retryBackoff, "retry-backoff", 10*time.Second, "wait before the first fetch retry, doubled per attempt")
	fs.IntVar(&opts.cacheMB, "cache-mb", 256, "megabytes of storage objects kept in memory, 0 to disable")
	fs.BoolVar(&opts.serve, "serve", false, "keep serving /metrics and /runs/last after the run until interrupted")
	if err := fs.Parse(args[1:]); err != nil {
		return cliOptions{}, err
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	m, err := storage.ParseMode(*mode)
	if err != nil {
		return cliOptions{}, err
	}
	opts.mode = m

	if opts.start, err = parseDate("start", start); err != nil {
		return cliOptions{}, err
	}
	if opts.end, err = parseDate("end", end); err != nil {
		return cliOptions{}, err
	}

	ranged := !opts.start.IsZero() || !opts.end.IsZero()
	switch {
	case opts.update && (opts.backfill || ranged):
		return cliOptions{}, errors.New("--update cannot be combined with --backfill or a date range")
	case !opts.update && !opts.backfill && !ranged:
		return cliOptions{}, errors.New("one of --start/--end, --update or --backfill is required")
	case !opts.backfill && ranged && (opts.start.IsZero() || opts.end.IsZero()):
		return cliOptions{}, errors.New("--start and --end must be given together")
	}
	if opts.retries < 0 {
		return cliOptions{}, fmt.Errorf("--retries must be non-negative, got %d", opts.retries)
	}
	return opts, nil
}

func parseDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, s)
	}
	return t, nil
}

// plan turns the options into a pipeline plan. A backfill without bounds
// spans from the product's first date to its latest published date.
func (o cliOptions) plan(src pipeline.Source, now time.Time) pipeline.Plan {
	switch {
	case o.update:
		return pipeline.Update{}
	case o.backfill:
		d := src.Descriptor()
		w := coverage.Window{Start: o.start, End: o.end, Frequency: d.Frequency}
		if w.Start.IsZero() {
			w.Start = d.Earliest
		}
		if w.End.IsZero() {
			w.End = src.LatestDate(now)
		}
		return pipeline.Backfill{Window: w}
	default:
		return pipeline.Range{Start: o.start, End: o.end}
	}
}

func run(args []string) error {
	opts, err := parseArgs(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prod, err := cfg.Catalog.Lookup(opts.product)
	if err != nil {
		return err
	}
	sc, err := cfg.StorageFor(opts.mode, prod.Container)
	if err != nil {
		return err
	}
	var store storage.Backend
	store, err = storage.Open(ctx, sc)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if opts.cacheMB > 0 {
		store = storage.NewCachedBackend(store, int64(opts.cacheMB)<<20)
	}

	var fetchOpts []fetch.Option
	if cfg.FetchToken != "" {
		fetchOpts = append(fetchOpts, fetch.WithBearerToken(cfg.FetchToken))
	}
	fetcher := fetch.NewClient(cfg.FetchTimeout, cfg.FetchRate, metrics, logger, fetchOpts...)

	src, err := product.New(prod, opts.mode, fetcher, raster.EnvelopeDecoder{})
	if err != nil {
		return err
	}

	pipeOpts := pipeline.Options{
		UseCache:     opts.useCache,
		Mode:         opts.mode,
		FetchRetries: opts.retries,
		RetryBackoff: opts.retryBackoff,
	}
	if len(cfg.KafkaBrokers) > 0 {
		notifier := kafkaadapter.NewNotifier(cfg, logger)
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.Error("kafka notifier close error", "error", err)
			}
		}()
		pipeOpts.Notifier = notifier
		logger.Info("artifact notifications enabled", "topic", cfg.KafkaTopic)
	}

	validator := metadata.NewValidator(prod.BoundsFor(opts.mode), logger)
	p := pipeline.New(src, store, validator, logger, metrics, pipeOpts)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer shutdown(srv, cfg.ShutdownTimeout, logger)

	logger.Info("storage opened", "mode", opts.mode, "location", store.Location())
	_, runErr := p.Run(ctx, opts.plan(src, time.Now()))

	if opts.serve && ctx.Err() == nil {
		logger.Info("run finished, serving until interrupted", "addr", cfg.HTTPAddr)
		<-ctx.Done()
	}
	return runErr
}

func shutdown(srv *httpadapter.Server, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
