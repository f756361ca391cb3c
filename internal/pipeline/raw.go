package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

const maxRetryBackoff = time.Minute

// GetRaw returns the raw data of u, from storage when UseCache is set and
// the raw file exists, otherwise from the source. Fetched data is written to
// storage so later runs can reuse it.
func (p *Pipeline) GetRaw(ctx context.Context, u Unit) ([]byte, error) {
	raw, _, err := p.getRaw(ctx, p.logger.With("unit", u.String()), u)
	return raw, err
}

func (p *Pipeline) getRaw(ctx context.Context, logger *slog.Logger, u Unit) ([]byte, bool, error) {
	d := p.source.Descriptor()
	key := d.RawKey(p.source.RawName(u))

	if p.opts.UseCache {
		raw, ok, err := p.readCached(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			p.metrics.RawCache.WithLabelValues(d.Product, "hit").Inc()
			logger.Info("using cached raw data", "key", key)
			return raw, true, nil
		}
		p.metrics.RawCache.WithLabelValues(d.Product, "miss").Inc()
		logger.Info("no cached raw data, fetching", "key", key)
	}

	raw, err := p.fetchWithRetry(ctx, logger, u)
	if err != nil {
		return nil, false, err
	}
	if err := p.store.Write(ctx, key, raw, storage.WriteOptions{Tier: storage.TierCool}); err != nil {
		logger.Warn("saving raw data failed", "key", key, "error", err)
	}
	return raw, false, nil
}

func (p *Pipeline) readCached(ctx context.Context, key string) ([]byte, bool, error) {
	ok, err := p.store.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("check raw cache: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := p.store.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read raw cache: %w", err)
	}
	return raw, true, nil
}

func (p *Pipeline) fetchWithRetry(ctx context.Context, logger *slog.Logger, u Unit) ([]byte, error) {
	backoff := p.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		raw, err := p.source.FetchRaw(ctx, u)
		if err == nil {
			return raw, nil
		}
		if attempt >= p.opts.FetchRetries || errors.Is(err, ErrNotPublished) || ctx.Err() != nil {
			return nil, err
		}
		logger.Debug("fetch failed, retrying", "attempt", attempt+1, "backoff", backoff, "error", err)
		if !p.sleep(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxRetryBackoff)
	}
}

// sleep waits on the pipeline clock so tests can advance it.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
