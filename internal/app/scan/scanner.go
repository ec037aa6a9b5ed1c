// Package scan drives bounded-parallel site scans: the site list is cut
// into batches, each batch runs through a fixed-size worker pool, and a
// fixed pause separates batches so the directory service is never hit
// with an unbroken stream of requests.
package scan

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tenantaudit/api/internal/config"
	"github.com/tenantaudit/api/internal/metrics"
	"github.com/tenantaudit/api/pkg/domain/site"
	"github.com/tenantaudit/api/pkg/logger"
)

// Outcome is the per-site result of one scan task. Err is set when the
// task failed; a failed site never aborts its batch.
type Outcome[R any] struct {
	Site     site.Descriptor
	Value    R
	Err      error
	Duration time.Duration
}

// Task produces one site's scan payload. Implementations must be safe
// for concurrent use: up to DegreeOfParallelism invocations run at once.
type Task[R any] func(ctx context.Context, s site.Descriptor) (R, error)

// collector accumulates outcomes from concurrent tasks. Append-only;
// order reflects completion, not submission.
type collector[R any] struct {
	mu       sync.Mutex
	outcomes []Outcome[R]
}

func (c *collector[R]) add(o Outcome[R]) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
}

// Scanner executes a Task across a site list with bounded concurrency.
type Scanner[R any] struct {
	cfg   config.ScannerConfig
	log   *logger.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScanner creates a scanner with the given pool and batching knobs.
func NewScanner[R any](cfg config.ScannerConfig, log *logger.Logger) *Scanner[R] {
	return &Scanner[R]{
		cfg:   cfg,
		log:   log.With("component", "scanner"),
		sleep: sleepCtx,
	}
}

// Run scans every site, batch by batch. All outcomes are returned,
// including failed ones; the returned error is non-nil only on
// cancellation, in which case the outcomes collected so far accompany
// it. Cancellation between batches skips all remaining batches;
// cancellation mid-batch lets already-started tasks observe ctx and
// wind down.
func (s *Scanner[R]) Run(ctx context.Context, sites []site.Descriptor, task Task[R]) ([]Outcome[R], error) {
	if len(sites) == 0 {
		return nil, nil
	}

	batches := chunk(sites, s.cfg.BatchSize)
	s.log.Info("scan starting",
		"sites", len(sites),
		"batches", len(batches),
		"batch_size", s.cfg.BatchSize,
		"parallelism", s.cfg.DegreeOfParallelism,
	)

	col := &collector[R]{outcomes: make([]Outcome[R], 0, len(sites))}
	for i, batch := range batches {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.BatchPause); err != nil {
				return col.outcomes, err
			}
		}
		if err := ctx.Err(); err != nil {
			return col.outcomes, err
		}

		s.log.Info("batch starting", "batch", i+1, "of", len(batches), "sites", len(batch))
		s.runBatch(ctx, batch, task, col)
	}

	if err := ctx.Err(); err != nil {
		return col.outcomes, err
	}
	return col.outcomes, nil
}

// runBatch drains one batch through the worker pool. Task errors are
// recorded, never propagated, so one bad site cannot starve the rest
// of the batch.
func (s *Scanner[R]) runBatch(ctx context.Context, batch []site.Descriptor, task Task[R], col *collector[R]) {
	metrics.ScanBatchesInProgress.Inc()
	defer metrics.ScanBatchesInProgress.Dec()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DegreeOfParallelism)
	for _, desc := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				col.add(Outcome[R]{Site: desc, Err: err})
				metrics.SitesScannedTotal.WithLabelValues("canceled").Inc()
				return nil
			}

			start := time.Now()
			value, err := task(ctx, desc)
			outcome := Outcome[R]{
				Site:     desc,
				Value:    value,
				Err:      err,
				Duration: time.Since(start),
			}
			col.add(outcome)

			if err != nil {
				metrics.SitesScannedTotal.WithLabelValues("error").Inc()
				s.log.Warn("site scan failed",
					"site_url", desc.URL,
					"duration", outcome.Duration.String(),
					"error", err,
				)
				return nil
			}
			metrics.SitesScannedTotal.WithLabelValues("ok").Inc()
			return nil
		})
	}
	// Workers only ever return nil.
	_ = g.Wait()
}

// chunk splits sites into consecutive slices of at most size elements.
func chunk(sites []site.Descriptor, size int) [][]site.Descriptor {
	if size < 1 {
		size = 1
	}
	var out [][]site.Descriptor
	for len(sites) > size {
		out = append(out, sites[:size])
		sites = sites[size:]
	}
	return append(out, sites)
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
