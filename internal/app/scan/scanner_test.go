package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantaudit/api/internal/config"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/domain/site"
	"github.com/tenantaudit/api/pkg/logger"
)

func makeSites(n int) []site.Descriptor {
	sites := make([]site.Descriptor, n)
	for i := range sites {
		sites[i] = site.Descriptor{URL: fmt.Sprintf("https://contoso.sharepoint.com/sites/s%03d", i)}
	}
	return sites
}

func newTestScanner(cfg config.ScannerConfig) *Scanner[string] {
	s := NewScanner[string](cfg, logger.NewNop())
	s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return s
}

func TestRun_AllSitesScanned(t *testing.T) {
	sites := makeSites(25)
	s := newTestScanner(config.ScannerConfig{DegreeOfParallelism: 4, BatchSize: 10})

	outcomes, err := s.Run(context.Background(), sites, func(_ context.Context, d site.Descriptor) (string, error) {
		return d.URL, nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 25)

	seen := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.Equal(t, o.Site.URL, o.Value)
		seen[o.Site.URL] = true
	}
	assert.Len(t, seen, 25, "every site exactly once")
}

func TestRun_EmptySiteList(t *testing.T) {
	s := newTestScanner(config.ScannerConfig{DegreeOfParallelism: 4, BatchSize: 10})
	outcomes, err := s.Run(context.Background(), nil, func(_ context.Context, _ site.Descriptor) (string, error) {
		t.Fatal("task must not run for an empty site list")
		return "", nil
	})
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestRun_ConcurrencyNeverExceedsLimit(t *testing.T) {
	const limit = 3
	var current, peak atomic.Int64
	sites := makeSites(40)
	s := newTestScanner(config.ScannerConfig{DegreeOfParallelism: limit, BatchSize: 40})

	_, err := s.Run(context.Background(), sites, func(_ context.Context, _ site.Descriptor) (string, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		current.Add(-1)
		return "", nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Positive(t, peak.Load())
}

func TestRun_FailedSiteDoesNotAbortBatch(t *testing.T) {
	sites := makeSites(10)
	s := newTestScanner(config.ScannerConfig{DegreeOfParallelism: 2, BatchSize: 10})

	outcomes, err := s.Run(context.Background(), sites, func(_ context.Context, d site.Descriptor) (string, error) {
		if d.URL == sites[3].URL {
			return "", shared.ErrPermission
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 10)

	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			assert.True(t, errors.Is(o.Err, shared.ErrPermission))
			assert.Equal(t, sites[3].URL, o.Site.URL)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRun_BatchBoundaries(t *testing.T) {
	// 25 sites with batch size 10 means batches of 10, 10 and 5.
	var mu sync.Mutex
	var batchSizes []int
	inBatch := 0

	sites := makeSites(25)
	s := NewScanner[string](config.ScannerConfig{DegreeOfParallelism: 1, BatchSize: 10}, logger.NewNop())
	s.sleep = func(_ context.Context, _ time.Duration) error {
		mu.Lock()
		batchSizes = append(batchSizes, inBatch)
		inBatch = 0
		mu.Unlock()
		return nil
	}

	outcomes, err := s.Run(context.Background(), sites, func(_ context.Context, _ site.Descriptor) (string, error) {
		mu.Lock()
		inBatch++
		mu.Unlock()
		return "", nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 25)

	mu.Lock()
	batchSizes = append(batchSizes, inBatch)
	mu.Unlock()
	assert.Equal(t, []int{10, 10, 5}, batchSizes)
}

func TestRun_PauseBetweenBatchesOnly(t *testing.T) {
	var pauses atomic.Int64
	sites := makeSites(30)
	s := NewScanner[string](config.ScannerConfig{DegreeOfParallelism: 2, BatchSize: 10, BatchPause: 5 * time.Second}, logger.NewNop())
	s.sleep = func(_ context.Context, d time.Duration) error {
		assert.Equal(t, 5*time.Second, d)
		pauses.Add(1)
		return nil
	}

	_, err := s.Run(context.Background(), sites, func(_ context.Context, _ site.Descriptor) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pauses.Load(), "three batches means two pauses, none after the last")
}

func TestRun_SingleBatchNoPause(t *testing.T) {
	var pauses atomic.Int64
	s := NewScanner[string](config.ScannerConfig{DegreeOfParallelism: 2, BatchSize: 100, BatchPause: 5 * time.Second}, logger.NewNop())
	s.sleep = func(_ context.Context, _ time.Duration) error {
		pauses.Add(1)
		return nil
	}

	_, err := s.Run(context.Background(), makeSites(7), func(_ context.Context, _ site.Descriptor) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	assert.Zero(t, pauses.Load())
}

func TestRun_CancelAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var scanned atomic.Int64

	sites := makeSites(20)
	s := NewScanner[string](config.ScannerConfig{DegreeOfParallelism: 2, BatchSize: 10, BatchPause: time.Second}, logger.NewNop())
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	outcomes, err := s.Run(ctx, sites, func(_ context.Context, _ site.Descriptor) (string, error) {
		scanned.Add(1)
		return "", nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int64(10), scanned.Load(), "second batch never starts")
	assert.Len(t, outcomes, 10, "first batch outcomes survive cancellation")
}

func TestRun_OutcomesSurviveUnorderedCompletion(t *testing.T) {
	sites := makeSites(12)
	s := newTestScanner(config.ScannerConfig{DegreeOfParallelism: 6, BatchSize: 12})

	outcomes, err := s.Run(context.Background(), sites, func(_ context.Context, d site.Descriptor) (string, error) {
		return d.URL, nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 12)

	got := make([]string, len(outcomes))
	for i, o := range outcomes {
		got[i] = o.Site.URL
	}
	want := make([]string, len(sites))
	for i, d := range sites {
		want[i] = d.URL
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		wants []int
	}{
		{"exact multiple", 20, 10, []int{10, 10}},
		{"remainder", 25, 10, []int{10, 10, 5}},
		{"smaller than batch", 3, 10, []int{3}},
		{"single element", 1, 1, []int{1}},
		{"size clamped to one", 3, 0, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := chunk(makeSites(tt.n), tt.size)
			require.Len(t, batches, len(tt.wants))
			for i, want := range tt.wants {
				assert.Len(t, batches[i], want)
			}
		})
	}
}
