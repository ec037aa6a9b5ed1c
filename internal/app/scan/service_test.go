package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantaudit/api/internal/app/sitecache"
	"github.com/tenantaudit/api/internal/config"
	"github.com/tenantaudit/api/internal/infra/directory"
	"github.com/tenantaudit/api/pkg/domain/appcatalog"
	"github.com/tenantaudit/api/pkg/domain/inventory"
	"github.com/tenantaudit/api/pkg/domain/scanrun"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/domain/site"
	"github.com/tenantaudit/api/pkg/logger"
	"github.com/tenantaudit/api/pkg/pagination"
)

type mockRunRepo struct {
	mu   sync.Mutex
	runs map[shared.ID]*scanrun.Run
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[shared.ID]*scanrun.Run)}
}

func (r *mockRunRepo) Create(_ context.Context, run *scanrun.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

func (r *mockRunRepo) GetByID(_ context.Context, id shared.ID) (*scanrun.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return run, nil
}

func (r *mockRunRepo) Update(_ context.Context, run *scanrun.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return shared.ErrNotFound
	}
	r.runs[run.ID] = run
	return nil
}

func (r *mockRunRepo) List(_ context.Context, _ scanrun.Filter, page pagination.Pagination) (pagination.Result[*scanrun.Run], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*scanrun.Run, 0, len(r.runs))
	for _, run := range r.runs {
		items = append(items, run)
	}
	return pagination.NewResult(items, int64(len(items)), page), nil
}

type mockSiteRepo struct {
	mu      sync.Mutex
	entries map[string]site.CacheEntry
}

func newMockSiteRepo() *mockSiteRepo {
	return &mockSiteRepo{entries: make(map[string]site.CacheEntry)}
}

func (r *mockSiteRepo) GetEntry(_ context.Context, adminURL string) (site.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[adminURL]
	if !ok {
		return site.CacheEntry{}, shared.ErrNotFound
	}
	return entry, nil
}

func (r *mockSiteRepo) ReplaceEntry(_ context.Context, adminURL string, entry site.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[adminURL] = entry
	return nil
}

type fakeConn struct{ url string }

func (c *fakeConn) URL() string  { return c.url }
func (c *fakeConn) Close() error { return nil }

// fakeDirectory serves a fixed tenant: site collections plus per-site app
// listings, with optional per-site failures.
type fakeDirectory struct {
	mu       sync.Mutex
	sites    []site.Descriptor
	apps     map[string][]appcatalog.Record
	failApps map[string]error
	connErr  error
	listErr  error
}

func (d *fakeDirectory) Connect(_ context.Context, url string) (directory.Connection, error) {
	if d.connErr != nil {
		return nil, d.connErr
	}
	return &fakeConn{url: url}, nil
}

func (d *fakeDirectory) ListSiteCollections(_ context.Context, _ directory.Connection, _ directory.ListSitesOptions) ([]site.Descriptor, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.sites, nil
}

func (d *fakeDirectory) ListInstalledApps(_ context.Context, conn directory.Connection, _ appcatalog.InstallScope) ([]appcatalog.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failApps[conn.URL()]; ok {
		return nil, err
	}
	return d.apps[conn.URL()], nil
}

func (d *fakeDirectory) ListFilesRecursive(_ context.Context, _ directory.Connection, _ string) ([]inventory.FileRecord, error) {
	return nil, nil
}

func newAppScanFixture(t *testing.T, dir *fakeDirectory) (*Service, *mockRunRepo) {
	t.Helper()
	runs := newMockRunRepo()
	cache := sitecache.NewService(newMockSiteRepo(), dir, logger.NewNop())
	svc := NewService(
		runs,
		cache,
		dir,
		config.ScannerConfig{DegreeOfParallelism: 2, BatchSize: 2},
		config.SiteCacheConfig{MaxAge: time.Hour},
		logger.NewNop(),
	)
	return svc, runs
}

func TestExecuteAppScan_CompletesWithCounters(t *testing.T) {
	dir := &fakeDirectory{
		sites: []site.Descriptor{
			{URL: "https://contoso.sharepoint.com/sites/a", Template: "STS#3"},
			{URL: "https://contoso.sharepoint.com/sites/b", Template: "STS#3"},
			{URL: "https://contoso.sharepoint.com/sites/c", Template: "STS#3"},
		},
		apps: map[string][]appcatalog.Record{
			"https://contoso.sharepoint.com/sites/a": {{ProductID: "prod-1"}, {ProductID: "prod-2"}},
			"https://contoso.sharepoint.com/sites/c": {{ProductID: "prod-3"}},
		},
	}
	svc, _ := newAppScanFixture(t, dir)

	run, err := svc.EnqueueAppScan(context.Background(), shared.NewID())
	require.NoError(t, err)
	assert.Equal(t, scanrun.StatusQueued, run.Status)

	result, err := svc.ExecuteAppScan(context.Background(), run.ID, "https://contoso-admin.sharepoint.com")
	require.NoError(t, err)

	assert.Equal(t, scanrun.StatusCompleted, result.Run.Status)
	assert.Equal(t, 3, result.Run.SitesTotal)
	assert.Equal(t, 3, result.Run.SitesSucceeded)
	assert.Equal(t, 0, result.Run.SitesFailed)
	assert.Equal(t, 3, result.Run.RowsCollected)
	assert.Len(t, result.Outcomes, 3)
}

func TestExecuteAppScan_SiteURLStampedOnRecords(t *testing.T) {
	dir := &fakeDirectory{
		sites: []site.Descriptor{{URL: "https://contoso.sharepoint.com/sites/a", Template: "STS#3"}},
		apps: map[string][]appcatalog.Record{
			"https://contoso.sharepoint.com/sites/a": {{ProductID: "prod-1"}},
		},
	}
	svc, _ := newAppScanFixture(t, dir)

	run, err := svc.EnqueueAppScan(context.Background(), shared.NewID())
	require.NoError(t, err)
	result, err := svc.ExecuteAppScan(context.Background(), run.ID, "https://contoso-admin.sharepoint.com")
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	require.Len(t, result.Outcomes[0].Value, 1)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/a", result.Outcomes[0].Value[0].SiteURL)
}

func TestExecuteAppScan_PerSiteFailureIsIsolated(t *testing.T) {
	dir := &fakeDirectory{
		sites: []site.Descriptor{
			{URL: "https://contoso.sharepoint.com/sites/a", Template: "STS#3"},
			{URL: "https://contoso.sharepoint.com/sites/b", Template: "STS#3"},
		},
		apps: map[string][]appcatalog.Record{
			"https://contoso.sharepoint.com/sites/a": {{ProductID: "prod-1"}},
		},
		failApps: map[string]error{
			"https://contoso.sharepoint.com/sites/b": shared.ErrPermission,
		},
	}
	svc, _ := newAppScanFixture(t, dir)

	run, err := svc.EnqueueAppScan(context.Background(), shared.NewID())
	require.NoError(t, err)
	result, err := svc.ExecuteAppScan(context.Background(), run.ID, "https://contoso-admin.sharepoint.com")
	require.NoError(t, err)

	assert.Equal(t, scanrun.StatusCompleted, result.Run.Status)
	assert.Equal(t, 1, result.Run.SitesSucceeded)
	assert.Equal(t, 1, result.Run.SitesFailed)
	assert.Equal(t, 1, result.Run.RowsCollected)
}

func TestExecuteAppScan_SiteListFailureFailsRun(t *testing.T) {
	dir := &fakeDirectory{listErr: shared.ErrConnection}
	svc, runs := newAppScanFixture(t, dir)

	run, err := svc.EnqueueAppScan(context.Background(), shared.NewID())
	require.NoError(t, err)

	_, err = svc.ExecuteAppScan(context.Background(), run.ID, "https://contoso-admin.sharepoint.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConnection))

	stored, err := runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, scanrun.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "resolving site list")
}

func TestExecuteAppScan_UnknownRun(t *testing.T) {
	svc, _ := newAppScanFixture(t, &fakeDirectory{})
	_, err := svc.ExecuteAppScan(context.Background(), shared.NewID(), "https://contoso-admin.sharepoint.com")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestTally(t *testing.T) {
	outcomes := []Outcome[[]appcatalog.Record]{
		{Value: []appcatalog.Record{{}, {}}},
		{Err: shared.ErrPermission},
		{Value: []appcatalog.Record{{}}},
		{Value: nil},
	}
	succeeded, failed, rows := tally(outcomes)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, rows)
}
