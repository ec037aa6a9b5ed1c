package sitecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantaudit/api/internal/infra/directory"
	"github.com/tenantaudit/api/pkg/domain/appcatalog"
	"github.com/tenantaudit/api/pkg/domain/inventory"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/domain/site"
	"github.com/tenantaudit/api/pkg/logger"
)

type memoryRepo struct {
	entries map[string]site.CacheEntry
	getErr  error
	putErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[string]site.CacheEntry)}
}

func (r *memoryRepo) GetEntry(_ context.Context, adminURL string) (site.CacheEntry, error) {
	if r.getErr != nil {
		return site.CacheEntry{}, r.getErr
	}
	entry, ok := r.entries[adminURL]
	if !ok {
		return site.CacheEntry{}, shared.ErrNotFound
	}
	return entry, nil
}

func (r *memoryRepo) ReplaceEntry(_ context.Context, adminURL string, entry site.CacheEntry) error {
	if r.putErr != nil {
		return r.putErr
	}
	r.entries[adminURL] = entry
	return nil
}

type stubConn struct {
	url string
}

func (c *stubConn) URL() string  { return c.url }
func (c *stubConn) Close() error { return nil }

type stubClient struct {
	sites    []site.Descriptor
	listErr  error
	connErr  error
	listed   int
	connects int
}

func (c *stubClient) Connect(_ context.Context, url string) (directory.Connection, error) {
	c.connects++
	if c.connErr != nil {
		return nil, c.connErr
	}
	return &stubConn{url: url}, nil
}

func (c *stubClient) ListSiteCollections(_ context.Context, _ directory.Connection, _ directory.ListSitesOptions) ([]site.Descriptor, error) {
	c.listed++
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.sites, nil
}

func (c *stubClient) ListInstalledApps(_ context.Context, _ directory.Connection, _ appcatalog.InstallScope) ([]appcatalog.Record, error) {
	return nil, nil
}

func (c *stubClient) ListFilesRecursive(_ context.Context, _ directory.Connection, _ string) ([]inventory.FileRecord, error) {
	return nil, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func newTestService(repo site.Repository, client directory.Client) *Service {
	svc := NewService(repo, client, logger.NewNop())
	svc.now = fixedNow
	return svc
}

func TestGetOrBuild_FreshEntryServedWithoutDirectoryCall(t *testing.T) {
	repo := newMemoryRepo()
	cached := []site.Descriptor{{URL: "https://contoso.sharepoint.com/sites/hr", Title: "HR"}}
	repo.entries["https://contoso-admin.sharepoint.com"] = site.CacheEntry{
		Sites:     cached,
		WrittenAt: fixedNow().Add(-71 * time.Hour),
	}
	client := &stubClient{}
	svc := newTestService(repo, client)

	got, err := svc.GetOrBuild(context.Background(), "https://contoso-admin.sharepoint.com", Options{MaxAge: 72 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.Zero(t, client.connects, "fresh entry must not touch the directory")
}

func TestGetOrBuild_EntryAtExactMaxAgeIsFresh(t *testing.T) {
	repo := newMemoryRepo()
	repo.entries["https://contoso-admin.sharepoint.com"] = site.CacheEntry{
		Sites:     []site.Descriptor{{URL: "https://contoso.sharepoint.com/sites/ops"}},
		WrittenAt: fixedNow().Add(-72 * time.Hour),
	}
	client := &stubClient{}
	svc := newTestService(repo, client)

	got, err := svc.GetOrBuild(context.Background(), "https://contoso-admin.sharepoint.com", Options{MaxAge: 72 * time.Hour})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Zero(t, client.connects)
}

func TestGetOrBuild_StaleEntryRebuildsAndPersists(t *testing.T) {
	adminURL := "https://contoso-admin.sharepoint.com"
	repo := newMemoryRepo()
	repo.entries[adminURL] = site.CacheEntry{
		Sites:     []site.Descriptor{{URL: "https://contoso.sharepoint.com/sites/old"}},
		WrittenAt: fixedNow().Add(-72*time.Hour - time.Second),
	}
	client := &stubClient{sites: []site.Descriptor{
		{URL: "https://contoso.sharepoint.com/sites/new", Title: "New", Template: "STS#3"},
	}}
	svc := newTestService(repo, client)

	got, err := svc.GetOrBuild(context.Background(), adminURL, Options{MaxAge: 72 * time.Hour})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/new", got[0].URL)

	persisted := repo.entries[adminURL]
	assert.Equal(t, got, persisted.Sites)
	assert.Equal(t, fixedNow(), persisted.WrittenAt)
}

func TestGetOrBuild_MissingEntryBuilds(t *testing.T) {
	repo := newMemoryRepo()
	client := &stubClient{sites: []site.Descriptor{
		{URL: "https://contoso.sharepoint.com/sites/eng", Template: "STS#3"},
	}}
	svc := newTestService(repo, client)

	got, err := svc.GetOrBuild(context.Background(), "https://contoso-admin.sharepoint.com", Options{MaxAge: time.Hour})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, client.listed)
}

func TestGetOrBuild_ForceRefreshSkipsFreshEntry(t *testing.T) {
	adminURL := "https://contoso-admin.sharepoint.com"
	repo := newMemoryRepo()
	repo.entries[adminURL] = site.CacheEntry{
		Sites:     []site.Descriptor{{URL: "https://contoso.sharepoint.com/sites/cached"}},
		WrittenAt: fixedNow(),
	}
	client := &stubClient{sites: []site.Descriptor{
		{URL: "https://contoso.sharepoint.com/sites/live", Template: "STS#3"},
	}}
	svc := newTestService(repo, client)

	got, err := svc.GetOrBuild(context.Background(), adminURL, Options{MaxAge: 72 * time.Hour, ForceRefresh: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/live", got[0].URL)
	assert.Equal(t, 1, client.connects)
}

func TestGetOrBuild_FilterAppliedToRebuiltList(t *testing.T) {
	repo := newMemoryRepo()
	client := &stubClient{sites: []site.Descriptor{
		{URL: "https://contoso.sharepoint.com/sites/team", Template: "STS#3"},
		{URL: "https://contoso.sharepoint.com/search", Template: site.TemplateSearchCenter},
		{URL: "https://contoso.sharepoint.com/sites/apps", Template: site.TemplateTenantAppCatalog},
	}}
	svc := newTestService(repo, client)

	got, err := svc.GetOrBuild(context.Background(), "https://contoso-admin.sharepoint.com", Options{MaxAge: time.Hour})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/team", got[0].URL)
}

func TestGetOrBuild_RebuildErrorPropagates(t *testing.T) {
	repo := newMemoryRepo()
	client := &stubClient{listErr: shared.ErrConnection}
	svc := newTestService(repo, client)

	_, err := svc.GetOrBuild(context.Background(), "https://contoso-admin.sharepoint.com", Options{MaxAge: time.Hour})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConnection))
}

func TestGetOrBuild_StaleEntryNeverMasksRebuildFailure(t *testing.T) {
	adminURL := "https://contoso-admin.sharepoint.com"
	repo := newMemoryRepo()
	repo.entries[adminURL] = site.CacheEntry{
		Sites:     []site.Descriptor{{URL: "https://contoso.sharepoint.com/sites/old"}},
		WrittenAt: fixedNow().Add(-100 * time.Hour),
	}
	client := &stubClient{connErr: shared.ErrAuth}
	svc := newTestService(repo, client)

	_, err := svc.GetOrBuild(context.Background(), adminURL, Options{MaxAge: 72 * time.Hour})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAuth))
}

func TestGetOrBuild_PersistErrorPropagates(t *testing.T) {
	repo := newMemoryRepo()
	repo.putErr = errors.New("disk full")
	client := &stubClient{sites: []site.Descriptor{{URL: "https://contoso.sharepoint.com/sites/x", Template: "STS#3"}}}
	svc := newTestService(repo, client)

	_, err := svc.GetOrBuild(context.Background(), "https://contoso-admin.sharepoint.com", Options{MaxAge: time.Hour})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persisting site list")
}
