package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantaudit/api/internal/infra/directory"
	"github.com/tenantaudit/api/pkg/domain/appcatalog"
	"github.com/tenantaudit/api/pkg/domain/inventory"
	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/domain/reconciliation"
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
	r.runs[run.ID] = run
	return nil
}

func (r *mockRunRepo) List(_ context.Context, _ scanrun.Filter, page pagination.Pagination) (pagination.Result[*scanrun.Run], error) {
	return pagination.NewResult([]*scanrun.Run{}, 0, page), nil
}

type mockProjectRepo struct {
	projects map[shared.ID]*project.Project
	mappings map[shared.ID][]project.UserMapping
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{
		projects: make(map[shared.ID]*project.Project),
		mappings: make(map[shared.ID][]project.UserMapping),
	}
}

func (r *mockProjectRepo) Create(_ context.Context, p *project.Project) error {
	r.projects[p.ID] = p
	return nil
}

func (r *mockProjectRepo) GetByID(_ context.Context, id shared.ID) (*project.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *mockProjectRepo) Update(_ context.Context, p *project.Project) error {
	r.projects[p.ID] = p
	return nil
}

func (r *mockProjectRepo) List(_ context.Context) ([]*project.Project, error) {
	out := make([]*project.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	return out, nil
}

func (r *mockProjectRepo) ListMappings(_ context.Context, projectID shared.ID) ([]project.UserMapping, error) {
	return r.mappings[projectID], nil
}

func (r *mockProjectRepo) ReplaceMappings(_ context.Context, projectID shared.ID, mappings []project.UserMapping) error {
	r.mappings[projectID] = mappings
	return nil
}

type mockReportRepo struct {
	batches [][]*reconciliation.Report
	err     error
}

func (r *mockReportRepo) CreateBatch(_ context.Context, reports []*reconciliation.Report) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, reports)
	return nil
}

func (r *mockReportRepo) ListByRun(_ context.Context, _ shared.ID) ([]*reconciliation.Report, error) {
	if len(r.batches) == 0 {
		return nil, nil
	}
	return r.batches[len(r.batches)-1], nil
}

type fakeConn struct{ url string }

func (c *fakeConn) URL() string  { return c.url }
func (c *fakeConn) Close() error { return nil }

// fakeDrives maps personal site URL to its file listing or error.
type fakeDrives struct {
	files map[string][]inventory.FileRecord
	errs  map[string]error
}

func (d *fakeDrives) Connect(_ context.Context, url string) (directory.Connection, error) {
	return &fakeConn{url: url}, nil
}

func (d *fakeDrives) ListSiteCollections(_ context.Context, _ directory.Connection, _ directory.ListSitesOptions) ([]site.Descriptor, error) {
	return nil, nil
}

func (d *fakeDrives) ListInstalledApps(_ context.Context, _ directory.Connection, _ appcatalog.InstallScope) ([]appcatalog.Record, error) {
	return nil, nil
}

func (d *fakeDrives) ListFilesRecursive(_ context.Context, conn directory.Connection, _ string) ([]inventory.FileRecord, error) {
	if err, ok := d.errs[conn.URL()]; ok {
		return nil, err
	}
	files, ok := d.files[conn.URL()]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return files, nil
}

// passthroughCache never hits; every lookup runs the loader.
type passthroughCache struct {
	loads int
}

func (c *passthroughCache) GetOrSet(ctx context.Context, _ string, load func(ctx context.Context) (*inventory.FileInventory, error)) (*inventory.FileInventory, bool, error) {
	c.loads++
	inv, err := load(ctx)
	return inv, false, err
}

func newFixture(t *testing.T, drives *fakeDrives, mappings []project.UserMapping) (*Service, *mockRunRepo, *mockReportRepo, shared.ID) {
	t.Helper()
	runs := newMockRunRepo()
	projects := newMockProjectRepo()
	reports := &mockReportRepo{}

	proj, err := project.New("wave 1", "https://contoso-admin.sharepoint.com", "https://fabrikam-admin.sharepoint.com")
	require.NoError(t, err)
	require.NoError(t, projects.Create(context.Background(), proj))
	require.NoError(t, projects.ReplaceMappings(context.Background(), proj.ID, mappings))

	svc := NewService(runs, projects, reports, drives, &passthroughCache{}, logger.NewNop())
	return svc, runs, reports, proj.ID
}

func mod(day int) time.Time {
	return time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
}

func TestExecute_PassWhenNothingMissing(t *testing.T) {
	sourceURL := "https://contoso-my.sharepoint.com/personal/alice_contoso_com"
	destURL := "https://fabrikam-my.sharepoint.com/personal/alice_fabrikam_com"
	drives := &fakeDrives{files: map[string][]inventory.FileRecord{
		sourceURL: {{Name: "a.txt", SizeBytes: 10, ModifiedAt: mod(1)}},
		destURL:   {{Name: "a.txt", SizeBytes: 10, ModifiedAt: mod(1)}},
	}}
	svc, _, _, projectID := newFixture(t, drives, []project.UserMapping{
		{SourceUPN: "alice@contoso.com", DestUPN: "alice@fabrikam.com"},
	})

	run, err := svc.Enqueue(context.Background(), projectID)
	require.NoError(t, err)
	result, err := svc.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	require.Len(t, result.Reports, 1)
	assert.Equal(t, reconciliation.StatusPass, result.Reports[0].Status)
	assert.Equal(t, reconciliation.Summary{Pass: 1}, result.Summary)
	assert.Equal(t, scanrun.StatusCompleted, result.Run.Status)
}

func TestExecute_FailWhenFilesMissingInDest(t *testing.T) {
	sourceURL := "https://contoso-my.sharepoint.com/personal/bob_contoso_com"
	destURL := "https://fabrikam-my.sharepoint.com/personal/bob_fabrikam_com"
	drives := &fakeDrives{files: map[string][]inventory.FileRecord{
		sourceURL: {
			{Name: "a.txt", ModifiedAt: mod(1)},
			{Name: "b.txt", ModifiedAt: mod(1)},
		},
		destURL: {
			{Name: "a.txt", ModifiedAt: mod(2)},
			{Name: "c.txt", ModifiedAt: mod(1)},
		},
	}}
	svc, _, _, projectID := newFixture(t, drives, []project.UserMapping{
		{SourceUPN: "bob@contoso.com", DestUPN: "bob@fabrikam.com"},
	})

	run, err := svc.Enqueue(context.Background(), projectID)
	require.NoError(t, err)
	result, err := svc.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	require.Len(t, result.Reports, 1)
	report := result.Reports[0]
	assert.Equal(t, reconciliation.StatusFail, report.Status)
	assert.Equal(t, []string{"b.txt"}, report.MissingInDestFiles)
	assert.Equal(t, []string{"c.txt"}, report.ExtraInDestFiles)
	assert.Equal(t, 1, report.NewerInDestCount)
	assert.Equal(t, 1, report.FilesInBoth)
}

func TestExecute_AbsentDriveIsEmptyInventoryNotError(t *testing.T) {
	sourceURL := "https://contoso-my.sharepoint.com/personal/carol_contoso_com"
	drives := &fakeDrives{files: map[string][]inventory.FileRecord{
		sourceURL: {{Name: "a.txt", ModifiedAt: mod(1)}},
		// dest drive absent: ListFilesRecursive returns ErrNotFound
	}}
	svc, _, _, projectID := newFixture(t, drives, []project.UserMapping{
		{SourceUPN: "carol@contoso.com", DestUPN: "carol@fabrikam.com"},
	})

	run, err := svc.Enqueue(context.Background(), projectID)
	require.NoError(t, err)
	result, err := svc.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	require.Len(t, result.Reports, 1)
	report := result.Reports[0]
	assert.Equal(t, reconciliation.StatusFail, report.Status, "missing dest drive means every source file is missing")
	assert.Equal(t, 0, report.DestFileCount)
	assert.Equal(t, []string{"a.txt"}, report.MissingInDestFiles)
}

func TestExecute_ConnectionFailureYieldsErrorRow(t *testing.T) {
	sourceURL := "https://contoso-my.sharepoint.com/personal/dave_contoso_com"
	drives := &fakeDrives{
		files: map[string][]inventory.FileRecord{},
		errs:  map[string]error{sourceURL: shared.ErrConnection},
	}
	svc, _, _, projectID := newFixture(t, drives, []project.UserMapping{
		{SourceUPN: "dave@contoso.com", DestUPN: "dave@fabrikam.com"},
	})

	run, err := svc.Enqueue(context.Background(), projectID)
	require.NoError(t, err)
	result, err := svc.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	require.Len(t, result.Reports, 1)
	assert.Equal(t, reconciliation.StatusError, result.Reports[0].Status)
	assert.Contains(t, result.Reports[0].ErrorMessage, "source inventory")
	assert.Equal(t, reconciliation.Summary{Error: 1}, result.Summary)
	assert.Equal(t, scanrun.StatusCompleted, result.Run.Status, "per-mapping errors never fail the run")
}

func TestExecute_MixedVerdictSummary(t *testing.T) {
	drives := &fakeDrives{
		files: map[string][]inventory.FileRecord{
			"https://contoso-my.sharepoint.com/personal/p1_contoso_com":   {{Name: "a.txt", ModifiedAt: mod(1)}},
			"https://fabrikam-my.sharepoint.com/personal/p1_fabrikam_com": {{Name: "a.txt", ModifiedAt: mod(1)}},
			"https://contoso-my.sharepoint.com/personal/p2_contoso_com":   {{Name: "x.txt", ModifiedAt: mod(1)}},
			"https://fabrikam-my.sharepoint.com/personal/p2_fabrikam_com": {},
		},
		errs: map[string]error{
			"https://contoso-my.sharepoint.com/personal/p3_contoso_com": shared.ErrAuth,
		},
	}
	svc, _, reportRepo, projectID := newFixture(t, drives, []project.UserMapping{
		{SourceUPN: "p1@contoso.com", DestUPN: "p1@fabrikam.com"},
		{SourceUPN: "p2@contoso.com", DestUPN: "p2@fabrikam.com"},
		{SourceUPN: "p3@contoso.com", DestUPN: "p3@fabrikam.com"},
	})

	run, err := svc.Enqueue(context.Background(), projectID)
	require.NoError(t, err)
	result, err := svc.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, reconciliation.Summary{Pass: 1, Fail: 1, Error: 1}, result.Summary)
	assert.Equal(t, 3, result.Run.SitesTotal)
	assert.Equal(t, 2, result.Run.SitesSucceeded)
	assert.Equal(t, 1, result.Run.SitesFailed)
	require.Len(t, reportRepo.batches, 1, "reports persisted in one batch")
}

func TestExecute_EmptyMappingSet(t *testing.T) {
	svc, _, _, projectID := newFixture(t, &fakeDrives{}, nil)

	run, err := svc.Enqueue(context.Background(), projectID)
	require.NoError(t, err)
	result, err := svc.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Empty(t, result.Reports)
	assert.Equal(t, scanrun.StatusCompleted, result.Run.Status)
}

func TestEnqueue_UnknownProject(t *testing.T) {
	svc, _, _, _ := newFixture(t, &fakeDrives{}, nil)
	_, err := svc.Enqueue(context.Background(), shared.NewID())
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestPersonalSiteURL(t *testing.T) {
	host := MyHostFromAdminURL("https://contoso-admin.sharepoint.com")
	assert.Equal(t, "https://contoso-my.sharepoint.com", host)
	assert.Equal(t,
		"https://contoso-my.sharepoint.com/personal/jane_doe_contoso_com",
		PersonalSiteURL(host, "Jane.Doe@contoso.com"))
}
