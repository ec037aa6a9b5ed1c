// Package reconcile runs the source-vs-destination OneDrive comparison
// for every user mapping of a migration project.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tenantaudit/api/internal/infra/directory"
	"github.com/tenantaudit/api/internal/metrics"
	"github.com/tenantaudit/api/pkg/domain/inventory"
	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/domain/reconciliation"
	"github.com/tenantaudit/api/pkg/domain/scanrun"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/logger"
)

// InventoryCache caches built inventories per principal. Satisfied by
// the typed Redis cache; tests supply a map-backed fake.
type InventoryCache interface {
	GetOrSet(ctx context.Context, key string, load func(ctx context.Context) (*inventory.FileInventory, error)) (*inventory.FileInventory, bool, error)
}

// Result bundles the finished run with its report rows and verdict
// summary.
type Result struct {
	Run     *scanrun.Run
	Reports []*reconciliation.Report
	Summary reconciliation.Summary
}

// Service executes reconciliation runs.
type Service struct {
	runs     scanrun.Repository
	projects project.Repository
	reports  reconciliation.Repository
	client   directory.Client
	cache    InventoryCache
	log      *logger.Logger
}

// NewService creates a reconciliation service.
func NewService(
	runs scanrun.Repository,
	projects project.Repository,
	reports reconciliation.Repository,
	client directory.Client,
	cache InventoryCache,
	log *logger.Logger,
) *Service {
	return &Service{
		runs:     runs,
		projects: projects,
		reports:  reports,
		client:   client,
		cache:    cache,
		log:      log.With("component", "reconcile_service"),
	}
}

// Enqueue creates a queued reconciliation run for a project.
func (s *Service) Enqueue(ctx context.Context, projectID shared.ID) (*scanrun.Run, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	run, err := scanrun.NewRun(projectID, scanrun.KindFiles)
	if err != nil {
		return nil, err
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("creating reconciliation run: %w", err)
	}
	return run, nil
}

// Execute processes every user mapping of the run's project: build both
// inventories, diff them, emit one report row per pair. A mapping whose
// inventories cannot be built gets an ERROR row; the run itself still
// completes. Mappings are processed in order, one at a time, matching
// the per-user pacing of the drives being walked.
func (s *Service) Execute(ctx context.Context, runID shared.ID) (*Result, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}
	proj, err := s.projects.GetByID(ctx, run.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	mappings, err := s.projects.ListMappings(ctx, run.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("loading user mappings: %w", err)
	}

	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("marking run started: %w", err)
	}

	started := time.Now()
	reports := make([]*reconciliation.Report, 0, len(mappings))
	var succeeded, failed int
	for _, m := range mappings {
		if err := ctx.Err(); err != nil {
			s.finishCanceled(run)
			return &Result{Run: run, Reports: reports, Summary: reconciliation.Summarize(reports)}, err
		}
		report := s.reconcileMapping(ctx, run, proj, m)
		reports = append(reports, report)
		if report.Status == reconciliation.StatusError {
			failed++
		} else {
			succeeded++
		}
	}

	if err := s.reports.CreateBatch(ctx, reports); err != nil {
		s.finishFailed(ctx, run, fmt.Sprintf("persisting reports: %v", err))
		return nil, fmt.Errorf("persisting reports: %w", err)
	}

	if err := run.Complete(len(mappings), succeeded, failed, len(reports)); err != nil {
		return nil, err
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("marking run completed: %w", err)
	}

	summary := reconciliation.Summarize(reports)
	metrics.ScanRunsTotal.WithLabelValues(run.Kind.String(), run.Status.String()).Inc()
	metrics.ScanRunDuration.WithLabelValues(run.Kind.String()).Observe(time.Since(started).Seconds())
	s.log.Info("reconciliation completed",
		"run_id", run.ID.String(),
		"mappings", len(mappings),
		"pass", summary.Pass,
		"fail", summary.Fail,
		"error", summary.Error,
	)
	return &Result{Run: run, Reports: reports, Summary: summary}, nil
}

// reconcileMapping produces the report row for one (source, dest) pair.
func (s *Service) reconcileMapping(ctx context.Context, run *scanrun.Run, proj *project.Project, m project.UserMapping) *reconciliation.Report {
	sourceURL := PersonalSiteURL(MyHostFromAdminURL(proj.SourceAdminURL), m.SourceUPN)
	destURL := PersonalSiteURL(MyHostFromAdminURL(proj.DestAdminURL), m.DestUPN)

	source, err := s.inventoryFor(ctx, sourceURL, m.FolderPath)
	if err != nil {
		s.log.Warn("source inventory unavailable", "upn", m.SourceUPN, "error", err)
		return reconciliation.NewErrorReport(run.ID, run.ProjectID, m.SourceUPN, m.DestUPN,
			fmt.Sprintf("building source inventory: %v", err))
	}
	dest, err := s.inventoryFor(ctx, destURL, m.FolderPath)
	if err != nil {
		s.log.Warn("destination inventory unavailable", "upn", m.DestUPN, "error", err)
		return reconciliation.NewErrorReport(run.ID, run.ProjectID, m.SourceUPN, m.DestUPN,
			fmt.Sprintf("building destination inventory: %v", err))
	}

	diff := inventory.Reconcile(source, dest)
	return reconciliation.NewReport(run.ID, run.ProjectID, m.SourceUPN, m.DestUPN, source, dest, diff)
}

// inventoryFor returns the cached inventory for one drive, building it
// through the directory client on a miss. An absent folder is an empty
// inventory, not an error.
func (s *Service) inventoryFor(ctx context.Context, siteURL, folderPath string) (*inventory.FileInventory, error) {
	key := siteURL
	if folderPath != "" {
		key += "#" + folderPath
	}

	inv, hit, err := s.cache.GetOrSet(ctx, key, func(ctx context.Context) (*inventory.FileInventory, error) {
		return s.buildInventory(ctx, siteURL, folderPath)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		metrics.InventoryCacheHitsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.InventoryCacheHitsTotal.WithLabelValues("miss").Inc()
	}
	return inv, nil
}

func (s *Service) buildInventory(ctx context.Context, siteURL, folderPath string) (*inventory.FileInventory, error) {
	conn, err := s.client.Connect(ctx, siteURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", siteURL, err)
	}
	defer conn.Close()

	files, err := s.client.ListFilesRecursive(ctx, conn, folderPath)
	if err != nil {
		if shared.IsNotFound(err) {
			return inventory.Empty(), nil
		}
		return nil, fmt.Errorf("listing files under %s: %w", siteURL, err)
	}
	return inventory.Build(files), nil
}

func (s *Service) finishFailed(ctx context.Context, run *scanrun.Run, msg string) {
	if err := run.Fail(msg); err != nil {
		s.log.Error("marking run failed", "run_id", run.ID.String(), "error", err)
		return
	}
	if err := s.runs.Update(ctx, run); err != nil {
		s.log.Error("persisting failed run", "run_id", run.ID.String(), "error", err)
	}
	metrics.ScanRunsTotal.WithLabelValues(run.Kind.String(), run.Status.String()).Inc()
}

func (s *Service) finishCanceled(run *scanrun.Run) {
	if err := run.Cancel(); err != nil {
		s.log.Error("marking run canceled", "run_id", run.ID.String(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.Update(ctx, run); err != nil {
		s.log.Error("persisting canceled run", "run_id", run.ID.String(), "error", err)
	}
	metrics.ScanRunsTotal.WithLabelValues(run.Kind.String(), run.Status.String()).Inc()
}

// MyHostFromAdminURL maps a tenant admin host to its personal-sites
// host: contoso-admin.sharepoint.com becomes contoso-my.sharepoint.com.
func MyHostFromAdminURL(adminURL string) string {
	return strings.Replace(adminURL, "-admin.sharepoint.com", "-my.sharepoint.com", 1)
}

// PersonalSiteURL derives a user's personal site URL from the my-host
// and their UPN: dots and the at sign become underscores.
func PersonalSiteURL(myHost, upn string) string {
	seg := strings.ToLower(upn)
	seg = strings.NewReplacer("@", "_", ".", "_", "-", "_").Replace(seg)
	return strings.TrimRight(myHost, "/") + "/personal/" + seg
}
