package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tenantaudit/api/internal/app/sitecache"
	"github.com/tenantaudit/api/internal/config"
	"github.com/tenantaudit/api/internal/infra/directory"
	"github.com/tenantaudit/api/internal/metrics"
	"github.com/tenantaudit/api/pkg/domain/appcatalog"
	"github.com/tenantaudit/api/pkg/domain/scanrun"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/domain/site"
	"github.com/tenantaudit/api/pkg/logger"
)

// AppScanResult bundles a finished run record with the raw per-site
// outcomes for the report assembler.
type AppScanResult struct {
	Run      *scanrun.Run
	Outcomes []Outcome[[]appcatalog.Record]
}

// Service orchestrates tenant-wide app scans: resolve the site list,
// fan out over it with the bounded scanner, and track the run record
// through its lifecycle.
type Service struct {
	runs      scanrun.Repository
	siteCache *sitecache.Service
	client    directory.Client
	scanCfg   config.ScannerConfig
	cacheCfg  config.SiteCacheConfig
	log       *logger.Logger
}

// NewService creates a scan service.
func NewService(
	runs scanrun.Repository,
	siteCache *sitecache.Service,
	client directory.Client,
	scanCfg config.ScannerConfig,
	cacheCfg config.SiteCacheConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		runs:      runs,
		siteCache: siteCache,
		client:    client,
		scanCfg:   scanCfg,
		cacheCfg:  cacheCfg,
		log:       log.With("component", "scan_service"),
	}
}

// EnqueueAppScan creates a queued run record. The worker picks it up
// through ExecuteAppScan.
func (s *Service) EnqueueAppScan(ctx context.Context, projectID shared.ID) (*scanrun.Run, error) {
	run, err := scanrun.NewRun(projectID, scanrun.KindApps)
	if err != nil {
		return nil, err
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("creating scan run: %w", err)
	}
	return run, nil
}

// ExecuteAppScan runs a queued app scan to completion. The site list
// comes from the cache (rebuilt when stale), every site goes through
// Connect, ListInstalledApps, Close, and per-site failures are folded
// into the run counters. Only whole-run failures, an unusable site
// list or cancellation, move the run to failed or canceled.
func (s *Service) ExecuteAppScan(ctx context.Context, runID shared.ID, adminURL string) (*AppScanResult, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading scan run: %w", err)
	}
	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("marking run started: %w", err)
	}

	sites, err := s.siteCache.GetOrBuild(ctx, adminURL, sitecache.Options{
		MaxAge:       s.cacheCfg.MaxAge,
		ForceRefresh: s.cacheCfg.ForceRefresh,
	})
	if err != nil {
		s.finishFailed(ctx, run, fmt.Sprintf("resolving site list: %v", err))
		return nil, fmt.Errorf("resolving site list: %w", err)
	}

	scanner := NewScanner[[]appcatalog.Record](s.scanCfg, s.log)
	started := time.Now()
	outcomes, scanErr := scanner.Run(ctx, sites, s.scanSiteApps)
	if scanErr != nil {
		if errors.Is(scanErr, context.Canceled) || errors.Is(scanErr, context.DeadlineExceeded) {
			s.finishCanceled(run)
			return &AppScanResult{Run: run, Outcomes: outcomes}, scanErr
		}
		s.finishFailed(ctx, run, scanErr.Error())
		return nil, scanErr
	}

	succeeded, failed, rows := tally(outcomes)
	if err := run.Complete(len(sites), succeeded, failed, rows); err != nil {
		return nil, err
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("marking run completed: %w", err)
	}

	metrics.ScanRunsTotal.WithLabelValues(run.Kind.String(), run.Status.String()).Inc()
	metrics.ScanRunDuration.WithLabelValues(run.Kind.String()).Observe(time.Since(started).Seconds())
	s.log.Info("app scan completed",
		"run_id", run.ID.String(),
		"sites_total", len(sites),
		"sites_succeeded", succeeded,
		"sites_failed", failed,
		"rows", rows,
	)
	return &AppScanResult{Run: run, Outcomes: outcomes}, nil
}

// scanSiteApps is the per-site task: one short-lived connection, one
// app listing, released on every exit path.
func (s *Service) scanSiteApps(ctx context.Context, desc site.Descriptor) ([]appcatalog.Record, error) {
	conn, err := s.client.Connect(ctx, desc.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", desc.URL, err)
	}
	defer conn.Close()

	records, err := s.client.ListInstalledApps(ctx, conn, appcatalog.ScopeSite)
	if err != nil {
		return nil, fmt.Errorf("listing apps on %s: %w", desc.URL, err)
	}
	for i := range records {
		records[i].SiteURL = desc.URL
	}
	return records, nil
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

// finishCanceled persists the canceled state on a fresh context; the
// run's own context is already dead.
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

// tally folds outcomes into the run's summary counters.
func tally[R ~[]E, E any](outcomes []Outcome[R]) (succeeded, failed, rows int) {
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		succeeded++
		rows += len(o.Value)
	}
	return succeeded, failed, rows
}
