// Package schedule runs recurring audits: a cron entry per project
// that enqueues a fresh scan or reconciliation run on each tick.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tenantaudit/api/internal/app/reconcile"
	"github.com/tenantaudit/api/internal/app/scan"
	"github.com/tenantaudit/api/internal/infra/jobs"
	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/logger"
)

// Scheduler owns the cron table. Entries only enqueue; the actual work
// runs on the job worker.
type Scheduler struct {
	cron       *cron.Cron
	scans      *scan.Service
	reconciles *reconcile.Service
	client     *jobs.Client
	projects   project.Repository
	log        *logger.Logger
}

// NewScheduler creates a scheduler. Standard five-field cron specs.
func NewScheduler(
	scans *scan.Service,
	reconciles *reconcile.Service,
	client *jobs.Client,
	projects project.Repository,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		scans:      scans,
		reconciles: reconciles,
		client:     client,
		projects:   projects,
		log:        log.With("component", "scheduler"),
	}
}

// ValidateSpec checks a cron expression without registering it.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// ScheduleAppScan registers a recurring app scan for a project.
func (s *Scheduler) ScheduleAppScan(spec string, projectID shared.ID) (cron.EntryID, error) {
	if err := ValidateSpec(spec); err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, func() {
		s.enqueueAppScan(projectID)
	})
}

// ScheduleReconciliation registers a recurring reconciliation for a
// project.
func (s *Scheduler) ScheduleReconciliation(spec string, projectID shared.ID) (cron.EntryID, error) {
	if err := ValidateSpec(spec); err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, func() {
		s.enqueueReconciliation(projectID)
	})
}

// Remove drops a scheduled entry.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Start begins firing entries.
func (s *Scheduler) Start() {
	s.log.Info("scheduler starting", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop halts the cron table and waits for in-flight entry functions.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) enqueueAppScan(projectID shared.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	proj, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		s.log.Error("scheduled scan: loading project", "project_id", projectID.String(), "error", err)
		return
	}
	if proj.Status != project.StatusActive {
		s.log.Debug("scheduled scan skipped, project archived", "project_id", projectID.String())
		return
	}

	run, err := s.scans.EnqueueAppScan(ctx, projectID)
	if err != nil {
		s.log.Error("scheduled scan: creating run", "project_id", projectID.String(), "error", err)
		return
	}

	err = s.client.EnqueueScanTenantApps(ctx, jobs.ScanTenantAppsPayload{
		RunID:     run.ID.String(),
		ProjectID: projectID.String(),
		AdminURL:  proj.SourceAdminURL,
	})
	if err != nil {
		s.log.Error("scheduled scan: enqueueing job", "run_id", run.ID.String(), "error", err)
	}
}

func (s *Scheduler) enqueueReconciliation(projectID shared.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	proj, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		s.log.Error("scheduled reconciliation: loading project", "project_id", projectID.String(), "error", err)
		return
	}
	if proj.Status != project.StatusActive {
		return
	}

	run, err := s.reconciles.Enqueue(ctx, projectID)
	if err != nil {
		s.log.Error("scheduled reconciliation: creating run", "project_id", projectID.String(), "error", err)
		return
	}

	err = s.client.EnqueueReconcileOneDrive(ctx, jobs.ReconcileOneDrivePayload{
		RunID:     run.ID.String(),
		ProjectID: projectID.String(),
	})
	if err != nil {
		s.log.Error("scheduled reconciliation: enqueueing job", "run_id", run.ID.String(), "error", err)
	}
}
