package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/tenantaudit/api/internal/app/reconcile"
	"github.com/tenantaudit/api/internal/app/report"
	"github.com/tenantaudit/api/internal/app/scan"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/logger"
)

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Worker processes background jobs.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logger.Logger
}

// NewWorker creates a new background job worker.
func NewWorker(cfg WorkerConfig, scanSvc *scan.Service, reconcileSvc *reconcile.Service, exporter *report.Exporter, log *logger.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"default": 5,
				"scans":   10,
			},
		},
	)

	handler := &taskHandler{
		scans:      scanSvc,
		reconciles: reconcileSvc,
		exporter:   exporter,
		logger:     log.With("component", "job_worker"),
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeScanTenantApps, handler.HandleScanTenantApps)
	mux.HandleFunc(TypeReconcileOneDrive, handler.HandleReconcileOneDrive)

	return &Worker{
		server: server,
		mux:    mux,
		logger: log,
	}
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
}

type taskHandler struct {
	scans      *scan.Service
	reconciles *reconcile.Service
	exporter   *report.Exporter
	logger     *logger.Logger
}

// HandleScanTenantApps executes a queued tenant app scan.
func (h *taskHandler) HandleScanTenantApps(ctx context.Context, t *asynq.Task) error {
	var payload ScanTenantAppsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal scan payload: %w", err)
	}

	runID, err := shared.IDFromString(payload.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id in payload: %w", err)
	}

	h.logger.Info("app scan starting", "run_id", payload.RunID, "admin_url", payload.AdminURL)
	result, err := h.scans.ExecuteAppScan(ctx, runID, payload.AdminURL)
	if err != nil {
		h.logger.Error("app scan failed", "run_id", payload.RunID, "error", err)
		return err
	}

	// The run record only keeps counters; the CSV is the durable form
	// of the per-site rows. An export failure is logged, not retried:
	// the scan itself finished.
	path, err := h.exporter.ExportAppReport(runID, result.Outcomes)
	if err != nil {
		h.logger.Error("app report export failed", "run_id", payload.RunID, "error", err)
	}

	h.logger.Info("app scan finished",
		"run_id", payload.RunID,
		"sites_succeeded", result.Run.SitesSucceeded,
		"sites_failed", result.Run.SitesFailed,
		"rows", result.Run.RowsCollected,
		"report", path,
	)
	return nil
}

// HandleReconcileOneDrive executes a queued reconciliation run.
func (h *taskHandler) HandleReconcileOneDrive(ctx context.Context, t *asynq.Task) error {
	var payload ReconcileOneDrivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal reconcile payload: %w", err)
	}

	runID, err := shared.IDFromString(payload.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id in payload: %w", err)
	}

	h.logger.Info("reconciliation starting", "run_id", payload.RunID)
	result, err := h.reconciles.Execute(ctx, runID)
	if err != nil {
		h.logger.Error("reconciliation failed", "run_id", payload.RunID, "error", err)
		return err
	}

	path, err := h.exporter.ExportReconciliation(runID, result.Reports)
	if err != nil {
		h.logger.Error("reconciliation export failed", "run_id", payload.RunID, "error", err)
	}

	h.logger.Info("reconciliation finished",
		"run_id", payload.RunID,
		"pass", result.Summary.Pass,
		"fail", result.Summary.Fail,
		"error", result.Summary.Error,
		"report", path,
	)
	return nil
}
