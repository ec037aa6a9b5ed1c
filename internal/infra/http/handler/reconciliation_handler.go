package handler

import (
	"io"
	"net/http"
	"time"

	reconcilesvc "github.com/tenantaudit/api/internal/app/reconcile"
	"github.com/tenantaudit/api/internal/app/report"
	"github.com/tenantaudit/api/internal/infra/jobs"
	"github.com/tenantaudit/api/pkg/apierror"
	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/domain/reconciliation"
	"github.com/tenantaudit/api/pkg/domain/scanrun"
	"github.com/tenantaudit/api/pkg/logger"
)

// ReconciliationHandler handles HTTP requests for OneDrive reconciliation
// runs and their per-user reports.
type ReconciliationHandler struct {
	reconciles *reconcilesvc.Service
	runs       scanrun.Repository
	reports    reconciliation.Repository
	projects   project.Repository
	queue      *jobs.Client
	logger     *logger.Logger
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(
	reconciles *reconcilesvc.Service,
	runs scanrun.Repository,
	reports reconciliation.Repository,
	projects project.Repository,
	queue *jobs.Client,
	log *logger.Logger,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciles: reconciles,
		runs:       runs,
		reports:    reports,
		projects:   projects,
		queue:      queue,
		logger:     log.With("handler", "reconciliation"),
	}
}

// ReportResponse represents one per-user reconciliation verdict.
type ReportResponse struct {
	ID        string `json:"id"`
	SourceUPN string `json:"source_upn"`
	DestUPN   string `json:"dest_upn"`

	SourceFileCount    int        `json:"source_file_count"`
	SourceSizeMB       float64    `json:"source_size_mb"`
	SourceLastModified *time.Time `json:"source_last_modified,omitempty"`
	DestFileCount      int        `json:"dest_file_count"`
	DestSizeMB         float64    `json:"dest_size_mb"`
	DestLastModified   *time.Time `json:"dest_last_modified,omitempty"`

	FilesInBoth        int      `json:"files_in_both"`
	MissingInDestCount int      `json:"missing_in_dest_count"`
	MissingInDestFiles []string `json:"missing_in_dest_files,omitempty"`
	ExtraInDestCount   int      `json:"extra_in_dest_count"`
	ExtraInDestFiles   []string `json:"extra_in_dest_files,omitempty"`
	NewerInDestCount   int      `json:"newer_in_dest_count"`

	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func toReportResponse(rep *reconciliation.Report) ReportResponse {
	return ReportResponse{
		ID:                 rep.ID.String(),
		SourceUPN:          rep.SourceUPN,
		DestUPN:            rep.DestUPN,
		SourceFileCount:    rep.SourceFileCount,
		SourceSizeMB:       rep.SourceSizeMB,
		SourceLastModified: rep.SourceLastModified,
		DestFileCount:      rep.DestFileCount,
		DestSizeMB:         rep.DestSizeMB,
		DestLastModified:   rep.DestLastModified,
		FilesInBoth:        rep.FilesInBoth,
		MissingInDestCount: rep.MissingInDestCount,
		MissingInDestFiles: rep.MissingInDestFiles,
		ExtraInDestCount:   rep.ExtraInDestCount,
		ExtraInDestFiles:   rep.ExtraInDestFiles,
		NewerInDestCount:   rep.NewerInDestCount,
		Status:             rep.Status.String(),
		ErrorMessage:       rep.ErrorMessage,
	}
}

// Trigger handles POST /projects/{id}/reconciliations. It records a queued
// run and hands execution to the worker.
func (h *ReconciliationHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	projectID, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	proj, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if proj.Status != project.StatusActive {
		respondError(w, r, apierror.Conflict("project is archived"))
		return
	}

	run, err := h.reconciles.Enqueue(r.Context(), projectID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	err = h.queue.EnqueueReconcileOneDrive(r.Context(), jobs.ReconcileOneDrivePayload{
		RunID:     run.ID.String(),
		ProjectID: projectID.String(),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.Info("reconciliation queued", "run_id", run.ID, "project_id", projectID)
	respondJSON(w, http.StatusAccepted, toRunResponse(run))
}

// ListReports handles GET /runs/{id}/reports.
func (h *ReconciliationHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reportsForRun(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]ReportResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toReportResponse(rep))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":    out,
		"summary": reconciliation.Summarize(reports),
	})
}

// Summary handles GET /runs/{id}/summary.
func (h *ReconciliationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reportsForRun(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reconciliation.Summarize(reports))
}

// ExportCSV handles GET /runs/{id}/reports/export. With gzip=true the CSV
// body is gzip-compressed.
func (h *ReconciliationHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reportsForRun(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="reconciliation.csv"`)
	if r.URL.Query().Get("gzip") == "true" {
		w.Header().Set("Content-Encoding", "gzip")
		err = report.WriteGzip(w, func(gw io.Writer) error {
			return report.WriteReconciliationCSV(gw, reports)
		})
	} else {
		err = report.WriteReconciliationCSV(w, reports)
	}
	if err != nil {
		h.logger.Error("reconciliation export failed", "error", err)
	}
}

func (h *ReconciliationHandler) reportsForRun(r *http.Request) ([]*reconciliation.Report, error) {
	runID, err := idParam(r, "id")
	if err != nil {
		return nil, err
	}
	run, err := h.runs.GetByID(r.Context(), runID)
	if err != nil {
		return nil, err
	}
	if run.Kind != scanrun.KindFiles {
		return nil, apierror.BadRequest("run is not a reconciliation run")
	}
	return h.reports.ListByRun(r.Context(), runID)
}
