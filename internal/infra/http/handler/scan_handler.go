package handler

import (
	"net/http"
	"time"

	scansvc "github.com/tenantaudit/api/internal/app/scan"
	"github.com/tenantaudit/api/internal/infra/jobs"
	"github.com/tenantaudit/api/pkg/apierror"
	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/domain/scanrun"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/logger"
	"github.com/tenantaudit/api/pkg/pagination"
)

// ScanHandler handles HTTP requests for scan runs.
type ScanHandler struct {
	scans    *scansvc.Service
	runs     scanrun.Repository
	projects project.Repository
	queue    *jobs.Client
	logger   *logger.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(
	scans *scansvc.Service,
	runs scanrun.Repository,
	projects project.Repository,
	queue *jobs.Client,
	log *logger.Logger,
) *ScanHandler {
	return &ScanHandler{
		scans:    scans,
		runs:     runs,
		projects: projects,
		queue:    queue,
		logger:   log.With("handler", "scan"),
	}
}

// RunResponse represents a scan run in API responses.
type RunResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`

	SitesTotal     int `json:"sites_total"`
	SitesSucceeded int `json:"sites_succeeded"`
	SitesFailed    int `json:"sites_failed"`
	RowsCollected  int `json:"rows_collected"`

	ErrorMessage string `json:"error_message,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRunResponse(run *scanrun.Run) RunResponse {
	return RunResponse{
		ID:             run.ID.String(),
		ProjectID:      run.ProjectID.String(),
		Kind:           run.Kind.String(),
		Status:         run.Status.String(),
		SitesTotal:     run.SitesTotal,
		SitesSucceeded: run.SitesSucceeded,
		SitesFailed:    run.SitesFailed,
		RowsCollected:  run.RowsCollected,
		ErrorMessage:   run.ErrorMessage,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		DurationMs:     run.DurationMs,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
	}
}

// TriggerAppScan handles POST /projects/{id}/scans/apps. It records a queued
// run and hands execution to the worker.
func (h *ScanHandler) TriggerAppScan(w http.ResponseWriter, r *http.Request) {
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

	run, err := h.scans.EnqueueAppScan(r.Context(), projectID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	err = h.queue.EnqueueScanTenantApps(r.Context(), jobs.ScanTenantAppsPayload{
		RunID:     run.ID.String(),
		ProjectID: projectID.String(),
		AdminURL:  proj.SourceAdminURL,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.Info("app scan queued", "run_id", run.ID, "project_id", projectID)
	respondJSON(w, http.StatusAccepted, toRunResponse(run))
}

// GetRun handles GET /runs/{id}.
func (h *ScanHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRunResponse(run))
}

// ListRuns handles GET /runs with optional project_id, kind and status
// query filters.
func (h *ScanHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRunFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.runs.List(r.Context(), filter, parsePagination(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]RunResponse, 0, len(result.Data))
	for _, run := range result.Data {
		out = append(out, toRunResponse(run))
	}
	respondJSON(w, http.StatusOK, pagination.Result[RunResponse]{
		Data:       out,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}

func parseRunFilter(r *http.Request) (scanrun.Filter, error) {
	var filter scanrun.Filter

	q := r.URL.Query()
	if raw := q.Get("project_id"); raw != "" {
		id, err := shared.IDFromString(raw)
		if err != nil {
			return filter, apierror.BadRequest("invalid project_id")
		}
		filter.ProjectID = &id
	}
	if raw := q.Get("kind"); raw != "" {
		kind := scanrun.Kind(raw)
		if !kind.IsValid() {
			return filter, apierror.BadRequest("invalid kind")
		}
		filter.Kinds = []scanrun.Kind{kind}
	}
	if raw := q.Get("status"); raw != "" {
		status := scanrun.Status(raw)
		if !status.IsValid() {
			return filter, apierror.BadRequest("invalid status")
		}
		filter.Statuses = []scanrun.Status{status}
	}
	return filter, nil
}
