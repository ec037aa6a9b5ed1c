package handler

import (
	"net/http"
	"time"

	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/logger"
	"github.com/tenantaudit/api/pkg/validator"
)

// ProjectHandler handles HTTP requests for migration projects and their
// user mappings.
type ProjectHandler struct {
	projects  project.Repository
	validator *validator.Validator
	logger    *logger.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects project.Repository, v *validator.Validator, log *logger.Logger) *ProjectHandler {
	return &ProjectHandler{
		projects:  projects,
		validator: v,
		logger:    log.With("handler", "project"),
	}
}

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name           string `json:"name" validate:"required,min=1,max=200"`
	SourceAdminURL string `json:"source_admin_url" validate:"required,admin_url"`
	DestAdminURL   string `json:"dest_admin_url" validate:"required,admin_url"`
}

// UserMappingRequest represents one user mapping in a replace request.
type UserMappingRequest struct {
	SourceUPN  string `json:"source_upn" validate:"required,upn"`
	DestUPN    string `json:"dest_upn" validate:"required,upn"`
	FolderPath string `json:"folder_path" validate:"max=400"`
}

// ReplaceMappingsRequest represents the request body for replacing the full
// mapping set of a project.
type ReplaceMappingsRequest struct {
	Mappings []UserMappingRequest `json:"mappings" validate:"required,dive"`
}

// ProjectResponse represents a project in API responses.
type ProjectResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SourceAdminURL string    `json:"source_admin_url"`
	DestAdminURL   string    `json:"dest_admin_url"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserMappingResponse represents a user mapping in API responses.
type UserMappingResponse struct {
	SourceUPN  string `json:"source_upn"`
	DestUPN    string `json:"dest_upn"`
	FolderPath string `json:"folder_path,omitempty"`
}

func toProjectResponse(p *project.Project) ProjectResponse {
	return ProjectResponse{
		ID:             p.ID.String(),
		Name:           p.Name,
		SourceAdminURL: p.SourceAdminURL,
		DestAdminURL:   p.DestAdminURL,
		Status:         p.Status.String(),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// Create handles POST /projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := project.New(req.Name, req.SourceAdminURL, req.DestAdminURL)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.projects.Create(r.Context(), p); err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.Info("project created", "project_id", p.ID, "name", p.Name)
	respondJSON(w, http.StatusCreated, toProjectResponse(p))
}

// Get handles GET /projects/{id}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.projects.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProjectResponse(p))
}

// List handles GET /projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p))
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": out})
}

// Archive handles POST /projects/{id}/archive.
func (h *ProjectHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.projects.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	p.Archive()
	if err := h.projects.Update(r.Context(), p); err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.Info("project archived", "project_id", p.ID)
	respondJSON(w, http.StatusOK, toProjectResponse(p))
}

// ListMappings handles GET /projects/{id}/mappings.
func (h *ProjectHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := h.projects.GetByID(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	mappings, err := h.projects.ListMappings(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]UserMappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, UserMappingResponse{
			SourceUPN:  m.SourceUPN,
			DestUPN:    m.DestUPN,
			FolderPath: m.FolderPath,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": out})
}

// ReplaceMappings handles PUT /projects/{id}/mappings. The full mapping set
// is swapped in one transaction.
func (h *ProjectHandler) ReplaceMappings(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := h.projects.GetByID(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	var req ReplaceMappingsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, r, err)
		return
	}

	mappings := make([]project.UserMapping, 0, len(req.Mappings))
	for _, m := range req.Mappings {
		mappings = append(mappings, project.UserMapping{
			ProjectID:  id,
			SourceUPN:  m.SourceUPN,
			DestUPN:    m.DestUPN,
			FolderPath: m.FolderPath,
		})
	}
	if err := h.projects.ReplaceMappings(r.Context(), id, mappings); err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.Info("user mappings replaced", "project_id", id, "count", len(mappings))
	respondJSON(w, http.StatusOK, map[string]any{"replaced": len(mappings)})
}
