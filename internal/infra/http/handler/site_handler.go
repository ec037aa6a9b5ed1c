package handler

import (
	"io"
	"net/http"

	"github.com/tenantaudit/api/internal/app/report"
	"github.com/tenantaudit/api/internal/app/sitecache"
	"github.com/tenantaudit/api/internal/config"
	"github.com/tenantaudit/api/pkg/apierror"
	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/domain/site"
	"github.com/tenantaudit/api/pkg/logger"
)

// SiteHandler serves the cached site lists of a project's tenants.
type SiteHandler struct {
	sites    *sitecache.Service
	projects project.Repository
	cfg      config.SiteCacheConfig
	logger   *logger.Logger
}

// NewSiteHandler creates a new SiteHandler.
func NewSiteHandler(sites *sitecache.Service, projects project.Repository, cfg config.SiteCacheConfig, log *logger.Logger) *SiteHandler {
	return &SiteHandler{
		sites:    sites,
		projects: projects,
		cfg:      cfg,
		logger:   log.With("handler", "site"),
	}
}

// SiteListResponse represents a tenant site list in API responses.
type SiteListResponse struct {
	AdminURL string            `json:"admin_url"`
	Count    int               `json:"count"`
	Sites    []site.Descriptor `json:"sites"`
}

// List handles GET /projects/{id}/sites. The side query parameter selects
// the source or destination tenant; force=true discards the cached list.
func (h *SiteHandler) List(w http.ResponseWriter, r *http.Request) {
	adminURL, sites, err := h.resolve(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, SiteListResponse{
		AdminURL: adminURL,
		Count:    len(sites),
		Sites:    sites,
	})
}

// ExportCSV handles GET /projects/{id}/sites/export. With gzip=true the
// CSV body is gzip-compressed.
func (h *SiteHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	_, sites, err := h.resolve(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sites.csv"`)
	if r.URL.Query().Get("gzip") == "true" {
		w.Header().Set("Content-Encoding", "gzip")
		err = report.WriteGzip(w, func(gw io.Writer) error {
			return report.WriteSiteListCSV(gw, sites)
		})
	} else {
		err = report.WriteSiteListCSV(w, sites)
	}
	if err != nil {
		h.logger.Error("site list export failed", "error", err)
	}
}

func (h *SiteHandler) resolve(r *http.Request) (string, []site.Descriptor, error) {
	projectID, err := idParam(r, "id")
	if err != nil {
		return "", nil, err
	}
	proj, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		return "", nil, err
	}

	adminURL := proj.SourceAdminURL
	switch r.URL.Query().Get("side") {
	case "", "source":
	case "dest":
		adminURL = proj.DestAdminURL
	default:
		return "", nil, apierror.BadRequest("side must be source or dest")
	}

	sites, err := h.sites.GetOrBuild(r.Context(), adminURL, sitecache.Options{
		MaxAge:       h.cfg.MaxAge,
		ForceRefresh: h.cfg.ForceRefresh || r.URL.Query().Get("force") == "true",
	})
	if err != nil {
		return "", nil, err
	}
	return adminURL, sites, nil
}
