// Package routes registers all HTTP routes for the audit API.
package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenantaudit/api/internal/infra/http/handler"
	"github.com/tenantaudit/api/internal/infra/http/middleware"
	"github.com/tenantaudit/api/pkg/logger"
)

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health         *handler.HealthHandler
	Project        *handler.ProjectHandler
	Site           *handler.SiteHandler
	Scan           *handler.ScanHandler
	Reconciliation *handler.ReconciliationHandler
}

// Options carries route-level configuration.
type Options struct {
	// APIKey guards mutating endpoints. Empty disables the check.
	APIKey string
}

// Register mounts all routes on the router. Probes and metrics sit outside
// the versioned API; mutating endpoints require the admin API key.
func Register(r chi.Router, h Handlers, opts Options, log *logger.Logger) {
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Read-only surface.
		r.Get("/projects", h.Project.List)
		r.Get("/projects/{id}", h.Project.Get)
		r.Get("/projects/{id}/mappings", h.Project.ListMappings)
		r.Get("/projects/{id}/sites", h.Site.List)
		r.Get("/projects/{id}/sites/export", h.Site.ExportCSV)

		r.Get("/runs", h.Scan.ListRuns)
		r.Get("/runs/{id}", h.Scan.GetRun)
		r.Get("/runs/{id}/reports", h.Reconciliation.ListReports)
		r.Get("/runs/{id}/summary", h.Reconciliation.Summary)
		r.Get("/runs/{id}/reports/export", h.Reconciliation.ExportCSV)

		// Mutating surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKey(opts.APIKey, log))

			r.Post("/projects", h.Project.Create)
			r.Post("/projects/{id}/archive", h.Project.Archive)
			r.Put("/projects/{id}/mappings", h.Project.ReplaceMappings)

			r.Post("/projects/{id}/scans/apps", h.Scan.TriggerAppScan)
			r.Post("/projects/{id}/reconciliations", h.Reconciliation.Trigger)
		})
	})
}
