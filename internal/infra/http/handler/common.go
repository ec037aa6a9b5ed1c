// Package handler contains the HTTP handlers of the audit API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tenantaudit/api/internal/infra/http/middleware"
	"github.com/tenantaudit/api/pkg/apierror"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/pagination"
)

// respondJSON writes v as a JSON response.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// respondError maps err onto the API error taxonomy and writes it.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	apierror.FromError(err).WriteJSON(w, middleware.GetRequestID(r.Context()))
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	return nil
}

// idParam parses a chi URL parameter as a shared.ID.
func idParam(r *http.Request, name string) (shared.ID, error) {
	raw := chi.URLParam(r, name)
	id, err := shared.IDFromString(raw)
	if err != nil {
		return shared.ID{}, apierror.BadRequest("invalid " + name)
	}
	return id, nil
}

// parsePagination reads page/per_page query parameters with defaults.
func parsePagination(r *http.Request) pagination.Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return pagination.New(page, perPage)
}
