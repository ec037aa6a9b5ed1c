package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/logger"
	"github.com/tenantaudit/api/pkg/validator"
)

type memoryProjectRepo struct {
	mu       sync.Mutex
	projects map[string]*project.Project
	mappings map[string][]project.UserMapping
}

func newMemoryProjectRepo() *memoryProjectRepo {
	return &memoryProjectRepo{
		projects: make(map[string]*project.Project),
		mappings: make(map[string][]project.UserMapping),
	}
}

func (r *memoryProjectRepo) Create(_ context.Context, p *project.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID.String()] = p
	return nil
}

func (r *memoryProjectRepo) GetByID(_ context.Context, id shared.ID) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id.String()]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryProjectRepo) Update(_ context.Context, p *project.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID.String()] = p
	return nil
}

func (r *memoryProjectRepo) List(_ context.Context) ([]*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*project.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryProjectRepo) ListMappings(_ context.Context, projectID shared.ID) ([]project.UserMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mappings[projectID.String()], nil
}

func (r *memoryProjectRepo) ReplaceMappings(_ context.Context, projectID shared.ID, mappings []project.UserMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[projectID.String()] = mappings
	return nil
}

func newProjectTestRouter(repo *memoryProjectRepo) chi.Router {
	h := NewProjectHandler(repo, validator.New(), logger.NewNop())
	r := chi.NewRouter()
	r.Post("/projects", h.Create)
	r.Get("/projects/{id}", h.Get)
	r.Put("/projects/{id}/mappings", h.ReplaceMappings)
	r.Get("/projects/{id}/mappings", h.ListMappings)
	return r
}

func TestProjectHandler_CreateAndGet(t *testing.T) {
	router := newProjectTestRouter(newMemoryProjectRepo())

	body := `{"name":"wave 1","source_admin_url":"https://contoso-admin.sharepoint.com","dest_admin_url":"https://fabrikam-admin.sharepoint.com"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var created ProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "wave 1", created.Name)
	assert.Equal(t, "active", created.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/"+created.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got ProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "https://contoso-admin.sharepoint.com", got.SourceAdminURL)
}

func TestProjectHandler_CreateRejectsNonAdminURL(t *testing.T) {
	router := newProjectTestRouter(newMemoryProjectRepo())

	body := `{"name":"wave 1","source_admin_url":"https://contoso.sharepoint.com","dest_admin_url":"https://fabrikam-admin.sharepoint.com"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProjectHandler_CreateRejectsUnknownFields(t *testing.T) {
	router := newProjectTestRouter(newMemoryProjectRepo())

	body := `{"name":"wave 1","source_admin_url":"https://a-admin.sharepoint.com","dest_admin_url":"https://b-admin.sharepoint.com","bogus":true}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectHandler_GetUnknownReturns404(t *testing.T) {
	router := newProjectTestRouter(newMemoryProjectRepo())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/"+shared.NewID().String(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectHandler_ReplaceAndListMappings(t *testing.T) {
	repo := newMemoryProjectRepo()
	router := newProjectTestRouter(repo)

	p, err := project.New("wave 1", "https://a-admin.sharepoint.com", "https://b-admin.sharepoint.com")
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), p))

	body := `{"mappings":[
		{"source_upn":"jane@contoso.com","dest_upn":"jane@fabrikam.com"},
		{"source_upn":"omar@contoso.com","dest_upn":"omar@fabrikam.com","folder_path":"Documents"}
	]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/projects/"+p.ID.String()+"/mappings", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/"+p.ID.String()+"/mappings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []UserMappingResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "jane@contoso.com", resp.Data[0].SourceUPN)
	assert.Equal(t, "Documents", resp.Data[1].FolderPath)
}

func TestProjectHandler_ReplaceMappingsRejectsBadUPN(t *testing.T) {
	repo := newMemoryProjectRepo()
	router := newProjectTestRouter(repo)

	p, err := project.New("wave 1", "https://a-admin.sharepoint.com", "https://b-admin.sharepoint.com")
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), p))

	body := `{"mappings":[{"source_upn":"not-a-upn","dest_upn":"jane@fabrikam.com"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/projects/"+p.ID.String()+"/mappings", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
