// Package project holds the persisted migration-project state: the tenant
// pair under audit and the user mappings driving OneDrive reconciliation.
package project

import (
	"context"
	"strings"
	"time"

	"github.com/tenantaudit/api/pkg/domain/shared"
)

// Status represents the project status.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// IsValid checks if the status is a valid status value.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusArchived
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Project represents one tenant-to-tenant migration under audit.
type Project struct {
	ID             shared.ID
	Name           string
	SourceAdminURL string
	DestAdminURL   string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New creates an active migration project.
func New(name, sourceAdminURL, destAdminURL string) (*Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	if sourceAdminURL == "" {
		return nil, shared.NewDomainError("VALIDATION", "source_admin_url is required", shared.ErrValidation)
	}
	if destAdminURL == "" {
		return nil, shared.NewDomainError("VALIDATION", "dest_admin_url is required", shared.ErrValidation)
	}

	now := time.Now()
	return &Project{
		ID:             shared.NewID(),
		Name:           name,
		SourceAdminURL: sourceAdminURL,
		DestAdminURL:   destAdminURL,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Archive marks the project as archived.
func (p *Project) Archive() {
	p.Status = StatusArchived
	p.UpdatedAt = time.Now()
}

// UserMapping pairs a source principal with its destination counterpart.
// Reconciliation runs once per mapping.
type UserMapping struct {
	ProjectID  shared.ID
	SourceUPN  string
	DestUPN    string
	FolderPath string // optional subfolder to scope the inventory to
}

// Repository persists migration projects and their user mappings.
type Repository interface {
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, id shared.ID) (*Project, error)
	Update(ctx context.Context, p *Project) error
	List(ctx context.Context) ([]*Project, error)

	ListMappings(ctx context.Context, projectID shared.ID) ([]UserMapping, error)
	// ReplaceMappings swaps the full mapping set for a project in one
	// transaction.
	ReplaceMappings(ctx context.Context, projectID shared.ID, mappings []UserMapping) error
}
