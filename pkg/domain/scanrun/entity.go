// Package scanrun tracks the execution lifecycle of a tenant-wide scan.
package scanrun

import (
	"time"

	"github.com/tenantaudit/api/pkg/domain/shared"
)

// Kind identifies what a scan run enumerates.
type Kind string

const (
	// KindApps enumerates installed apps across site collections.
	KindApps Kind = "apps"
	// KindFiles enumerates OneDrive file inventories.
	KindFiles Kind = "files"
)

// IsValid checks if the kind is a valid kind value.
func (k Kind) IsValid() bool {
	return k == KindApps || k == KindFiles
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Status represents the scan run status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsValid checks if the status is a valid status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a terminal (final) state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Run represents one tenant-wide scan execution. A run fans out over the
// cached site list; per-site failures are recorded in the counters and the
// per-site results, never in the run status.
type Run struct {
	ID        shared.ID
	ProjectID shared.ID
	Kind      Kind
	Status    Status

	// Fan-out summary.
	SitesTotal     int
	SitesSucceeded int
	SitesFailed    int
	RowsCollected  int

	ErrorMessage string

	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMs  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRun creates a queued scan run.
func NewRun(projectID shared.ID, kind Kind) (*Run, error) {
	if !kind.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid scan kind", shared.ErrValidation)
	}

	now := time.Now()
	return &Run{
		ID:        shared.NewID(),
		ProjectID: projectID,
		Kind:      kind,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Start marks the run as running.
func (r *Run) Start() error {
	if r.Status != StatusQueued {
		return shared.NewDomainError("INVALID_STATE", "can only start a queued run", shared.ErrValidation)
	}
	now := time.Now()
	r.Status = StatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now
	return nil
}

// Complete marks the run as completed with its fan-out summary.
func (r *Run) Complete(sitesTotal, sitesSucceeded, sitesFailed, rowsCollected int) error {
	if r.Status != StatusRunning {
		return shared.NewDomainError("INVALID_STATE", "can only complete a running run", shared.ErrValidation)
	}

	now := time.Now()
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.SitesTotal = sitesTotal
	r.SitesSucceeded = sitesSucceeded
	r.SitesFailed = sitesFailed
	r.RowsCollected = rowsCollected
	r.UpdatedAt = now

	if r.StartedAt != nil {
		r.DurationMs = now.Sub(*r.StartedAt).Milliseconds()
	}

	return nil
}

// Fail marks the run as failed. Only whole-run failures land here, such as
// an unreachable directory service during site list rebuild; per-site
// failures are summary counters on a completed run.
func (r *Run) Fail(errorMessage string) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "cannot fail a finished run", shared.ErrValidation)
	}

	now := time.Now()
	r.Status = StatusFailed
	r.CompletedAt = &now
	r.ErrorMessage = errorMessage
	r.UpdatedAt = now

	if r.StartedAt != nil {
		r.DurationMs = now.Sub(*r.StartedAt).Milliseconds()
	}

	return nil
}

// Cancel marks the run as canceled.
func (r *Run) Cancel() error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "cannot cancel a finished run", shared.ErrValidation)
	}

	now := time.Now()
	r.Status = StatusCanceled
	r.CompletedAt = &now
	r.UpdatedAt = now

	if r.StartedAt != nil {
		r.DurationMs = now.Sub(*r.StartedAt).Milliseconds()
	}

	return nil
}

// IsFinished returns true if the run has reached a terminal state.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}
