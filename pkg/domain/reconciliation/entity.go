// Package reconciliation defines the per-user-mapping comparison report
// between source and destination OneDrive inventories.
package reconciliation

import (
	"context"
	"time"

	"github.com/tenantaudit/api/pkg/domain/inventory"
	"github.com/tenantaudit/api/pkg/domain/shared"
)

// ValidationStatus is the migration verdict for one user mapping.
type ValidationStatus string

const (
	// StatusPass means every source file is present in the destination.
	StatusPass ValidationStatus = "PASS"
	// StatusFail means at least one source file is missing in the destination.
	StatusFail ValidationStatus = "FAIL"
	// StatusError means one of the inventories could not be built at all.
	StatusError ValidationStatus = "ERROR"
)

// String returns the string representation of the status.
func (s ValidationStatus) String() string {
	return string(s)
}

// Report is one reconciliation row: the inventory summaries for a
// (source, destination) principal pair plus the diff outcome.
type Report struct {
	ID        shared.ID
	RunID     shared.ID
	ProjectID shared.ID

	SourceUPN string
	DestUPN   string

	SourceFileCount    int
	SourceSizeMB       float64
	SourceLastModified *time.Time
	DestFileCount      int
	DestSizeMB         float64
	DestLastModified   *time.Time

	FilesInBoth        int
	MissingInDestCount int
	MissingInDestFiles []string
	ExtraInDestCount   int
	ExtraInDestFiles   []string
	NewerInDestCount   int

	Status       ValidationStatus
	ErrorMessage string

	CreatedAt time.Time
}

// NewReport builds a report row from the two inventories and their diff.
// The verdict policy sits here, above the reconciler: PASS iff nothing is
// missing in the destination. Inability to build an inventory is recorded
// through NewErrorReport instead.
func NewReport(runID, projectID shared.ID, sourceUPN, destUPN string, source, dest *inventory.FileInventory, diff inventory.ReconciliationResult) *Report {
	status := StatusPass
	if len(diff.MissingInDest) > 0 {
		status = StatusFail
	}

	return &Report{
		ID:                 shared.NewID(),
		RunID:              runID,
		ProjectID:          projectID,
		SourceUPN:          sourceUPN,
		DestUPN:            destUPN,
		SourceFileCount:    source.TotalFiles,
		SourceSizeMB:       source.SizeMB(),
		SourceLastModified: source.LastModified,
		DestFileCount:      dest.TotalFiles,
		DestSizeMB:         dest.SizeMB(),
		DestLastModified:   dest.LastModified,
		FilesInBoth:        diff.CommonCount,
		MissingInDestCount: len(diff.MissingInDest),
		MissingInDestFiles: diff.MissingInDest,
		ExtraInDestCount:   len(diff.ExtraInDest),
		ExtraInDestFiles:   diff.ExtraInDest,
		NewerInDestCount:   diff.NewerInDestCount,
		Status:             status,
		CreatedAt:          time.Now(),
	}
}

// NewErrorReport records a mapping whose inventories could not be built.
// Distinct from FAIL: nothing is known about the file sets.
func NewErrorReport(runID, projectID shared.ID, sourceUPN, destUPN, errorMessage string) *Report {
	return &Report{
		ID:           shared.NewID(),
		RunID:        runID,
		ProjectID:    projectID,
		SourceUPN:    sourceUPN,
		DestUPN:      destUPN,
		Status:       StatusError,
		ErrorMessage: errorMessage,
		CreatedAt:    time.Now(),
	}
}

// Summary counts verdicts across one run.
type Summary struct {
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
	Error int `json:"error"`
}

// Summarize tallies the verdicts of a report set.
func Summarize(reports []*Report) Summary {
	var s Summary
	for _, r := range reports {
		switch r.Status {
		case StatusPass:
			s.Pass++
		case StatusFail:
			s.Fail++
		case StatusError:
			s.Error++
		}
	}
	return s
}

// Repository persists reconciliation reports.
type Repository interface {
	CreateBatch(ctx context.Context, reports []*Report) error
	ListByRun(ctx context.Context, runID shared.ID) ([]*Report, error)
}
