// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types for audit jobs
const (
	TypeScanTenantApps    = "scan:tenant_apps"
	TypeReconcileOneDrive = "reconcile:onedrive"
)

// ScanTenantAppsPayload carries a queued app scan to the worker. The
// payload holds IDs only; the worker reloads state from the database.
type ScanTenantAppsPayload struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
	AdminURL  string `json:"admin_url"`
}

// ReconcileOneDrivePayload carries a queued reconciliation run.
type ReconcileOneDrivePayload struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
}

// NewScanTenantAppsTask creates a tenant app scan task. Asynq-level
// retries are disabled: run-level failures are recorded on the run
// itself, and a blind re-run of a half-finished scan would double
// count.
func NewScanTenantAppsTask(payload ScanTenantAppsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan payload: %w", err)
	}
	return asynq.NewTask(
		TypeScanTenantApps,
		data,
		asynq.MaxRetry(0),
		asynq.Timeout(4*time.Hour),
		asynq.Queue("scans"),
	), nil
}

// NewReconcileOneDriveTask creates a reconciliation task.
func NewReconcileOneDriveTask(payload ReconcileOneDrivePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reconcile payload: %w", err)
	}
	return asynq.NewTask(
		TypeReconcileOneDrive,
		data,
		asynq.MaxRetry(0),
		asynq.Timeout(4*time.Hour),
		asynq.Queue("scans"),
	), nil
}
