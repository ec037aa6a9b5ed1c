package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/tenantaudit/api/pkg/domain/scanrun"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/pagination"
)

// ScanRunRepository implements scanrun.Repository using PostgreSQL.
type ScanRunRepository struct {
	db *DB
}

// NewScanRunRepository creates a new ScanRunRepository.
func NewScanRunRepository(db *DB) *ScanRunRepository {
	return &ScanRunRepository{db: db}
}

// Create persists a new scan run.
func (r *ScanRunRepository) Create(ctx context.Context, run *scanrun.Run) error {
	query := `
		INSERT INTO scan_runs (
			id, project_id, kind, status,
			sites_total, sites_succeeded, sites_failed, rows_collected,
			error_message, started_at, completed_at, duration_ms,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID.String(),
		run.ProjectID.String(),
		string(run.Kind),
		string(run.Status),
		run.SitesTotal,
		run.SitesSucceeded,
		run.SitesFailed,
		run.RowsCollected,
		nullString(run.ErrorMessage),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.DurationMs,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scan run: %w", err)
	}

	return nil
}

// GetByID retrieves a scan run by ID.
func (r *ScanRunRepository) GetByID(ctx context.Context, id shared.ID) (*scanrun.Run, error) {
	query := r.selectQuery() + " WHERE id = $1"
	row := r.db.QueryRowContext(ctx, query, id.String())
	return r.runFromRow(row)
}

// Update updates a scan run.
func (r *ScanRunRepository) Update(ctx context.Context, run *scanrun.Run) error {
	query := `
		UPDATE scan_runs
		SET status = $2,
		    sites_total = $3, sites_succeeded = $4, sites_failed = $5, rows_collected = $6,
		    error_message = $7, started_at = $8, completed_at = $9, duration_ms = $10,
		    updated_at = $11
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID.String(),
		string(run.Status),
		run.SitesTotal,
		run.SitesSucceeded,
		run.SitesFailed,
		run.RowsCollected,
		nullString(run.ErrorMessage),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.DurationMs,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// List lists scan runs with filters and pagination, newest first.
func (r *ScanRunRepository) List(ctx context.Context, filter scanrun.Filter, page pagination.Pagination) (pagination.Result[*scanrun.Run], error) {
	var result pagination.Result[*scanrun.Run]

	baseQuery := r.selectQuery()
	countQuery := "SELECT COUNT(*) FROM scan_runs"
	whereClause, args := r.buildWhereClause(filter)

	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
		countQuery += " WHERE " + whereClause
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return result, fmt.Errorf("failed to count scan runs: %w", err)
	}

	baseQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return result, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []*scanrun.Run
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return result, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("failed to iterate scan runs: %w", err)
	}

	return pagination.NewResult(runs, total, page), nil
}

func (r *ScanRunRepository) selectQuery() string {
	return `
		SELECT id, project_id, kind, status,
		       sites_total, sites_succeeded, sites_failed, rows_collected,
		       error_message, started_at, completed_at, duration_ms,
		       created_at, updated_at
		FROM scan_runs
	`
}

func (r *ScanRunRepository) buildWhereClause(filter scanrun.Filter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.ProjectID != nil {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argNum))
		args = append(args, filter.ProjectID.String())
		argNum++
	}

	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		conditions = append(conditions, fmt.Sprintf("kind = ANY($%d)", argNum))
		args = append(args, pq.Array(kinds))
		argNum++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argNum))
		args = append(args, pq.Array(statuses))
		argNum++
	}

	return strings.Join(conditions, " AND "), args
}

func (r *ScanRunRepository) runFromRow(row *sql.Row) (*scanrun.Run, error) {
	run, err := r.scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *ScanRunRepository) scanRun(row interface{ Scan(dest ...any) error }) (*scanrun.Run, error) {
	var run scanrun.Run
	var id, projectID, kind, status string
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&id, &projectID, &kind, &status,
		&run.SitesTotal, &run.SitesSucceeded, &run.SitesFailed, &run.RowsCollected,
		&errorMessage, &startedAt, &completedAt, &run.DurationMs,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan scan run: %w", err)
	}

	run.ID, err = shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id: %w", err)
	}
	run.ProjectID, err = shared.IDFromString(projectID)
	if err != nil {
		return nil, fmt.Errorf("invalid project id: %w", err)
	}
	run.Kind = scanrun.Kind(kind)
	run.Status = scanrun.Status(status)
	run.ErrorMessage = nullStringValue(errorMessage)
	run.StartedAt = nullTimeValue(startedAt)
	run.CompletedAt = nullTimeValue(completedAt)

	return &run, nil
}
