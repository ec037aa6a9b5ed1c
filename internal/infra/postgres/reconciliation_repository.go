package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/tenantaudit/api/pkg/domain/reconciliation"
	"github.com/tenantaudit/api/pkg/domain/shared"
)

// ReconciliationRepository implements reconciliation.Repository using
// PostgreSQL. File name lists are stored as text arrays.
type ReconciliationRepository struct {
	db *DB
}

// NewReconciliationRepository creates a new ReconciliationRepository.
func NewReconciliationRepository(db *DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// CreateBatch persists all report rows of one run in a single transaction.
func (r *ReconciliationRepository) CreateBatch(ctx context.Context, reports []*reconciliation.Report) error {
	if len(reports) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO reconciliation_reports (
				id, run_id, project_id, source_upn, dest_upn,
				source_file_count, source_size_mb, source_last_modified,
				dest_file_count, dest_size_mb, dest_last_modified,
				files_in_both, missing_in_dest_count, missing_in_dest_files,
				extra_in_dest_count, extra_in_dest_files, newer_in_dest_count,
				status, error_message, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		`

		for _, rep := range reports {
			_, err := tx.ExecContext(ctx, query,
				rep.ID.String(),
				rep.RunID.String(),
				rep.ProjectID.String(),
				rep.SourceUPN,
				rep.DestUPN,
				rep.SourceFileCount,
				rep.SourceSizeMB,
				nullTime(rep.SourceLastModified),
				rep.DestFileCount,
				rep.DestSizeMB,
				nullTime(rep.DestLastModified),
				rep.FilesInBoth,
				rep.MissingInDestCount,
				pq.Array(rep.MissingInDestFiles),
				rep.ExtraInDestCount,
				pq.Array(rep.ExtraInDestFiles),
				rep.NewerInDestCount,
				string(rep.Status),
				nullString(rep.ErrorMessage),
				rep.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert reconciliation report: %w", err)
			}
		}

		return nil
	})
}

// ListByRun retrieves every report row of one run, ordered by source UPN.
func (r *ReconciliationRepository) ListByRun(ctx context.Context, runID shared.ID) ([]*reconciliation.Report, error) {
	query := `
		SELECT id, run_id, project_id, source_upn, dest_upn,
		       source_file_count, source_size_mb, source_last_modified,
		       dest_file_count, dest_size_mb, dest_last_modified,
		       files_in_both, missing_in_dest_count, missing_in_dest_files,
		       extra_in_dest_count, extra_in_dest_files, newer_in_dest_count,
		       status, error_message, created_at
		FROM reconciliation_reports
		WHERE run_id = $1
		ORDER BY source_upn
	`

	rows, err := r.db.QueryContext(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation reports: %w", err)
	}
	defer rows.Close()

	var reports []*reconciliation.Report
	for rows.Next() {
		rep, err := r.scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reconciliation reports: %w", err)
	}

	return reports, nil
}

func (r *ReconciliationRepository) scanReport(row interface{ Scan(dest ...any) error }) (*reconciliation.Report, error) {
	var rep reconciliation.Report
	var id, runID, projectID, status string
	var sourceLastModified, destLastModified sql.NullTime
	var errorMessage sql.NullString
	var missing, extra pq.StringArray

	err := row.Scan(
		&id, &runID, &projectID, &rep.SourceUPN, &rep.DestUPN,
		&rep.SourceFileCount, &rep.SourceSizeMB, &sourceLastModified,
		&rep.DestFileCount, &rep.DestSizeMB, &destLastModified,
		&rep.FilesInBoth, &rep.MissingInDestCount, &missing,
		&rep.ExtraInDestCount, &extra, &rep.NewerInDestCount,
		&status, &errorMessage, &rep.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reconciliation report: %w", err)
	}

	rep.ID, err = shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid report id: %w", err)
	}
	rep.RunID, err = shared.IDFromString(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id: %w", err)
	}
	rep.ProjectID, err = shared.IDFromString(projectID)
	if err != nil {
		return nil, fmt.Errorf("invalid project id: %w", err)
	}
	rep.SourceLastModified = nullTimeValue(sourceLastModified)
	rep.DestLastModified = nullTimeValue(destLastModified)
	rep.MissingInDestFiles = missing
	rep.ExtraInDestFiles = extra
	rep.Status = reconciliation.ValidationStatus(status)
	rep.ErrorMessage = nullStringValue(errorMessage)

	return &rep, nil
}
