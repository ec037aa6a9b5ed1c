package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/domain/shared"
)

// ProjectRepository implements project.Repository using PostgreSQL.
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create persists a new migration project.
func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) error {
	query := `
		INSERT INTO migration_projects (
			id, name, source_admin_url, dest_admin_url, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID.String(),
		p.Name,
		p.SourceAdminURL,
		p.DestAdminURL,
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ALREADY_EXISTS", "project with this name already exists", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// GetByID retrieves a project by ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id shared.ID) (*project.Project, error) {
	query := r.selectQuery() + " WHERE id = $1"
	row := r.db.QueryRowContext(ctx, query, id.String())

	p, err := r.scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Update updates a project.
func (r *ProjectRepository) Update(ctx context.Context, p *project.Project) error {
	query := `
		UPDATE migration_projects
		SET name = $2, source_admin_url = $3, dest_admin_url = $4, status = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		p.ID.String(),
		p.Name,
		p.SourceAdminURL,
		p.DestAdminURL,
		string(p.Status),
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ALREADY_EXISTS", "project with this name already exists", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to update project: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// List lists all projects ordered by name.
func (r *ProjectRepository) List(ctx context.Context) ([]*project.Project, error) {
	query := r.selectQuery() + " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		p, err := r.scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return projects, nil
}

// ListMappings retrieves the user mapping pairs of a project in their
// stored order.
func (r *ProjectRepository) ListMappings(ctx context.Context, projectID shared.ID) ([]project.UserMapping, error) {
	query := `
		SELECT source_upn, dest_upn, folder_path
		FROM user_mappings
		WHERE project_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list user mappings: %w", err)
	}
	defer rows.Close()

	var mappings []project.UserMapping
	for rows.Next() {
		m := project.UserMapping{ProjectID: projectID}
		var folderPath sql.NullString
		if err := rows.Scan(&m.SourceUPN, &m.DestUPN, &folderPath); err != nil {
			return nil, fmt.Errorf("failed to scan user mapping: %w", err)
		}
		m.FolderPath = nullStringValue(folderPath)
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user mappings: %w", err)
	}

	return mappings, nil
}

// ReplaceMappings swaps the full mapping set for a project in one
// transaction.
func (r *ProjectRepository) ReplaceMappings(ctx context.Context, projectID shared.ID, mappings []project.UserMapping) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_mappings WHERE project_id = $1", projectID.String()); err != nil {
			return fmt.Errorf("failed to clear user mappings: %w", err)
		}

		insert := `
			INSERT INTO user_mappings (project_id, position, source_upn, dest_upn, folder_path)
			VALUES ($1, $2, $3, $4, $5)
		`
		for i, m := range mappings {
			_, err := tx.ExecContext(ctx, insert,
				projectID.String(),
				i,
				m.SourceUPN,
				m.DestUPN,
				nullString(m.FolderPath),
			)
			if err != nil {
				return fmt.Errorf("failed to insert user mapping: %w", err)
			}
		}

		return nil
	})
}

func (r *ProjectRepository) selectQuery() string {
	return `
		SELECT id, name, source_admin_url, dest_admin_url, status, created_at, updated_at
		FROM migration_projects
	`
}

func (r *ProjectRepository) scanProject(row interface{ Scan(dest ...any) error }) (*project.Project, error) {
	var p project.Project
	var id, status string

	err := row.Scan(&id, &p.Name, &p.SourceAdminURL, &p.DestAdminURL, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	p.ID, err = shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid project id: %w", err)
	}
	p.Status = project.Status(status)

	return &p, nil
}
