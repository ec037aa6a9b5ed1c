package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/domain/site"
)

// SiteRepository implements site.Repository using PostgreSQL. The site
// list for one admin URL is a single cache entry: the rows in `sites`
// plus a freshness timestamp in `site_list_meta`. Replacement is
// transactional; readers never see a half-written list.
type SiteRepository struct {
	db *DB
}

// NewSiteRepository creates a new SiteRepository.
func NewSiteRepository(db *DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// GetEntry retrieves the cached site list for an admin URL.
func (r *SiteRepository) GetEntry(ctx context.Context, adminURL string) (site.CacheEntry, error) {
	var entry site.CacheEntry

	metaQuery := "SELECT written_at FROM site_list_meta WHERE admin_url = $1"
	err := r.db.QueryRowContext(ctx, metaQuery, adminURL).Scan(&entry.WrittenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry, shared.ErrNotFound
		}
		return entry, fmt.Errorf("failed to read site list meta: %w", err)
	}

	// Column order matters to positional consumers: Url, Title, Template, Owner.
	query := `
		SELECT url, title, template, owner
		FROM sites
		WHERE admin_url = $1
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, adminURL)
	if err != nil {
		return entry, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d site.Descriptor
		var title, template, owner sql.NullString
		if err := rows.Scan(&d.URL, &title, &template, &owner); err != nil {
			return entry, fmt.Errorf("failed to scan site row: %w", err)
		}
		d.Title = nullStringValue(title)
		d.Template = nullStringValue(template)
		d.Owner = nullStringValue(owner)
		entry.Sites = append(entry.Sites, d)
	}
	if err := rows.Err(); err != nil {
		return entry, fmt.Errorf("failed to iterate site rows: %w", err)
	}

	return entry, nil
}

// ReplaceEntry atomically swaps the stored site list for an admin URL.
func (r *SiteRepository) ReplaceEntry(ctx context.Context, adminURL string, entry site.CacheEntry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sites WHERE admin_url = $1", adminURL); err != nil {
			return fmt.Errorf("failed to clear site rows: %w", err)
		}

		insert := `
			INSERT INTO sites (admin_url, position, url, title, template, owner)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for i, d := range entry.Sites {
			_, err := tx.ExecContext(ctx, insert,
				adminURL,
				i,
				d.URL,
				nullString(d.Title),
				nullString(d.Template),
				nullString(d.Owner),
			)
			if err != nil {
				return fmt.Errorf("failed to insert site row: %w", err)
			}
		}

		meta := `
			INSERT INTO site_list_meta (admin_url, written_at)
			VALUES ($1, $2)
			ON CONFLICT (admin_url) DO UPDATE SET written_at = EXCLUDED.written_at
		`
		if _, err := tx.ExecContext(ctx, meta, adminURL, entry.WrittenAt); err != nil {
			return fmt.Errorf("failed to write site list meta: %w", err)
		}

		return nil
	})
}
