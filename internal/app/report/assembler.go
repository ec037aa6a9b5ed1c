// Package report flattens scan outcomes into export-ready row sets. The
// assembler is a pure transformation: concatenate, tag with the source
// site, carry per-site errors as sentinel rows, sort for stable output.
package report

import (
	"sort"

	"github.com/tenantaudit/api/internal/app/scan"
	"github.com/tenantaudit/api/pkg/domain/appcatalog"
	"github.com/tenantaudit/api/pkg/domain/inventory"
)

// AppRow is one exported (site, app) pair. Err is empty for clean rows;
// a site whose scan failed contributes exactly one row with Err set and
// the app fields zeroed.
type AppRow struct {
	appcatalog.Record
	SiteTitle string
	Err       string
}

// FileRow is one exported (site, file) pair, same sentinel convention
// as AppRow.
type FileRow struct {
	SiteURL   string
	SiteTitle string
	inventory.FileRecord
	Err string
}

// FlattenApps turns the scanner's unordered outcome set into a stable
// row sequence: sorted by site URL, then app title. An outcome with no
// rows and no error contributes nothing.
func FlattenApps(outcomes []scan.Outcome[[]appcatalog.Record]) []AppRow {
	var rows []AppRow
	for _, o := range outcomes {
		if o.Err != nil {
			rows = append(rows, AppRow{
				Record:    appcatalog.Record{SiteURL: o.Site.URL},
				SiteTitle: o.Site.Title,
				Err:       o.Err.Error(),
			})
			continue
		}
		for _, rec := range o.Value {
			rows = append(rows, AppRow{Record: rec, SiteTitle: o.Site.Title})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SiteURL != rows[j].SiteURL {
			return rows[i].SiteURL < rows[j].SiteURL
		}
		return rows[i].Title < rows[j].Title
	})
	return rows
}

// FlattenFiles does the same for file scans, sorted by site URL then
// file name.
func FlattenFiles(outcomes []scan.Outcome[[]inventory.FileRecord]) []FileRow {
	var rows []FileRow
	for _, o := range outcomes {
		if o.Err != nil {
			rows = append(rows, FileRow{
				SiteURL:   o.Site.URL,
				SiteTitle: o.Site.Title,
				Err:       o.Err.Error(),
			})
			continue
		}
		for _, rec := range o.Value {
			rows = append(rows, FileRow{
				SiteURL:    o.Site.URL,
				SiteTitle:  o.Site.Title,
				FileRecord: rec,
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SiteURL != rows[j].SiteURL {
			return rows[i].SiteURL < rows[j].SiteURL
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}
