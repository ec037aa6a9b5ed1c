package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tenantaudit/api/internal/app/scan"
	"github.com/tenantaudit/api/pkg/domain/appcatalog"
	"github.com/tenantaudit/api/pkg/domain/reconciliation"
	"github.com/tenantaudit/api/pkg/domain/shared"
)

// Exporter writes finished run artifacts as gzip-compressed CSV files
// under a fixed directory. App scan rows are not persisted row-by-row,
// so the export at run completion is their durable form.
type Exporter struct {
	dir string
}

// NewExporter creates an exporter rooted at dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// ExportAppReport writes the flattened app rows of a completed scan and
// returns the file path.
func (e *Exporter) ExportAppReport(runID shared.ID, outcomes []scan.Outcome[[]appcatalog.Record]) (string, error) {
	rows := FlattenApps(outcomes)
	return e.write(fmt.Sprintf("apps_%s.csv.gz", runID), func(w io.Writer) error {
		return WriteAppReportCSV(w, rows)
	})
}

// ExportReconciliation writes the per-user verdicts of a completed
// reconciliation run and returns the file path.
func (e *Exporter) ExportReconciliation(runID shared.ID, reports []*reconciliation.Report) (string, error) {
	return e.write(fmt.Sprintf("reconciliation_%s.csv.gz", runID), func(w io.Writer) error {
		return WriteReconciliationCSV(w, reports)
	})
}

func (e *Exporter) write(name string, writeCSV func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}

	path := filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}

	if err := WriteGzip(f, writeCSV); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}
