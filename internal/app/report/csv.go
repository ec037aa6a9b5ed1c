package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/tenantaudit/api/pkg/domain/reconciliation"
	"github.com/tenantaudit/api/pkg/domain/site"
)

// Column orders are fixed; downstream consumers parse by position.
var (
	siteListHeader = []string{"Url", "Title", "Template", "Owner"}

	appReportHeader = []string{
		"Scope", "SiteUrl", "SiteTitle", "Title", "AppId", "ProductId",
		"Version", "Deployed", "Enabled", "InstalledVersion",
		"IsClientSideSolution", "CanUpgrade", "FromTenantCatalog",
		"Source", "Error",
	}

	fileReportHeader = []string{
		"SiteUrl", "SiteTitle", "Name", "SizeBytes", "ModifiedAt",
		"RelativePath", "Error",
	}

	reconciliationHeader = []string{
		"SourceUPN", "DestUPN",
		"Source_FileCount", "Source_SizeMB", "Source_LastModified",
		"Dest_FileCount", "Dest_SizeMB", "Dest_LastModified",
		"FilesInBoth",
		"MissingInDest_Count", "MissingInDest_Files",
		"ExtraInDest_Count", "ExtraInDest_Files",
		"NewerInDest_Count", "ValidationStatus",
	}
)

// WriteSiteListCSV writes the cached site list in its fixed column order.
func WriteSiteListCSV(w io.Writer, sites []site.Descriptor) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(siteListHeader); err != nil {
		return fmt.Errorf("writing site list header: %w", err)
	}
	for _, s := range sites {
		if err := cw.Write([]string{s.URL, s.Title, s.Template, s.Owner}); err != nil {
			return fmt.Errorf("writing site row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAppReportCSV writes the flattened app scan output.
func WriteAppReportCSV(w io.Writer, rows []AppRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(appReportHeader); err != nil {
		return fmt.Errorf("writing app report header: %w", err)
	}
	for _, r := range rows {
		appID := ""
		if r.AppID != uuid.Nil {
			appID = r.AppID.String()
		}
		record := []string{
			r.Scope.String(),
			r.SiteURL,
			r.SiteTitle,
			r.Title,
			appID,
			r.ProductID,
			r.Version,
			formatBool(r.Deployed),
			formatBool(r.Enabled),
			r.InstalledVersion,
			formatBool(r.IsClientSideSolution),
			formatBool(r.CanUpgrade),
			formatBool(r.FromTenantCatalog),
			r.Source,
			r.Err,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing app row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFileReportCSV writes the flattened file scan output.
func WriteFileReportCSV(w io.Writer, rows []FileRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fileReportHeader); err != nil {
		return fmt.Errorf("writing file report header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.SiteURL,
			r.SiteTitle,
			r.Name,
			strconv.FormatUint(r.SizeBytes, 10),
			formatTime(&r.ModifiedAt),
			r.RelativePath,
			r.Err,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing file row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReconciliationCSV writes one row per user mapping pair. File name
// lists are semicolon-joined.
func WriteReconciliationCSV(w io.Writer, reports []*reconciliation.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reconciliationHeader); err != nil {
		return fmt.Errorf("writing reconciliation header: %w", err)
	}
	for _, r := range reports {
		record := []string{
			r.SourceUPN,
			r.DestUPN,
			strconv.Itoa(r.SourceFileCount),
			formatMB(r.SourceSizeMB),
			formatTime(r.SourceLastModified),
			strconv.Itoa(r.DestFileCount),
			formatMB(r.DestSizeMB),
			formatTime(r.DestLastModified),
			strconv.Itoa(r.FilesInBoth),
			strconv.Itoa(r.MissingInDestCount),
			strings.Join(r.MissingInDestFiles, ";"),
			strconv.Itoa(r.ExtraInDestCount),
			strings.Join(r.ExtraInDestFiles, ";"),
			strconv.Itoa(r.NewerInDestCount),
			r.Status.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing reconciliation row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGzip wraps w in a gzip stream and runs write against it. Used for
// compressed report downloads.
func WriteGzip(w io.Writer, write func(io.Writer) error) error {
	gz := gzip.NewWriter(w)
	if err := write(gz); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip stream: %w", err)
	}
	return nil
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatMB(mb float64) string {
	return strconv.FormatFloat(mb, 'f', 2, 64)
}
