package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

type runResource struct {
	ID        string `json:"id" yaml:"id"`
	ProjectID string `json:"project_id" yaml:"project_id"`
	Kind      string `json:"kind" yaml:"kind"`
	Status    string `json:"status" yaml:"status"`

	SitesTotal     int `json:"sites_total" yaml:"sites_total"`
	SitesSucceeded int `json:"sites_succeeded" yaml:"sites_succeeded"`
	SitesFailed    int `json:"sites_failed" yaml:"sites_failed"`
	RowsCollected  int `json:"rows_collected" yaml:"rows_collected"`

	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms" yaml:"duration_ms"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run tenant-wide scans",
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run OneDrive file reconciliation",
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect scan and reconciliation runs",
}

func init() {
	scanAppsCmd := &cobra.Command{
		Use:     "apps PROJECT_ID",
		Aliases: []string{"run"},
		Short:   "Queue a tenant-wide installed apps scan",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := mustClient().Post("/api/v1/projects/"+args[0]+"/scans/apps", nil)
			if err != nil {
				return err
			}
			var run runResource
			if err := unmarshal(data, &run); err != nil {
				return err
			}
			fmt.Printf("App scan queued (run: %s)\n", run.ID)
			return nil
		},
	}
	scanCmd.AddCommand(scanAppsCmd)

	reconcileRunCmd := &cobra.Command{
		Use:   "run PROJECT_ID",
		Short: "Queue a OneDrive reconciliation over the project's user mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := mustClient().Post("/api/v1/projects/"+args[0]+"/reconciliations", nil)
			if err != nil {
				return err
			}
			var run runResource
			if err := unmarshal(data, &run); err != nil {
				return err
			}
			fmt.Printf("Reconciliation queued (run: %s)\n", run.ID)
			return nil
		},
	}
	reconcileCmd.AddCommand(reconcileRunCmd)

	runsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if v, _ := cmd.Flags().GetString("project"); v != "" {
				q.Set("project_id", v)
			}
			if v, _ := cmd.Flags().GetString("kind"); v != "" {
				q.Set("kind", v)
			}
			if v, _ := cmd.Flags().GetString("status"); v != "" {
				q.Set("status", v)
			}
			if v, _ := cmd.Flags().GetInt("page"); v > 0 {
				q.Set("page", strconv.Itoa(v))
			}

			data, err := mustClient().Get("/api/v1/runs?" + q.Encode())
			if err != nil {
				return err
			}
			var resp struct {
				Data       []runResource `json:"data"`
				Total      int64         `json:"total"`
				Page       int           `json:"page"`
				TotalPages int           `json:"total_pages"`
			}
			if err := unmarshal(data, &resp); err != nil {
				return err
			}

			switch flagOutput {
			case outputJSON:
				printJSON(resp.Data)
			case outputYAML:
				printYAML(resp.Data)
			default:
				t := newTable("ID", "KIND", "STATUS", "SITES", "OK", "FAILED", "ROWS")
				for _, r := range resp.Data {
					t.AddRow(r.ID, r.Kind, r.Status,
						strconv.Itoa(r.SitesTotal),
						strconv.Itoa(r.SitesSucceeded),
						strconv.Itoa(r.SitesFailed),
						strconv.Itoa(r.RowsCollected))
				}
				t.Flush()
				fmt.Printf("\n%d runs (page %d/%d)\n", resp.Total, resp.Page, resp.TotalPages)
			}
			return nil
		},
	}
	runsListCmd.Flags().String("project", "", "Filter by project ID")
	runsListCmd.Flags().String("kind", "", "Filter by kind: apps, files")
	runsListCmd.Flags().String("status", "", "Filter by status")
	runsListCmd.Flags().Int("page", 0, "Page number")

	runsGetCmd := &cobra.Command{
		Use:   "get RUN_ID",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := mustClient().Get("/api/v1/runs/" + args[0])
			if err != nil {
				return err
			}
			var run runResource
			if err := unmarshal(data, &run); err != nil {
				return err
			}

			switch flagOutput {
			case outputYAML:
				printYAML(run)
			default:
				printJSON(run)
			}
			return nil
		},
	}

	runsCmd.AddCommand(runsListCmd, runsGetCmd)
}
