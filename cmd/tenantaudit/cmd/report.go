package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type reportResource struct {
	SourceUPN string `json:"source_upn" yaml:"source_upn"`
	DestUPN   string `json:"dest_upn" yaml:"dest_upn"`

	SourceFileCount    int     `json:"source_file_count" yaml:"source_file_count"`
	SourceSizeMB       float64 `json:"source_size_mb" yaml:"source_size_mb"`
	DestFileCount      int     `json:"dest_file_count" yaml:"dest_file_count"`
	DestSizeMB         float64 `json:"dest_size_mb" yaml:"dest_size_mb"`
	MissingInDestCount int     `json:"missing_in_dest_count" yaml:"missing_in_dest_count"`
	ExtraInDestCount   int     `json:"extra_in_dest_count" yaml:"extra_in_dest_count"`
	NewerInDestCount   int     `json:"newer_in_dest_count" yaml:"newer_in_dest_count"`

	Status       string `json:"status" yaml:"status"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

type summaryResource struct {
	Pass  int `json:"pass" yaml:"pass"`
	Fail  int `json:"fail" yaml:"fail"`
	Error int `json:"error" yaml:"error"`
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect and export reconciliation reports",
}

func init() {
	listCmd := &cobra.Command{
		Use:   "list RUN_ID",
		Short: "List the per-user verdicts of a reconciliation run",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := mustClient().Get("/api/v1/runs/" + args[0] + "/reports")
			if err != nil {
				return err
			}
			var resp struct {
				Data    []reportResource `json:"data"`
				Summary summaryResource  `json:"summary"`
			}
			if err := unmarshal(data, &resp); err != nil {
				return err
			}

			switch flagOutput {
			case outputJSON:
				printJSON(resp)
			case outputYAML:
				printYAML(resp)
			default:
				t := newTable("SOURCE UPN", "DEST UPN", "SRC FILES", "DST FILES", "MISSING", "EXTRA", "NEWER", "STATUS")
				for _, r := range resp.Data {
					t.AddRow(r.SourceUPN, r.DestUPN,
						strconv.Itoa(r.SourceFileCount),
						strconv.Itoa(r.DestFileCount),
						strconv.Itoa(r.MissingInDestCount),
						strconv.Itoa(r.ExtraInDestCount),
						strconv.Itoa(r.NewerInDestCount),
						r.Status)
				}
				t.Flush()
				fmt.Printf("\nPASS: %d  FAIL: %d  ERROR: %d\n", resp.Summary.Pass, resp.Summary.Fail, resp.Summary.Error)
			}
			return nil
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary RUN_ID",
		Short: "Show the verdict summary of a reconciliation run",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := mustClient().Get("/api/v1/runs/" + args[0] + "/summary")
			if err != nil {
				return err
			}
			var s summaryResource
			if err := unmarshal(data, &s); err != nil {
				return err
			}

			switch flagOutput {
			case outputJSON:
				printJSON(s)
			case outputYAML:
				printYAML(s)
			default:
				fmt.Printf("PASS: %d  FAIL: %d  ERROR: %d\n", s.Pass, s.Fail, s.Error)
			}
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export RUN_ID",
		Short: "Export the reconciliation report as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("file")
			gz, _ := cmd.Flags().GetBool("gzip")

			path := "/api/v1/runs/" + args[0] + "/reports/export"
			if gz {
				path += "?gzip=true"
				if out == "reconciliation.csv" {
					out = "reconciliation.csv.gz"
				}
			}
			if err := mustClient().Download(path, out); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", out)
			return nil
		},
	}
	exportCmd.Flags().String("file", "reconciliation.csv", "Output file")
	exportCmd.Flags().Bool("gzip", false, "Gzip-compress the export")

	reportCmd.AddCommand(listCmd, summaryCmd, exportCmd)
}
