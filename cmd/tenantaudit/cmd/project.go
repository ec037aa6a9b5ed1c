package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type projectResource struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	SourceAdminURL string `json:"source_admin_url" yaml:"source_admin_url"`
	DestAdminURL   string `json:"dest_admin_url" yaml:"dest_admin_url"`
	Status         string `json:"status" yaml:"status"`
}

type mappingResource struct {
	SourceUPN  string `json:"source_upn" yaml:"source_upn"`
	DestUPN    string `json:"dest_upn" yaml:"dest_upn"`
	FolderPath string `json:"folder_path,omitempty" yaml:"folder_path,omitempty"`
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage migration projects",
}

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(_ *cobra.Command, _ []string) error {
			data, err := mustClient().Get("/api/v1/projects")
			if err != nil {
				return err
			}
			var resp struct {
				Data []projectResource `json:"data"`
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
				t := newTable("ID", "NAME", "SOURCE", "DEST", "STATUS")
				for _, p := range resp.Data {
					t.AddRow(p.ID, p.Name, p.SourceAdminURL, p.DestAdminURL, p.Status)
				}
				t.Flush()
			}
			return nil
		},
	}

	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a migration project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _ := cmd.Flags().GetString("source")
			dest, _ := cmd.Flags().GetString("dest")
			if source == "" || dest == "" {
				return fmt.Errorf("--source and --dest are required")
			}

			data, err := mustClient().Post("/api/v1/projects", map[string]string{
				"name":             args[0],
				"source_admin_url": source,
				"dest_admin_url":   dest,
			})
			if err != nil {
				return err
			}
			var p projectResource
			if err := unmarshal(data, &p); err != nil {
				return err
			}
			fmt.Printf("Project %q created (id: %s)\n", p.Name, p.ID)
			return nil
		},
	}
	createCmd.Flags().String("source", "", "Source tenant admin URL")
	createCmd.Flags().String("dest", "", "Destination tenant admin URL")

	archiveCmd := &cobra.Command{
		Use:   "archive PROJECT_ID",
		Short: "Archive a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := mustClient().Post("/api/v1/projects/"+args[0]+"/archive", nil); err != nil {
				return err
			}
			fmt.Println("Project archived.")
			return nil
		},
	}

	mappingsCmd := &cobra.Command{
		Use:   "set-mappings PROJECT_ID FILE",
		Short: "Replace the project's user mappings from a CSV file",
		Long: `Replace the full user mapping set from a CSV file with columns
SourceUPN,DestUPN[,FolderPath]. A header row is detected and skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			mappings, err := readMappingsCSV(args[1])
			if err != nil {
				return err
			}
			data, err := mustClient().Put("/api/v1/projects/"+args[0]+"/mappings", map[string]any{
				"mappings": mappings,
			})
			if err != nil {
				return err
			}
			var resp struct {
				Replaced int `json:"replaced"`
			}
			if err := unmarshal(data, &resp); err != nil {
				return err
			}
			fmt.Printf("Replaced %d user mappings.\n", resp.Replaced)
			return nil
		},
	}

	getMappingsCmd := &cobra.Command{
		Use:   "mappings PROJECT_ID",
		Short: "List the project's user mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := mustClient().Get("/api/v1/projects/" + args[0] + "/mappings")
			if err != nil {
				return err
			}
			var resp struct {
				Data []mappingResource `json:"data"`
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
				t := newTable("SOURCE UPN", "DEST UPN", "FOLDER")
				for _, m := range resp.Data {
					t.AddRow(m.SourceUPN, m.DestUPN, m.FolderPath)
				}
				t.Flush()
			}
			return nil
		},
	}

	projectCmd.AddCommand(listCmd, createCmd, archiveCmd, mappingsCmd, getMappingsCmd)
}

func readMappingsCSV(path string) ([]mappingResource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var mappings []mappingResource
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("%s: expected at least 2 columns, got %d", path, len(record))
		}
		// Header row.
		if strings.EqualFold(strings.TrimSpace(record[0]), "SourceUPN") {
			continue
		}
		m := mappingResource{
			SourceUPN: strings.TrimSpace(record[0]),
			DestUPN:   strings.TrimSpace(record[1]),
		}
		if len(record) > 2 {
			m.FolderPath = strings.TrimSpace(record[2])
		}
		mappings = append(mappings, m)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%s: no mappings found", path)
	}
	return mappings, nil
}
