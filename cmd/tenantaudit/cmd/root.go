// Package cmd implements the tenantaudit CLI commands.
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagAPIKey  string
	flagContext string
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tenantaudit",
	Short: "Tenant migration audit CLI",
	Long: `tenantaudit drives the migration audit API: tenant-wide app scans,
OneDrive file reconciliation and report exports.

Use "tenantaudit config set-context" to configure your connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override API URL (env: TENANTAUDIT_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Override API key (env: TENANTAUDIT_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&flagContext, "context", "c", "", "Use specific context (env: TENANTAUDIT_CONTEXT)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(reportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("tenantaudit %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	},
}

func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("TENANTAUDIT_API_URL")
	}
	if flagAPIKey == "" {
		flagAPIKey = os.Getenv("TENANTAUDIT_API_KEY")
	}

	if flagAPIURL == "" || flagAPIKey == "" {
		u, k := resolveFromConfigFile()
		if flagAPIURL == "" {
			flagAPIURL = u
		}
		if flagAPIKey == "" {
			flagAPIKey = k
		}
	}
}

func resolveFromConfigFile() (string, string) {
	ctxName := flagContext
	if ctxName == "" {
		ctxName = os.Getenv("TENANTAUDIT_CONTEXT")
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", ""
	}

	if ctxName == "" {
		ctxName = cfg.CurrentContext
	}

	ctx := cfg.GetContext(ctxName)
	if ctx == nil {
		return "", ""
	}

	apiKey := ctx.Context.APIKey
	if apiKey == "" && ctx.Context.APIKeyFile != "" {
		data, err := os.ReadFile(expandPath(ctx.Context.APIKeyFile))
		if err == nil {
			apiKey = string(data)
		}
	}

	return ctx.Context.APIURL, apiKey
}

func mustClient() *Client {
	if flagAPIURL == "" {
		fmt.Fprintln(os.Stderr, "Error: API URL not configured. Use --api-url, TENANTAUDIT_API_URL, or 'tenantaudit config set-context'")
		os.Exit(1)
	}
	return NewClient(flagAPIURL, flagAPIKey, flagVerbose)
}
