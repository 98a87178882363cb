package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-nullflow/internal/config"
	"github.com/l3aro/go-nullflow/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration, parser and cache",
	Long: `Checks the configuration, runs the parser and the analysis on a small
probe with known findings, and verifies that the result cache is usable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			configPath = effectiveConfigPath()
		}

		result, err := healthcheck.Check(cfg, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)

		if !result.Healthy() {
			return errors.New("health check failed: one or more components are not working")
		}
		return nil
	},
}

// effectiveConfigPath returns the config file Load gives the highest
// priority to, or "" when only defaults apply.
func effectiveConfigPath() string {
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Fprintln(w, "Using config: defaults (run 'nflow init' to create a config file)")
	} else {
		fmt.Fprintf(w, "Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
	}
	displayComponents(w, result)
}

func displayComponents(w io.Writer, result *healthcheck.HealthCheckResult) {
	printComponent(w, "Parser", result.Parser)
	printComponent(w, "Analysis", result.Analysis)
	printComponent(w, "Cache", result.Cache)
}

func printComponent(w io.Writer, name string, s healthcheck.ComponentStatus) {
	fmt.Fprintf(w, "\n%s:\n", name)
	if s.Detail != "" {
		fmt.Fprintf(w, "  %s\n", s.Detail)
	}
	fmt.Fprintf(w, "  Status: %s %s\n", formatStatusIcon(s.Status), s.Status)
	if s.Error != "" && s.Status == healthcheck.StatusError {
		fmt.Fprintf(w, "  Error: %s\n", s.Error)
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusDisabled:
		return "-"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}
