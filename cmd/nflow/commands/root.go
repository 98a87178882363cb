// Package commands provides the CLI commands for the nflow tool.
package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-nullflow/internal/config"
	"github.com/l3aro/go-nullflow/internal/log"
)

// ErrFindings is returned by check when an error-level finding was
// reported. The binary maps it to exit status 1 without printing it.
var ErrFindings = errors.New("nullability errors found")

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "nflow",
	Short: "nflow - Flow-sensitive nullability checking for Kotlin",
	Long: `nflow tracks what is known about nullable values along every path of a
function and reports where a nullable value is used unsafely.

Commands:
  check       Check files or directories for nullability errors
  cfg         Print the control flow graph of a function
  facts       Show what is known about every read in a function
  init        Create a configuration file interactively
  doctor      Check configuration, parser and cache

Use "nflow [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file (default: .nflow/config.yaml, then ~/.nflow/config.yaml)")
	RootCmd.PersistentFlags().Bool("verbose", false, "Log debug information")
	RootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON lines")
	RootCmd.PersistentFlags().String("color", "", "Color output: auto, always or never")

	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(cfgCmd)
	RootCmd.AddCommand(factsCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(doctorCmd)
}

// loadConfig reads the configuration selected by --config and applies the
// persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("verbose") {
		cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}
	if cmd.Flags().Changed("color") {
		c, _ := cmd.Flags().GetString("color")
		cfg.Color = config.ColorMode(c)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger. It writes to w, which is stderr
// in normal use.
func newLogger(cfg *config.Config, w io.Writer) log.Logger {
	level := log.WarnLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	colors := useColor(cfg, w)
	return log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: cfg.LogJSON,
		Output:     w,
		Colors:     &colors,
	})
}

// useColor resolves the color mode for output written to w.
func useColor(cfg *config.Config, w io.Writer) bool {
	switch cfg.Color {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	return log.IsTerminal(w)
}
