package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-nullflow/internal/config"
	"github.com/l3aro/go-nullflow/internal/healthcheck"
	"github.com/l3aro/go-nullflow/pkg/report"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize nflow configuration interactively",
	Long: `Guides you through setting up nflow configuration step by step.
Creates a config file with analysis, output and cache settings, then runs
the health check against it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd.OutOrStdout())
	},
}

func runInit(w io.Writer) error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Analysis ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Assertions on null values").
				Description("Report !! applied to a value that is always null?").
				Options(
					huh.NewOption("Silent (the assertion throws at run time anyway)", report.AssertSilent.String()),
					huh.NewOption("Report as a warning", report.AssertReport.String()),
				).
				Value(&cfg.AssertionPolicy),
			huh.NewConfirm().
				Title("Mutable locals").
				Description("Treat var locals that no lambda captures as stable?").
				Affirmative("Yes").
				Negative("No, strict").
				Value(&cfg.StableUncapturedLocals),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Output ===
	output := string(cfg.Output)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Output format").
				Options(
					huh.NewOption("Text", string(config.OutputText)),
					huh.NewOption("JSON", string(config.OutputJSON)),
				).
				Value(&output),
			huh.NewConfirm().
				Title("Smart casts").
				Description("Also print where a nullable value was smart cast?").
				Value(&cfg.ShowSmartCasts),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.Output = config.OutputFormat(output)

	// === SECTION 3: Cache ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Result cache").
				Description("Reuse reports of files that did not change?").
				Affirmative("Enable").
				Negative("Disable").
				Value(&cfg.CacheEnabled),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if cfg.CacheEnabled {
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Cache directory").
					Placeholder(cfg.CacheDir).
					Value(&cfg.CacheDir),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
	}

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.nflow/config.yaml)", "project"),
					huh.NewOption("Global (~/.nflow/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	return saveAndCheck(w, cfg, configPath)
}

// saveAndCheck validates cfg, shows a preview, saves it and runs the
// health check against the saved file.
func saveAndCheck(w io.Writer, cfg *config.Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Fprintln(w, "\n=== Configuration Preview ===")
	fmt.Fprintf(w, "Config path: %s\n", configPath)
	fmt.Fprintf(w, "Assertion policy: %s\n", cfg.AssertionPolicy)
	fmt.Fprintf(w, "Stable uncaptured locals: %t\n", cfg.StableUncapturedLocals)
	fmt.Fprintf(w, "Output: %s (smart casts: %t)\n", cfg.Output, cfg.ShowSmartCasts)
	if cfg.CacheEnabled {
		fmt.Fprintf(w, "Cache: %s\n", cfg.CacheDir)
	} else {
		fmt.Fprintln(w, "Cache: disabled")
	}
	fmt.Fprintln(w, "================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(w, "Configuration saved to: %s\n", configPath)

	fmt.Fprintln(w, "\n=== Running Health Check ===")
	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Fprintf(w, "\nConfig Scope: %s\n", result.SavedScope)
	if result.SavedScope == "global" {
		fmt.Fprintf(w, "Config Path: %s\n", configPath)
	} else {
		absPath, _ := filepath.Abs(configPath)
		fmt.Fprintf(w, "Config Path: %s\n", absPath)
	}
	displayComponents(w, result)
	return nil
}
