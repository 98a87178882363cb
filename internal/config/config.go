package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-nullflow/pkg/report"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

// OutputFormat selects how findings are printed.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ColorMode controls colored output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Config holds all configuration for nflow
type Config struct {
	// AssertionPolicy is "silent" or "report": whether !! on a value proven
	// null is reported.
	AssertionPolicy string `yaml:"assertion_policy" toml:"assertion_policy" env:"NFLOW_ASSERTION_POLICY"`

	// ShowSmartCasts prints the informational smart-cast markers too.
	ShowSmartCasts bool `yaml:"show_smart_casts" toml:"show_smart_casts" env:"NFLOW_SHOW_SMART_CASTS"`

	// StableUncapturedLocals treats mutable locals that no lambda captures
	// as stable.
	StableUncapturedLocals bool `yaml:"stable_uncaptured_locals" toml:"stable_uncaptured_locals" env:"NFLOW_STABLE_UNCAPTURED_LOCALS"`

	// Workers bounds concurrent file and unit analysis. 0 means GOMAXPROCS.
	Workers int `yaml:"workers" toml:"workers" env:"NFLOW_WORKERS"`

	// Result cache
	CacheEnabled    bool   `yaml:"cache_enabled" toml:"cache_enabled" env:"NFLOW_CACHE_ENABLED"`
	CacheDir        string `yaml:"cache_dir" toml:"cache_dir" env:"NFLOW_CACHE_DIR"`
	CacheMaxEntries int    `yaml:"cache_max_entries" toml:"cache_max_entries" env:"NFLOW_CACHE_MAX_ENTRIES"`

	// Output
	Output OutputFormat `yaml:"output" toml:"output" env:"NFLOW_OUTPUT"`
	Color  ColorMode    `yaml:"color" toml:"color" env:"NFLOW_COLOR"`

	// Extensions lists the file extensions scanned by check.
	Extensions []string `yaml:"extensions" toml:"extensions" env:"NFLOW_EXTENSIONS"`

	// Logging
	Verbose bool `yaml:"verbose" toml:"verbose" env:"NFLOW_VERBOSE"`
	LogJSON bool `yaml:"log_json" toml:"log_json" env:"NFLOW_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AssertionPolicy:        report.AssertSilent.String(),
		ShowSmartCasts:         false,
		StableUncapturedLocals: false,
		Workers:                0,
		CacheEnabled:           true,
		CacheDir:               ".nflow/cache",
		CacheMaxEntries:        4096,
		Output:                 OutputText,
		Color:                  ColorAuto,
		Extensions:             []string{".kt", ".kts"},
		Verbose:                false,
		LogJSON:                false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.nflow/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nflow/config.yaml"
	}
	return filepath.Join(home, ".nflow", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.nflow/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".nflow", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.nflow/config.yaml)
// 3. Global config (~/.nflow/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific file. A .toml
// extension selects TOML, anything else is YAML.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(path string, data []byte, cfg *Config) error {
	var err error
	if isTOML(path) {
		_, err = toml.Decode(string(data), cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified file path, as TOML for a
// .toml path and YAML otherwise. It creates parent directories if they
// don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(c); err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("NFLOW_ASSERTION_POLICY"); v != "" {
		cfg.AssertionPolicy = v
	}
	if v := os.Getenv("NFLOW_SHOW_SMART_CASTS"); v != "" {
		cfg.ShowSmartCasts = parseBool(v)
	}
	if v := os.Getenv("NFLOW_STABLE_UNCAPTURED_LOCALS"); v != "" {
		cfg.StableUncapturedLocals = parseBool(v)
	}
	if v := os.Getenv("NFLOW_WORKERS"); v != "" {
		i, err := parseInt(v)
		if err != nil {
			return fmt.Errorf("NFLOW_WORKERS: %w", err)
		}
		cfg.Workers = i
	}
	if v := os.Getenv("NFLOW_CACHE_ENABLED"); v != "" {
		cfg.CacheEnabled = parseBool(v)
	}
	if v := os.Getenv("NFLOW_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("NFLOW_CACHE_MAX_ENTRIES"); v != "" {
		i, err := parseInt(v)
		if err != nil {
			return fmt.Errorf("NFLOW_CACHE_MAX_ENTRIES: %w", err)
		}
		cfg.CacheMaxEntries = i
	}
	if v := os.Getenv("NFLOW_OUTPUT"); v != "" {
		cfg.Output = OutputFormat(strings.ToLower(v))
	}
	if v := os.Getenv("NFLOW_COLOR"); v != "" {
		cfg.Color = ColorMode(strings.ToLower(v))
	}
	if v := os.Getenv("NFLOW_EXTENSIONS"); v != "" {
		cfg.Extensions = splitList(v)
	}
	if v := os.Getenv("NFLOW_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("NFLOW_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	return nil
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if _, err := report.ParseAssertionPolicy(c.AssertionPolicy); err != nil {
		return fmt.Errorf("assertion_policy: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if c.CacheEnabled {
		if c.CacheDir == "" {
			return fmt.Errorf("cache_dir is required when cache_enabled is true")
		}
		if c.CacheMaxEntries <= 0 {
			return fmt.Errorf("cache_max_entries must be positive")
		}
	}
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("invalid output: %s (must be 'text' or 'json')", c.Output)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("invalid color: %s (must be 'auto', 'always' or 'never')", c.Color)
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("extensions must not be empty")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("invalid extension %q: must start with '.'", ext)
		}
	}
	return nil
}

// Assertions returns the parsed assertion policy. Validate guarantees it
// parses.
func (c *Config) Assertions() report.AssertionPolicy {
	p, _ := report.ParseAssertionPolicy(c.AssertionPolicy)
	return p
}

// StablePolicy returns the stability rules selected by the config.
func (c *Config) StablePolicy() stable.Policy {
	return stable.Policy{UncapturedLocals: c.StableUncapturedLocals}
}

// EffectiveWorkers resolves Workers, mapping 0 to GOMAXPROCS.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Fingerprint identifies the settings that change analysis results. Cached
// reports are only reused under the same fingerprint.
func (c *Config) Fingerprint() string {
	return fmt.Sprintf("assert=%s;uncaptured=%t", c.Assertions(), c.StableUncapturedLocals)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool accepts true/1/yes, case-insensitively.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// parseInt parses a non-negative decimal integer.
func parseInt(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("%d is negative", i)
	}
	return i, nil
}
