package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-nullflow/internal/config"
	"github.com/l3aro/go-nullflow/pkg/cache"
	"github.com/l3aro/go-nullflow/pkg/extractor"
	"github.com/l3aro/go-nullflow/pkg/report"
	"github.com/l3aro/go-nullflow/pkg/smartcast"
)

// Component statuses.
const (
	StatusReady    = "ready"
	StatusDisabled = "disabled"
	StatusError    = "error"
)

// ComponentStatus represents the health of one part of the pipeline.
type ComponentStatus struct {
	Detail string
	Status string // "ready", "disabled" or "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Parser         ComponentStatus
	Analysis       ComponentStatus
	Cache          ComponentStatus
}

// Healthy reports whether no component is in error.
func (r *HealthCheckResult) Healthy() bool {
	return r.Parser.Status != StatusError &&
		r.Analysis.Status != StatusError &&
		r.Cache.Status != StatusError
}

// probeSource has exactly one smart cast and one type mismatch.
const probeSource = `fun length(s: String): Int = 0

fun probe(s: String?): Int {
    if (s != null) return length(s)
    return length(s)
}
`

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	var res *smartcast.FileResult
	result.Parser, res = checkPipeline(cfg)
	result.Analysis = checkAnalysis(cfg, res)
	result.Cache = checkCache(cfg)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".nflow")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkPipeline parses and analyzes the probe.
func checkPipeline(cfg *config.Config) (ComponentStatus, *smartcast.FileResult) {
	status := ComponentStatus{Detail: "kotlin (tree-sitter)"}

	file, err := extractor.ParseKotlin("probe.kt", []byte(probeSource))
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status, nil
	}
	if len(file.Functions) != 2 {
		status.Status = StatusError
		status.Error = fmt.Sprintf("probe lowered to %d units, want 2", len(file.Functions))
		return status, nil
	}

	res, err := smartcast.AnalyzeFile(context.Background(), file, smartcast.Options{
		Policy:     cfg.StablePolicy(),
		Assertions: cfg.Assertions(),
		Workers:    1,
	})
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status, nil
	}
	status.Status = StatusReady
	return status, res
}

// checkAnalysis verifies the probe findings.
func checkAnalysis(cfg *config.Config, res *smartcast.FileResult) ComponentStatus {
	status := ComponentStatus{
		Detail: fmt.Sprintf("assertions=%s, uncaptured locals stable=%t", cfg.Assertions(), cfg.StableUncapturedLocals),
	}
	if res == nil {
		status.Status = StatusError
		status.Error = "parser unavailable"
		return status
	}

	diags, markers := res.Diagnostics(), res.Markers()
	switch {
	case len(diags) != 1 || diags[0].Kind != report.TypeMismatch:
		status.Status = StatusError
		status.Error = fmt.Sprintf("probe produced %d findings, want one %s", len(diags), report.TypeMismatch.Code())
	case len(markers) != 1:
		status.Status = StatusError
		status.Error = fmt.Sprintf("probe produced %d smart casts, want 1", len(markers))
	default:
		status.Status = StatusReady
	}
	return status
}

// checkCache loads the report store and checks that its directory is
// writable.
func checkCache(cfg *config.Config) ComponentStatus {
	path := filepath.Join(cfg.CacheDir, cache.DefaultFileName)
	status := ComponentStatus{Detail: path}
	if !cfg.CacheEnabled {
		status.Status = StatusDisabled
		return status
	}

	store := cache.NewReportStore(path, cfg.CacheMaxEntries)
	if err := store.Load(); err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}

	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	f, err := os.CreateTemp(cfg.CacheDir, ".probe-*")
	if err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("cache directory not writable: %v", err)
		return status
	}
	name := f.Name()
	err = errors.Join(f.Close(), os.Remove(name))
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}

	status.Detail = fmt.Sprintf("%s (%d entries)", path, store.Len())
	status.Status = StatusReady
	return status
}
