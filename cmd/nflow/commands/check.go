package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-nullflow/internal/config"
	"github.com/l3aro/go-nullflow/internal/log"
	"github.com/l3aro/go-nullflow/internal/scanner"
	"github.com/l3aro/go-nullflow/pkg/cache"
	"github.com/l3aro/go-nullflow/pkg/extractor"
	"github.com/l3aro/go-nullflow/pkg/smartcast"
	"github.com/l3aro/go-nullflow/pkg/types"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Check Kotlin sources for nullability errors",
	Long: `Analyzes every function of the given files, or of every Kotlin file below
the given directories, and reports:

  TYPE_MISMATCH                    a nullable value used where null is not allowed
  UNNECESSARY_NOT_NULL_ASSERTION   !! on a value already known not to be null
  ALWAYS_NULL                      !! on a value proven to be null (assertion_policy: report)

With no arguments the current directory is checked. The exit status is 1
when any error is reported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyCheckFlags(cmd, cfg); err != nil {
			return err
		}
		logger := newLogger(cfg, cmd.ErrOrStderr())

		if len(args) == 0 {
			args = []string{"."}
		}

		c := newChecker(cfg, logger)
		if err := c.openCache(); err != nil {
			logger.Warn("ignoring unreadable cache", "error", err)
		}

		spinner := log.NewProgressSpinner(cmd.ErrOrStderr(), "Checking...")
		if cfg.Output == config.OutputText {
			spinner.Start()
		}
		results, err := c.run(cmd.Context(), args)
		spinner.Stop()
		if err != nil {
			return err
		}

		if err := c.closeCache(); err != nil {
			logger.Warn("failed to save cache", "error", err)
		}

		summary, err := writeResults(cmd.OutOrStdout(), cfg, results)
		if err != nil {
			return err
		}
		if summary.Errors > 0 {
			return ErrFindings
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	checkCmd.Flags().Bool("smart-casts", false, "Also print smart-cast markers")
	checkCmd.Flags().String("assertions", "", "Report !! on values proven null: silent or report")
	checkCmd.Flags().Bool("no-cache", false, "Analyze every file even if a cached report exists")
	checkCmd.Flags().Int("workers", 0, "Files analyzed in parallel (default: GOMAXPROCS)")
}

func applyCheckFlags(cmd *cobra.Command, cfg *config.Config) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		cfg.Output = config.OutputJSON
	}
	if cmd.Flags().Changed("smart-casts") {
		cfg.ShowSmartCasts, _ = cmd.Flags().GetBool("smart-casts")
	}
	if cmd.Flags().Changed("assertions") {
		cfg.AssertionPolicy, _ = cmd.Flags().GetString("assertions")
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.CacheEnabled = false
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// fileResult is the outcome of checking one file.
type fileResult struct {
	Report *types.FileReport
	Source []byte
	Cached bool
}

// checker runs the analysis over a set of files.
type checker struct {
	cfg    *config.Config
	logger log.Logger
	store  *cache.ReportStore
}

func newChecker(cfg *config.Config, logger log.Logger) *checker {
	return &checker{cfg: cfg, logger: logger}
}

// openCache loads the persisted reports. The checker runs uncached when
// caching is disabled; on error it runs with an empty cache.
func (c *checker) openCache() error {
	if !c.cfg.CacheEnabled {
		return nil
	}
	path := filepath.Join(c.cfg.CacheDir, cache.DefaultFileName)
	c.store = cache.NewReportStore(path, c.cfg.CacheMaxEntries)
	if err := c.store.Load(); err != nil {
		c.store = cache.NewReportStore(path, c.cfg.CacheMaxEntries)
		return err
	}
	c.logger.Debug("loaded cache", "path", path, "entries", c.store.Len())
	return nil
}

func (c *checker) closeCache() error {
	if c.store == nil {
		return nil
	}
	stats := c.store.Stats()
	c.logger.Debug("cache stats", "hits", stats.HitCount, "misses", stats.MissCount, "entries", stats.Length)
	return c.store.Save()
}

// run scans paths and checks every file found. Results keep scan order.
func (c *checker) run(ctx context.Context, paths []string) ([]fileResult, error) {
	opts := scanner.DefaultOptions()
	opts.Extensions = c.cfg.Extensions
	files, err := scanner.New(opts).ScanPaths(paths)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("scanned", "files", len(files))

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.EffectiveWorkers())

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := c.checkFile(gctx, f)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkFile analyzes one file, or returns its cached report when neither
// the content nor the analysis settings changed.
func (c *checker) checkFile(ctx context.Context, f scanner.FileInfo) (fileResult, error) {
	src, err := os.ReadFile(f.FullPath)
	if err != nil {
		return fileResult{}, fmt.Errorf("reading file %s: %w", f.Path, err)
	}

	key := cache.ReportKey(f.FullPath, src, c.cfg.Fingerprint())
	if c.store != nil {
		if rep, err := c.store.Get(key); err == nil {
			cp := *rep
			cp.Path = f.Path
			return fileResult{Report: &cp, Source: src, Cached: true}, nil
		}
	}

	file, err := extractor.ParseKotlin(f.Path, src)
	var syntaxErr *extractor.SyntaxError
	if err != nil && !errors.As(err, &syntaxErr) {
		return fileResult{}, err
	}
	if syntaxErr != nil {
		c.logger.Warn("syntax error, checking recovered code only", "file", f.Path, "at", syntaxErr.At.String())
	}

	res, err := smartcast.AnalyzeFile(ctx, file, smartcast.Options{
		Policy:     c.cfg.StablePolicy(),
		Assertions: c.cfg.Assertions(),
		Workers:    c.cfg.EffectiveWorkers(),
		Logger:     c.logger,
	})
	if err != nil {
		return fileResult{}, err
	}

	rep := res.Report()
	rep.Path = f.Path
	rep.Hash = cache.HashBytes(src)
	if syntaxErr != nil {
		rep.SyntaxError = syntaxErr.Error()
	}
	if c.store != nil {
		c.store.Put(key, rep)
	}
	return fileResult{Report: rep, Source: src}, nil
}

// checkOutput is the --json document.
type checkOutput struct {
	Files   []*types.FileReport `json:"files"`
	Summary types.Summary       `json:"summary"`
}

// writeResults prints results in the configured format and returns their
// totals.
func writeResults(w io.Writer, cfg *config.Config, results []fileResult) (types.Summary, error) {
	var summary types.Summary
	for _, r := range results {
		summary.Add(r.Report, r.Cached)
	}

	if cfg.Output == config.OutputJSON {
		out := checkOutput{Files: make([]*types.FileReport, 0, len(results)), Summary: summary}
		for _, r := range results {
			rep := r.Report
			if !cfg.ShowSmartCasts && rep.Markers != nil {
				cp := *rep
				cp.Markers = nil
				rep = &cp
			}
			out.Files = append(out.Files, rep)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return summary, fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return summary, err
	}

	p := newPrinter(w, useColor(cfg, w))
	for _, r := range results {
		p.file(r.Report, r.Source, cfg.ShowSmartCasts)
	}
	p.summary(summary)
	return summary, p.err
}
