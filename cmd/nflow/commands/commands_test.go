package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-nullflow/internal/config"
	"github.com/l3aro/go-nullflow/internal/log"
)

const sample = `fun length(s: String): Int = 0

fun f(a: String?) {
    length(a)
    if (a != null) {
        length(a)
    }
}
`

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.Color = config.ColorNever
	cfg.Workers = 2
	return cfg
}

func quietLogger() log.Logger {
	return log.New(log.LoggerConfig{Level: log.ErrorLevel, Output: io.Discard})
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		start, end int
		line, pad  string
		width      int
	}{
		{"spaces", "a\n    foo(x)\n", 10, 11, "    foo(x)", "        ", 1},
		{"tabs kept", "\tfoo(x)", 5, 6, "\tfoo(x)", "\t    ", 1},
		{"wide runes", "val 名前 = x", 13, 14, "val 名前 = x", strings.Repeat(" ", 11), 1},
		{"wide span", "f(名前)", 2, 8, "f(名前)", "  ", 4},
		{"clipped at line end", "foo(x\n  y)", 4, 10, "foo(x", "    ", 1},
		{"empty span", "abc", 1, 1, "abc", " ", 1},
		{"crlf", "abc\r\n", 1, 2, "abc", " ", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, pad, width, ok := excerpt([]byte(tt.src), tt.start, tt.end)
			require.True(t, ok)
			assert.Equal(t, tt.line, line)
			assert.Equal(t, tt.pad, pad)
			assert.Equal(t, tt.width, width)
		})
	}

	_, _, _, ok := excerpt([]byte("abc"), 10, 12)
	assert.False(t, ok)
}

func TestCheckerRun(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "src/Sample.kt", sample)
	writeSource(t, dir, "src/Clean.kt", "fun g(a: String) {}\n")
	writeSource(t, dir, "notes.txt", "not kotlin")

	cfg := testConfig(t)
	cfg.CacheEnabled = false
	c := newChecker(cfg, quietLogger())
	require.NoError(t, c.openCache())

	results, err := c.run(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, results, 2)

	clean, flagged := results[0].Report, results[1].Report
	assert.True(t, strings.HasSuffix(clean.Path, "src/Clean.kt"))
	assert.Empty(t, clean.Findings)
	assert.True(t, strings.HasSuffix(flagged.Path, "src/Sample.kt"))
	require.Len(t, flagged.Findings, 1)
	assert.Equal(t, "TYPE_MISMATCH", flagged.Findings[0].Code)
	assert.Equal(t, 4, flagged.Findings[0].Start.Line)
	assert.Equal(t, 12, flagged.Findings[0].Start.Column)
	require.Len(t, flagged.Markers, 1)
	assert.Equal(t, 6, flagged.Markers[0].Start.Line)
	assert.NotEmpty(t, flagged.Hash)

	var out bytes.Buffer
	summary, err := writeResults(&out, cfg, results)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 1, summary.Errors)

	text := out.String()
	assert.Contains(t, text, "Sample.kt:4:12: error: ")
	assert.Contains(t, text, "[TYPE_MISMATCH]")
	assert.Contains(t, text, "\n        length(a)\n               ^\n")
	assert.NotContains(t, text, "DEBUG_INFO_AUTOCAST")
	assert.True(t, strings.HasSuffix(text, "1 error, 0 warnings in 2 files\n"))

	cfg.ShowSmartCasts = true
	out.Reset()
	_, err = writeResults(&out, cfg, results)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Sample.kt:6:16: info: ")
}

func TestCheckerCache(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "Sample.kt", sample)
	cfg := testConfig(t)

	check := func() fileResult {
		t.Helper()
		c := newChecker(cfg, quietLogger())
		require.NoError(t, c.openCache())
		results, err := c.run(context.Background(), []string{path})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, c.closeCache())
		return results[0]
	}

	first := check()
	assert.False(t, first.Cached)
	assert.FileExists(t, filepath.Join(cfg.CacheDir, "reports.msgpack"))

	second := check()
	assert.True(t, second.Cached)
	assert.Equal(t, first.Report.Findings, second.Report.Findings)
	assert.Equal(t, first.Report.Path, second.Report.Path)

	// A different assertion policy must not reuse the cached report.
	cfg.AssertionPolicy = "report"
	assert.False(t, check().Cached)

	// Nor must changed content.
	writeSource(t, dir, "Sample.kt", sample+"\nfun h() {}\n")
	changed := check()
	assert.False(t, changed.Cached)
	assert.Contains(t, changed.Report.Units, "h")
}

func TestCheckerSyntaxError(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "Broken.kt", "fun f( {\n")
	cfg := testConfig(t)
	cfg.CacheEnabled = false

	c := newChecker(cfg, quietLogger())
	results, err := c.run(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Report.SyntaxError, "syntax error")

	var out bytes.Buffer
	summary, err := writeResults(&out, cfg, results)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.True(t, strings.HasPrefix(out.String(), "error: "))
}

func TestWriteResultsJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "Sample.kt", sample)
	cfg := testConfig(t)
	cfg.CacheEnabled = false
	cfg.Output = config.OutputJSON

	c := newChecker(cfg, quietLogger())
	results, err := c.run(context.Background(), []string{path})
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = writeResults(&out, cfg, results)
	require.NoError(t, err)

	var doc checkOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	require.Len(t, doc.Files, 1)
	assert.Equal(t, 1, doc.Summary.Errors)
	assert.Len(t, doc.Files[0].Findings, 1)
	assert.Empty(t, doc.Files[0].Markers, "markers are omitted unless requested")
	assert.NotEmpty(t, results[0].Report.Markers, "omitting markers must not touch the report")
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "Sample.kt", sample)
	cfgPath := writeSource(t, dir, "nflow.yaml", "cache_enabled: false\ncolor: never\n")

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetArgs([]string{"check", "--config", cfgPath, "--json", dir})
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})

	err := RootCmd.Execute()
	require.ErrorIs(t, err, ErrFindings)

	var doc checkOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, 1, doc.Summary.Files)
	assert.Equal(t, 1, doc.Summary.Errors)
	assert.NoDirExists(t, filepath.Join(dir, ".nflow"))
}

func TestAnalyzeUnit(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "Sample.kt", sample)
	cfg := testConfig(t)

	unit, err := analyzeUnit(context.Background(), cfg, path, "f")
	require.NoError(t, err)
	assert.Equal(t, "f", unit.Function().Name)

	_, err = analyzeUnit(context.Background(), cfg, path, "len")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you mean: length?")

	_, err = analyzeUnit(context.Background(), cfg, path, "zzz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available: f, length")

	_, err = analyzeUnit(context.Background(), cfg, dir, "f")
	assert.ErrorContains(t, err, "directory")

	txt := writeSource(t, dir, "a.txt", "")
	_, err = analyzeUnit(context.Background(), cfg, txt, "f")
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestPrintGraph(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "Sample.kt", sample)
	unit, err := analyzeUnit(context.Background(), testConfig(t), path, "f")
	require.NoError(t, err)

	var plain, annotated bytes.Buffer
	require.NoError(t, printGraph(&plain, unit, false))
	require.NoError(t, printGraph(&annotated, unit, true))
	assert.True(t, strings.HasPrefix(plain.String(), "unit f: "))
	assert.Contains(t, plain.String(), "    -> n")
	assert.Greater(t, annotated.Len(), plain.Len())

	info := graphInfoOf(unit)
	assert.Equal(t, "f", info.Unit)
	require.Len(t, info.Nodes, len(unit.Graph().Nodes))
	assert.True(t, info.Nodes[info.Entry].Reachable)
	assert.NotEmpty(t, info.Nodes[info.Entry].Edges)
}

func TestReadFacts(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "Sample.kt", sample)
	unit, err := analyzeUnit(context.Background(), testConfig(t), path, "f")
	require.NoError(t, err)

	facts := readFacts(unit)
	var states []string
	for _, f := range facts {
		if f.Expr == "a" {
			states = append(states, f.State)
		}
	}
	// The unguarded call, the comparison and the guarded call.
	assert.Equal(t, []string{"unknown", "unknown", "not-null"}, states)

	var out bytes.Buffer
	require.NoError(t, printFacts(&out, facts))
	assert.Contains(t, out.String(), "not-null")
}
