package smartcast

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-nullflow/internal/testkit"
	"github.com/l3aro/go-nullflow/pkg/extractor"
	"github.com/l3aro/go-nullflow/pkg/report"
)

func markersOf(res *FileResult) []testkit.Marker {
	var out []testkit.Marker
	add := func(ds []report.Diagnostic) {
		for _, d := range ds {
			out = append(out, testkit.Marker{Code: d.Kind.Code(), Start: d.At.Start.Offset, End: d.At.End.Offset})
		}
	}
	add(res.Diagnostics())
	add(res.Markers())
	return out
}

func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.kt"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			src, _, err := testkit.Parse(string(raw))
			require.NoError(t, err)

			file, err := extractor.ParseKotlin(path, []byte(src))
			require.NoError(t, err)

			res, err := AnalyzeFile(context.Background(), file, Options{Workers: 2})
			require.NoError(t, err)

			assert.Equal(t, string(raw), testkit.Render(src, markersOf(res)))
		})
	}
}

func TestFixtureQuery(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "kt2164.kt"))
	require.NoError(t, err)
	src, _, err := testkit.Parse(string(raw))
	require.NoError(t, err)

	file, err := extractor.ParseKotlin("kt2164.kt", []byte(src))
	require.NoError(t, err)
	require.NotNil(t, file.Lookup("foo"))
	main := file.Lookup("main")
	require.NotNil(t, main)

	// The impossible assertion in the else branch is only reported on
	// request.
	res := Analyze(main, Options{Assertions: report.AssertReport})
	var impossible int
	for _, d := range res.Diagnostics() {
		if d.Kind == report.ImpossibleAssertion {
			impossible++
			assert.Equal(t, "x", d.Subject)
		}
	}
	assert.Equal(t, 1, impossible)
}

func TestFileReport(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "kt2164.kt"))
	require.NoError(t, err)
	src, _, err := testkit.Parse(string(raw))
	require.NoError(t, err)

	file, err := extractor.ParseKotlin("kt2164.kt", []byte(src))
	require.NoError(t, err)
	res, err := AnalyzeFile(context.Background(), file, Options{})
	require.NoError(t, err)

	rep := res.Report()
	assert.Equal(t, "kt2164.kt", rep.Path)
	assert.Contains(t, rep.Units, "foo")
	assert.Contains(t, rep.Units, "main")
	assert.True(t, rep.HasErrors())
	assert.Equal(t, 3, rep.Count(report.SeverityError))
	assert.Equal(t, 5, rep.Count(report.SeverityWarning))
	assert.Len(t, rep.Markers, 10)

	for i, f := range rep.Findings {
		assert.Equal(t, "main", f.Unit)
		if i > 0 {
			assert.LessOrEqual(t, rep.Findings[i-1].Start.Offset, f.Start.Offset)
		}
	}
	first := rep.Findings[0]
	assert.Equal(t, "TYPE_MISMATCH", first.Code)
	assert.Equal(t, "x", first.Subject)
	assert.Equal(t, 9, first.Start.Line)
}
