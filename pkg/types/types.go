// Package types defines the serializable results of an analysis run. They
// are what the CLI prints with --json and what the result cache stores.
package types

import (
	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/report"
)

// Related points at the construct that established the fact behind a
// finding.
type Related struct {
	Kind string  `json:"kind"`
	At   ast.Pos `json:"at"`
}

// Finding is one diagnostic or smart-cast marker.
type Finding struct {
	Unit     string   `json:"unit"`
	Code     string   `json:"code"`
	Kind     string   `json:"kind"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Subject  string   `json:"subject,omitempty"`
	Start    ast.Pos  `json:"start"`
	End      ast.Pos  `json:"end"`
	Related  *Related `json:"related,omitempty"`
}

// NewFinding converts a diagnostic of the named unit.
func NewFinding(unit string, d report.Diagnostic) Finding {
	f := Finding{
		Unit:     unit,
		Code:     d.Kind.Code(),
		Kind:     d.Kind.String(),
		Severity: d.Kind.Severity().String(),
		Message:  d.Message(),
		Subject:  d.Subject,
		Start:    d.At.Start,
		End:      d.At.End,
	}
	if d.Related != nil {
		f.Related = &Related{Kind: d.Related.Kind.String(), At: d.Related.At.Start}
	}
	return f
}

// FileReport holds everything reported for one source file.
type FileReport struct {
	Path string `json:"path"`
	// Hash is the hex SHA-256 of the analyzed content.
	Hash     string    `json:"hash,omitempty"`
	Units    []string  `json:"units"`
	Findings []Finding `json:"findings"`
	Markers  []Finding `json:"markers,omitempty"`
	// SyntaxError is set when the file did not parse cleanly. Findings
	// then cover only the recovered parts of the file.
	SyntaxError string `json:"syntax_error,omitempty"`
}

// Count returns how many findings have the given severity.
func (r *FileReport) Count(severity report.Severity) int {
	want := severity.String()
	n := 0
	for _, f := range r.Findings {
		if f.Severity == want {
			n++
		}
	}
	return n
}

// HasErrors reports whether the file has an error-level finding or did not
// parse.
func (r *FileReport) HasErrors() bool {
	return r.SyntaxError != "" || r.Count(report.SeverityError) > 0
}

// Summary totals a set of file reports.
type Summary struct {
	Files    int `json:"files"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Cached   int `json:"cached"`
}

// Add counts r into s.
func (s *Summary) Add(r *FileReport, cached bool) {
	s.Files++
	s.Errors += r.Count(report.SeverityError)
	if r.SyntaxError != "" {
		s.Errors++
	}
	s.Warnings += r.Count(report.SeverityWarning)
	if cached {
		s.Cached++
	}
}
