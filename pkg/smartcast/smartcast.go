// Package smartcast is the entry point the type checker uses: it builds,
// solves and reports on one analysis unit and answers nullability queries
// about its expressions.
package smartcast

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-nullflow/internal/log"
	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/cfg"
	"github.com/l3aro/go-nullflow/pkg/dfg"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/report"
	"github.com/l3aro/go-nullflow/pkg/stable"
	"github.com/l3aro/go-nullflow/pkg/types"
)

// Options configures an analysis.
type Options struct {
	Policy     stable.Policy
	Oracle     ast.TypeOracle
	Assertions report.AssertionPolicy
	// Workers bounds how many units AnalyzeFile analyzes at once. Zero
	// means GOMAXPROCS.
	Workers int
	// Logger receives per-unit statistics at debug level. Nil disables
	// logging.
	Logger log.Logger
}

func (o Options) oracle() ast.TypeOracle {
	if o.Oracle == nil {
		return ast.DefaultOracle{}
	}
	return o.Oracle
}

// Result is the analysis of one unit. It is immutable.
type Result struct {
	fn     *ast.Function
	graph  *cfg.Graph
	sol    *dfg.Solution
	oracle ast.TypeOracle

	diagnostics []report.Diagnostic
	markers     []report.Diagnostic
}

// Analyze runs the whole pipeline on fn. The solver finishes before any
// finding is collected.
func Analyze(fn *ast.Function, opts Options) *Result {
	oracle := opts.oracle()
	g := cfg.Build(fn, cfg.Options{Policy: opts.Policy, Oracle: oracle})
	sol := dfg.Solve(g)

	r := &Result{fn: fn, graph: g, sol: sol, oracle: oracle}
	for _, d := range report.Collect(sol, report.Options{Assertions: opts.Assertions}) {
		if d.Kind == report.SmartCast {
			r.markers = append(r.markers, d)
		} else {
			r.diagnostics = append(r.diagnostics, d)
		}
	}

	if opts.Logger != nil {
		opts.Logger.Debug("analyzed unit",
			"unit", fn.Name,
			"nodes", len(g.Nodes),
			"edges", len(g.Edges),
			"visits", sol.Visits,
			"diagnostics", len(r.diagnostics),
		)
	}
	return r
}

// Function returns the analyzed unit.
func (r *Result) Function() *ast.Function { return r.fn }

// Graph returns the control flow graph of the unit.
func (r *Result) Graph() *cfg.Graph { return r.graph }

// Solution returns the solved snapshots.
func (r *Result) Solution() *dfg.Solution { return r.sol }

// Diagnostics returns the findings ordered by source position. Smart-cast
// markers are not included.
func (r *Result) Diagnostics() []report.Diagnostic { return r.diagnostics }

// Markers returns the informational smart-cast markers.
func (r *Result) Markers() []report.Diagnostic { return r.markers }

// StateAt returns what is known about k immediately before node n.
func (r *Result) StateAt(n int, k stable.Key) nullness.State {
	return r.sol.State(n, k)
}

// Query answers whether the value of e at its position is null. For a
// variable or property read it combines the declared type with the solved
// flow facts. Dead code answers Unreachable. Expressions the graph does not
// track fall back to their static type.
func (r *Result) Query(e ast.Expr) nullness.State {
	e = ast.Unparen(e)
	if _, ok := e.(*ast.NullLit); ok {
		return nullness.Null
	}

	n, ok := r.graph.Reads[e]
	if !ok {
		if r.oracle.ExcludesNull(ast.TypeOf(e)) {
			return nullness.NotNull
		}
		return nullness.Unknown
	}

	if !r.sol.Reachable(n) {
		return nullness.Unreachable
	}
	node := &r.graph.Nodes[n]
	if node.NonNull {
		return nullness.NotNull
	}
	if !node.HasKey {
		return nullness.Unknown
	}
	return r.sol.State(n, node.Key)
}

// FileResult is the analysis of every unit of a file.
type FileResult struct {
	File  *ast.File
	Units []*Result
}

// Unit returns the result for the named unit.
func (f *FileResult) Unit(name string) *Result {
	for _, u := range f.Units {
		if u.fn.Name == name {
			return u
		}
	}
	return nil
}

// Diagnostics merges the findings of all units in source order.
func (f *FileResult) Diagnostics() []report.Diagnostic {
	var out []report.Diagnostic
	for _, u := range f.Units {
		out = append(out, u.diagnostics...)
	}
	report.Sort(out)
	return out
}

// Markers merges the smart-cast markers of all units in source order.
func (f *FileResult) Markers() []report.Diagnostic {
	var out []report.Diagnostic
	for _, u := range f.Units {
		out = append(out, u.markers...)
	}
	report.Sort(out)
	return out
}

// Report converts f into its serializable form. Findings and markers are in
// source order.
func (f *FileResult) Report() *types.FileReport {
	rep := &types.FileReport{Path: f.File.Path, Units: []string{}, Findings: []types.Finding{}}
	var ds, ms []types.Finding
	for _, u := range f.Units {
		rep.Units = append(rep.Units, u.fn.Name)
		for _, d := range u.diagnostics {
			ds = append(ds, types.NewFinding(u.fn.Name, d))
		}
		for _, d := range u.markers {
			ms = append(ms, types.NewFinding(u.fn.Name, d))
		}
	}
	sortFindings(ds)
	sortFindings(ms)
	if ds != nil {
		rep.Findings = ds
	}
	rep.Markers = ms
	return rep
}

func sortFindings(fs []types.Finding) {
	slices.SortStableFunc(fs, func(a, b types.Finding) int {
		if c := cmp.Compare(a.Start.Offset, b.Start.Offset); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
}

// AnalyzeFile analyzes the units of file concurrently. Units share no
// mutable state. An internal error in any unit aborts the file.
func AnalyzeFile(ctx context.Context, file *ast.File, opts Options) (*FileResult, error) {
	res := &FileResult{File: file, Units: make([]*Result, len(file.Functions))}
	if len(file.Functions) == 0 {
		return res, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(workers, len(file.Functions)))

	for i, fn := range file.Functions {
		g.Go(func() (err error) {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer func() {
				if p := recover(); p != nil {
					err = unitPanic(fn, p)
				}
			}()
			res.Units[i] = Analyze(fn, opts)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", file.Path, err)
	}
	return res, nil
}

func unitPanic(fn *ast.Function, p any) error {
	var ie *cfg.InternalError
	if err, ok := p.(error); ok && errors.As(err, &ie) {
		return fmt.Errorf("unit %s: %w", fn.Name, ie)
	}
	panic(p)
}
