// Package report turns a solved graph into nullability findings.
package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/cfg"
	"github.com/l3aro/go-nullflow/pkg/dfg"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/snapshot"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

// Kind is the closed set of findings.
type Kind uint8

const (
	// TypeMismatch: a nullable value is used where a non-null one is
	// required and nothing proves it is not null.
	TypeMismatch Kind = iota
	// RedundantAssertion: !! applied to a value already known not to be null.
	RedundantAssertion
	// ImpossibleAssertion: !! applied to a value proven to be null.
	ImpossibleAssertion
	// SmartCast marks a nullable value accepted because flow facts prove it
	// is not null. It is informational.
	SmartCast
)

var kindNames = [...]string{
	TypeMismatch:        "type-mismatch",
	RedundantAssertion:  "redundant-assertion",
	ImpossibleAssertion: "impossible-assertion",
	SmartCast:           "smart-cast",
}

var kindCodes = [...]string{
	TypeMismatch:        "TYPE_MISMATCH",
	RedundantAssertion:  "UNNECESSARY_NOT_NULL_ASSERTION",
	ImpossibleAssertion: "ALWAYS_NULL",
	SmartCast:           "DEBUG_INFO_AUTOCAST",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Code returns the diagnostic code used in marker fixtures.
func (k Kind) Code() string {
	if int(k) < len(kindCodes) {
		return kindCodes[k]
	}
	return k.String()
}

// KindFromCode maps a fixture code back to its kind.
func KindFromCode(code string) (Kind, bool) {
	for i, c := range kindCodes {
		if c == code {
			return Kind(i), true
		}
	}
	return 0, false
}

// Severity ranks kinds for rendering and exit codes.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Severity returns how serious a finding of kind k is.
func (k Kind) Severity() Severity {
	switch k {
	case TypeMismatch:
		return SeverityError
	case RedundantAssertion, ImpossibleAssertion:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Diagnostic is one finding.
type Diagnostic struct {
	Kind Kind
	At   ast.Span
	// Subject is the source text of the value the finding is about.
	Subject string
	Key     stable.Key
	// Context is set for TypeMismatch and SmartCast.
	Context cfg.UseContext
	// Related is the origin of the fact that caused the finding, if any.
	Related *snapshot.Origin
}

// Message renders d in one line.
func (d Diagnostic) Message() string {
	var msg string
	switch d.Kind {
	case TypeMismatch:
		msg = fmt.Sprintf("%s may be null here but a non-null value is required (%s)", d.Subject, d.Context)
	case RedundantAssertion:
		msg = fmt.Sprintf("unnecessary non-null assertion: %s is never null here", d.Subject)
	case ImpossibleAssertion:
		msg = fmt.Sprintf("non-null assertion on %s always fails: it is null here", d.Subject)
	case SmartCast:
		msg = fmt.Sprintf("%s is smart cast to non-null", d.Subject)
	default:
		msg = d.Kind.String()
	}
	if d.Related != nil {
		msg += fmt.Sprintf(" (see %s)", d.Related)
	}
	return msg
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.At, d.Kind, d.Message())
}

// AssertionPolicy decides what to do with !! on a value proven null.
type AssertionPolicy uint8

const (
	// AssertSilent accepts the assertion; it throws at runtime.
	AssertSilent AssertionPolicy = iota
	// AssertReport emits ImpossibleAssertion.
	AssertReport
)

func (p AssertionPolicy) String() string {
	if p == AssertReport {
		return "report"
	}
	return "silent"
}

// ParseAssertionPolicy parses "silent" or "report". The empty string means
// silent.
func ParseAssertionPolicy(s string) (AssertionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "silent":
		return AssertSilent, nil
	case "report":
		return AssertReport, nil
	}
	return 0, fmt.Errorf("invalid assertion policy %q: want silent or report", s)
}

// Options configures Collect.
type Options struct {
	Assertions AssertionPolicy
}

// Collect inspects every reachable use site and assertion of the solved
// graph and returns the findings ordered by source position.
func Collect(sol *dfg.Solution, opts Options) []Diagnostic {
	g := sol.Graph()
	var out []Diagnostic
	for id := range g.Nodes {
		n := &g.Nodes[id]
		if n.Kind != cfg.NodeUse && n.Kind != cfg.NodeAssert {
			continue
		}
		if !sol.Reachable(id) {
			continue
		}

		st := nullness.Unknown
		var related *snapshot.Origin
		if n.HasKey {
			st = sol.State(id, n.Key)
			if f, ok := sol.In(id).Fact(n.Key); ok {
				related = &f.Origin
			}
		}

		d := Diagnostic{
			At:      n.Expr.Span(),
			Subject: stable.Describe(n.Expr),
			Key:     n.Key,
			Related: related,
		}
		switch n.Kind {
		case cfg.NodeUse:
			d.Context = n.Context
			if st == nullness.NotNull {
				d.Kind = SmartCast
			} else {
				d.Kind = TypeMismatch
			}
		case cfg.NodeAssert:
			switch {
			case n.NonNull:
				d.Kind = RedundantAssertion
				d.At = n.Op
				d.Related = nil
			case st == nullness.NotNull:
				d.Kind = RedundantAssertion
				d.At = n.Op
			case st == nullness.Null && opts.Assertions == AssertReport:
				d.Kind = ImpossibleAssertion
			default:
				continue
			}
		}
		out = append(out, d)
	}

	Sort(out)
	return out
}

// Sort orders diagnostics by position, then by kind.
func Sort(ds []Diagnostic) {
	slices.SortStableFunc(ds, func(a, b Diagnostic) int {
		if c := cmp.Compare(a.At.Start.Offset, b.At.Start.Offset); c != 0 {
			return c
		}
		if c := cmp.Compare(a.At.Start.Line, b.At.Start.Line); c != 0 {
			return c
		}
		if c := cmp.Compare(a.At.Start.Column, b.At.Start.Column); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
}
