// Package cfg defines the control flow graph the nullability solver runs on
// and builds it from a resolved function body.
//
// Nodes and edges live in arenas on the Graph and refer to each other by
// index only.
package cfg

import (
	"fmt"

	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/snapshot"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

// NodeKind represents what a node does to the flow state.
type NodeKind uint8

const (
	NodeEntry  NodeKind = iota // function entry point
	NodeExit                   // function exit point
	NodeJoin                   // merge point, no effect
	NodeBranch                 // evaluates a condition, has true and false successors
	NodeRead                   // reads a variable or property
	NodeUse                    // a value is required to be non-null here
	NodeAssert                 // x!!
	NodeAssign                 // store into a variable or property
	NodeDecl                   // local declaration, loop variable or catch parameter
	NodeJump                   // return, throw, break, continue or a call returning Nothing
)

func (k NodeKind) String() string {
	switch k {
	case NodeEntry:
		return "entry"
	case NodeExit:
		return "exit"
	case NodeJoin:
		return "join"
	case NodeBranch:
		return "branch"
	case NodeRead:
		return "read"
	case NodeUse:
		return "use"
	case NodeAssert:
		return "assert"
	case NodeAssign:
		return "assign"
	case NodeDecl:
		return "decl"
	case NodeJump:
		return "jump"
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// EdgeKind represents the type of a CFG edge.
type EdgeKind uint8

const (
	Unconditional EdgeKind = iota
	TrueBranch
	FalseBranch
	AbruptExit // return, throw, break, continue and exceptional edges
)

func (k EdgeKind) String() string {
	switch k {
	case Unconditional:
		return "unconditional"
	case TrueBranch:
		return "true"
	case FalseBranch:
		return "false"
	case AbruptExit:
		return "abrupt"
	}
	return fmt.Sprintf("EdgeKind(%d)", uint8(k))
}

// UseContext says why a use site requires a non-null value.
type UseContext uint8

const (
	UseArgument    UseContext = iota // argument for a non-null parameter
	UseReceiver                      // receiver of a non-safe member access or call
	UseInitializer                   // initializer of a non-null declaration
	UseAssignment                    // value stored into a non-null location
	UseReturn                        // value returned from a non-null function
)

func (c UseContext) String() string {
	switch c {
	case UseArgument:
		return "argument"
	case UseReceiver:
		return "receiver"
	case UseInitializer:
		return "initializer"
	case UseAssignment:
		return "assignment"
	case UseReturn:
		return "return"
	}
	return fmt.Sprintf("UseContext(%d)", uint8(c))
}

// Node is one program point. Which fields are set depends on Kind.
type Node struct {
	ID   int
	Kind NodeKind
	At   ast.Span

	// Expr is the operand of a Read, Use or Assert, the condition of a
	// Branch, the value of an Assign or Decl, or the jump expression.
	Expr ast.Expr
	// Key is the dataflow key of the operand, or of the written location for
	// Assign and Decl. HasKey is false when the expression is not stable.
	Key    stable.Key
	HasKey bool
	// Type is the static type of the operand; NonNull reports whether the
	// type oracle excludes null for it.
	Type    ast.TypeRef
	NonNull bool

	Context UseContext   // NodeUse
	Op      ast.Span     // NodeAssert: the !! operator
	Target  ast.Expr     // NodeAssign
	Binding *ast.Binding // NodeDecl
	Jump    ast.JumpKind // NodeJump

	// Path is the syntactic location written by an Assign or Decl. Facts
	// about Path and every chain through it are dropped.
	Path stable.Key
	// SeedNotNull is set when the stored value is provably non-null.
	// SeedFrom names a stable value whose NotNull state carries over.
	SeedNotNull bool
	SeedFrom    stable.Key

	Succs []int // outgoing edge indices
	Preds []int // incoming edge indices
}

// Refinement is a fact an edge assumes.
type Refinement struct {
	Key    stable.Key
	State  nullness.State
	Origin snapshot.Origin
	// Equal, when set, names a second key known to hold the same value as
	// Key along the edge. Both keys are refined with what is known about
	// either and State is ignored.
	Equal stable.Key
}

// Edge is a directed edge between two nodes.
type Edge struct {
	ID       int
	From, To int
	Kind     EdgeKind
	Assume   []Refinement
	// Infeasible marks edges no execution takes, such as the false edge of
	// a literal true condition.
	Infeasible bool
}

// Graph is the control flow graph of one analysis unit.
type Graph struct {
	Func  *ast.Function
	Nodes []Node
	Edges []Edge
	Entry int
	Exit  int

	// Reads maps every variable or property read to its Read node.
	Reads map[ast.Expr]int
	// Names maps keys to the source text they were first seen as.
	Names map[stable.Key]string
}

// Succs returns the indices of the nodes following n.
func (g *Graph) Succs(n int) []int {
	out := make([]int, 0, len(g.Nodes[n].Succs))
	for _, e := range g.Nodes[n].Succs {
		out = append(out, g.Edges[e].To)
	}
	return out
}

// Reachable returns whether each node can be reached from the entry over
// feasible edges.
func (g *Graph) Reachable() []bool {
	seen := make([]bool, len(g.Nodes))
	stack := []int{g.Entry}
	seen[g.Entry] = true
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ei := range g.Nodes[n].Succs {
			e := g.Edges[ei]
			if e.Infeasible || seen[e.To] {
				continue
			}
			seen[e.To] = true
			stack = append(stack, e.To)
		}
	}
	return seen
}

// InternalError reports a graph that violates the builder's contract. It
// signals a bug in the analyzer, never a problem in the analyzed code.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "Internal Error: " + e.Msg
}

func internalError(format string, args ...any) {
	panic(&InternalError{Msg: fmt.Sprintf(format, args...)})
}

// Validate panics with an *InternalError if any edge or adjacency entry
// refers to a node or edge that does not exist or does not match.
func (g *Graph) Validate() {
	nodes, edges := len(g.Nodes), len(g.Edges)
	if g.Entry < 0 || g.Entry >= nodes || g.Exit < 0 || g.Exit >= nodes {
		internalError("entry %d or exit %d out of range [0,%d)", g.Entry, g.Exit, nodes)
	}
	for i, e := range g.Edges {
		if e.ID != i {
			internalError("edge %d has id %d", i, e.ID)
		}
		if e.From < 0 || e.From >= nodes || e.To < 0 || e.To >= nodes {
			internalError("dangling edge %d: n%d -> n%d", i, e.From, e.To)
		}
	}
	for i, n := range g.Nodes {
		if n.ID != i {
			internalError("node %d has id %d", i, n.ID)
		}
		for _, ei := range n.Succs {
			if ei < 0 || ei >= edges || g.Edges[ei].From != i {
				internalError("node n%d lists foreign successor edge %d", i, ei)
			}
		}
		for _, ei := range n.Preds {
			if ei < 0 || ei >= edges || g.Edges[ei].To != i {
				internalError("node n%d lists foreign predecessor edge %d", i, ei)
			}
		}
	}
}
