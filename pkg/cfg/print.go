package cfg

import (
	"fmt"
	"io"
	"strings"

	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

// Label describes node n in one line.
func (g *Graph) Label(n int) string {
	node := g.Nodes[n]
	var sb strings.Builder
	fmt.Fprintf(&sb, "n%d %s", node.ID, node.Kind)
	switch node.Kind {
	case NodeUse:
		fmt.Fprintf(&sb, "(%s) %s", node.Context, ExprString(node.Expr))
	case NodeRead, NodeBranch:
		sb.WriteString(" " + ExprString(node.Expr))
	case NodeAssert:
		sb.WriteString(" " + ExprString(node.Expr) + "!!")
	case NodeAssign:
		fmt.Fprintf(&sb, " %s = %s", ExprString(node.Target), ExprString(node.Expr))
	case NodeDecl:
		sb.WriteString(" " + node.Binding.Name)
		if node.Expr != nil {
			sb.WriteString(" = " + ExprString(node.Expr))
		}
	case NodeJump:
		sb.WriteString(" " + ExprString(node.Expr))
	}
	if node.Kind != NodeEntry && node.Kind != NodeExit && node.Kind != NodeJoin {
		sb.WriteString(" @" + node.At.String())
	}
	return sb.String()
}

// EdgeLabel describes the kind and assumptions of edge e.
func (g *Graph) EdgeLabel(e int) string {
	edge := g.Edges[e]
	parts := []string{edge.Kind.String()}
	if edge.Infeasible {
		parts = append(parts, "infeasible")
	}
	for _, r := range edge.Assume {
		if r.Equal != "" {
			parts = append(parts, g.name(r.Key)+" == "+g.name(r.Equal))
			continue
		}
		parts = append(parts, g.name(r.Key)+": "+r.State.String())
	}
	return strings.Join(parts, " ")
}

func (g *Graph) name(k stable.Key) string {
	if n, ok := g.Names[k]; ok {
		return n
	}
	return string(k)
}

// Format writes g one node per line followed by its outgoing edges. If
// annotate is not nil its result is appended to each node line.
func (g *Graph) Format(w io.Writer, annotate func(n int) string) error {
	for i := range g.Nodes {
		line := g.Label(i)
		if annotate != nil {
			if extra := annotate(i); extra != "" {
				line += "  " + extra
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		for _, ei := range g.Nodes[i].Succs {
			if _, err := fmt.Fprintf(w, "    -> n%d %s\n", g.Edges[ei].To, g.EdgeLabel(ei)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExprString renders e compactly for graph dumps.
func ExprString(e ast.Expr) string {
	switch e := e.(type) {
	case nil:
		return ""
	case *ast.Paren:
		return "(" + ExprString(e.X) + ")"
	case *ast.BoolLit:
		if e.Value {
			return "true"
		}
		return "false"
	case *ast.Compare:
		return ExprString(e.Left) + " " + e.Op.String() + " " + ExprString(e.Right)
	case *ast.IsCheck:
		op := "is"
		if e.Negated {
			op = "!is"
		}
		if e.X == nil {
			return op + " " + e.Type.String()
		}
		return ExprString(e.X) + " " + op + " " + e.Type.String()
	case *ast.And:
		return ExprString(e.Left) + " && " + ExprString(e.Right)
	case *ast.Or:
		return ExprString(e.Left) + " || " + ExprString(e.Right)
	case *ast.Not:
		return "!" + ExprString(e.X)
	case *ast.Elvis:
		return ExprString(e.Left) + " ?: " + ExprString(e.Right)
	case *ast.Jump:
		s := e.Kind.String()
		if e.Label != "" {
			s += "@" + e.Label
		}
		if e.Value != nil {
			s += " " + ExprString(e.Value)
		}
		return s
	}
	return stable.Describe(e)
}
