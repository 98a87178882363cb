package ast

import "fmt"

// TypeOf returns the static type of e as far as the tree records it.
func TypeOf(e Expr) TypeRef {
	switch e := e.(type) {
	case *Ident:
		if e.Binding == nil {
			return TypeRef{}
		}
		return e.Binding.Type
	case *This:
		return TypeRef{Name: "this"}
	case *Member:
		if e.Property != nil {
			t := e.Property.Type
			if e.Safe && t.Known() {
				t.Nullable = true
			}
			return t
		}
		return e.Type
	case *NullLit:
		return NullType
	case *BoolLit:
		return TypeRef{Name: "Boolean"}
	case *Literal:
		return e.Type.NonNull()
	case *NotNullAssert:
		t := TypeOf(e.X)
		if !t.Known() {
			return TypeRef{Name: "Any"}
		}
		return t.NonNull()
	case *Compare, *IsCheck, *And, *Or, *Not:
		return TypeRef{Name: "Boolean"}
	case *Paren:
		return TypeOf(e.X)
	case *Call:
		t := e.Type
		if e.Sig != nil && e.Sig.Result.Known() {
			t = e.Sig.Result
		}
		if e.Safe && t.Known() {
			t.Nullable = true
		}
		return t
	case *Elvis:
		r := TypeOf(e.Right)
		l := TypeOf(e.Left)
		if r == Nothing {
			if l.Known() {
				return l.NonNull()
			}
			return TypeRef{}
		}
		return r
	case *Jump:
		return Nothing
	case *Opaque:
		return e.Type
	case *IfExpr, *WhenExpr, *TryExpr:
		return TypeRef{}
	case nil:
		return TypeRef{}
	default:
		panic(fmt.Sprintf("ast.TypeOf: unexpected expression %T", e))
	}
}

// Unparen strips any number of enclosing parentheses.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(*Paren)
		if !ok {
			return e
		}
		e = p.X
	}
}

// Inspect traverses the tree rooted at n in source order, calling f for each
// node. If f returns false the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	expr := func(e Expr) {
		if e != nil {
			Inspect(e, f)
		}
	}
	stmt := func(s Stmt) {
		if s != nil {
			Inspect(s, f)
		}
	}
	switch n := n.(type) {
	case *Ident, *This, *NullLit, *BoolLit, *Literal:
	case *Member:
		expr(n.Receiver)
	case *NotNullAssert:
		expr(n.X)
	case *Compare:
		expr(n.Left)
		expr(n.Right)
	case *IsCheck:
		expr(n.X)
	case *And:
		expr(n.Left)
		expr(n.Right)
	case *Or:
		expr(n.Left)
		expr(n.Right)
	case *Not:
		expr(n.X)
	case *Paren:
		expr(n.X)
	case *Call:
		expr(n.Receiver)
		for _, a := range n.Args {
			expr(a)
		}
	case *Elvis:
		expr(n.Left)
		expr(n.Right)
	case *IfExpr:
		expr(n.Cond)
		stmt(n.Then)
		stmt(n.Else)
	case *WhenExpr:
		expr(n.Subject)
		for _, entry := range n.Entries {
			for _, c := range entry.Conds {
				expr(c)
			}
			stmt(entry.Body)
		}
	case *TryExpr:
		if n.Body != nil {
			Inspect(n.Body, f)
		}
		for _, c := range n.Catches {
			if c.Body != nil {
				Inspect(c.Body, f)
			}
		}
		if n.Finally != nil {
			Inspect(n.Finally, f)
		}
	case *Jump:
		expr(n.Value)
	case *Opaque:
		for _, c := range n.Children {
			expr(c)
		}
	case *Block:
		for _, s := range n.Stmts {
			stmt(s)
		}
	case *VarDecl:
		expr(n.Init)
	case *Assign:
		expr(n.Target)
		expr(n.Value)
	case *ExprStmt:
		expr(n.X)
	case *While:
		expr(n.Cond)
		stmt(n.Body)
	case *DoWhile:
		stmt(n.Body)
		expr(n.Cond)
	case *For:
		expr(n.Range)
		stmt(n.Body)
	case *Function:
		if n.Body != nil {
			Inspect(n.Body, f)
		}
	default:
		panic(fmt.Sprintf("ast.Inspect: unexpected node %T", n))
	}
}
