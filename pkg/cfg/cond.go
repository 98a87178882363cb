package cfg

import (
	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/snapshot"
)

// cond lowers a boolean expression into branches. It returns the exits
// taken when e is true and when it is false, each carrying the facts that
// hold along it.
func (b *builder) cond(e ast.Expr) (t, f []exit) {
	switch e := e.(type) {
	case *ast.Paren:
		return b.cond(e.X)
	case *ast.Not:
		t, f = b.cond(e.X)
		return f, t
	case *ast.And:
		lt, lf := b.cond(e.Left)
		b.land(lt, e.Right.Span())
		rt, rf := b.cond(e.Right)
		return rt, append(lf, rf...)
	case *ast.Or:
		lt, lf := b.cond(e.Left)
		b.land(lf, e.Right.Span())
		rt, rf := b.cond(e.Right)
		return append(lt, rt...), rf
	case *ast.BoolLit:
		n := b.emit(Node{Kind: NodeBranch, At: e.Span(), Expr: e})
		t = []exit{{from: n, kind: TrueBranch, infeasible: !e.Value}}
		f = []exit{{from: n, kind: FalseBranch, infeasible: e.Value}}
		return t, f
	case *ast.Compare:
		b.expr(e.Left)
		b.expr(e.Right)
		eq, ne := b.compareFacts(e.Left, e.Right, e.Span())
		if e.Op.Negated() {
			eq, ne = ne, eq
		}
		return b.branch(e, eq, ne)
	case *ast.IsCheck:
		b.expr(e.X)
		yes, no := b.typeFacts(e.X, e.Type, e.Span())
		if e.Negated {
			yes, no = no, yes
		}
		return b.branch(e, yes, no)
	default:
		b.expr(e)
		return b.branch(e, nil, nil)
	}
}

// whenCond lowers one condition of a when entry. With a subject the
// condition is a type check against it or a value compared with it.
func (b *builder) whenCond(subject, c ast.Expr) (t, f []exit) {
	if subject == nil {
		return b.cond(c)
	}
	if is, ok := c.(*ast.IsCheck); ok && is.X == nil {
		yes, no := b.typeFacts(subject, is.Type, is.Span())
		if is.Negated {
			yes, no = no, yes
		}
		return b.branch(is, yes, no)
	}
	b.expr(c)
	eq, ne := b.compareFacts(subject, c, c.Span())
	return b.branch(c, eq, ne)
}

func (b *builder) branch(e ast.Expr, onTrue, onFalse []Refinement) (t, f []exit) {
	n := b.emit(Node{Kind: NodeBranch, At: e.Span(), Expr: e})
	return []exit{{from: n, kind: TrueBranch, assume: onTrue}},
		[]exit{{from: n, kind: FalseBranch, assume: onFalse}}
}

// nullTest branches on whether e is null. The first exits are taken when
// it is not. The null side is infeasible for operands whose type excludes
// null.
func (b *builder) nullTest(e ast.Expr, at ast.Span) (notNull, null []exit) {
	origin := snapshot.Origin{Kind: snapshot.OriginComparison, At: at}
	n := b.emit(Node{Kind: NodeBranch, At: at, Expr: e})
	notNull = []exit{{from: n, kind: TrueBranch, assume: b.nonNullFacts(e, origin)}}
	null = []exit{{
		from:       n,
		kind:       FalseBranch,
		assume:     b.nullFacts(e, origin),
		infeasible: b.excludesNull(ast.TypeOf(e)),
	}}
	return notNull, null
}

// compareFacts returns what l == r implies when it holds and when it does
// not.
func (b *builder) compareFacts(l, r ast.Expr, at ast.Span) (eq, ne []Refinement) {
	origin := snapshot.Origin{Kind: snapshot.OriginComparison, At: at}
	l, r = ast.Unparen(l), ast.Unparen(r)
	if isNull(l) {
		l, r = r, l
	}
	if isNull(r) {
		return b.nullFacts(l, origin), b.nonNullFacts(l, origin)
	}

	// Equal to something that cannot be null.
	if b.excludesNull(ast.TypeOf(r)) {
		eq = append(eq, b.nonNullFacts(l, origin)...)
	}
	if b.excludesNull(ast.TypeOf(l)) {
		eq = append(eq, b.nonNullFacts(r, origin)...)
	}
	if len(eq) > 0 {
		return eq, nil
	}

	lk, lok := b.key(l)
	rk, rok := b.key(r)
	if lok && rok && lk != rk {
		eq = []Refinement{{Key: lk, Equal: rk, Origin: origin}}
	}
	return eq, nil
}

// typeFacts returns what x is T implies when it holds and when it does not.
// null is an instance of every nullable type and of no other.
func (b *builder) typeFacts(x ast.Expr, t ast.TypeRef, at ast.Span) (yes, no []Refinement) {
	origin := snapshot.Origin{Kind: snapshot.OriginTypeCheck, At: at}
	switch {
	case b.excludesNull(t):
		return b.nonNullFacts(x, origin), nil
	case t.Nullable:
		return nil, b.nonNullFacts(x, origin)
	}
	return nil, nil
}

// nonNullFacts returns the facts implied by e being non-null: e itself if
// stable, and the receivers of safe accesses leading to it.
func (b *builder) nonNullFacts(e ast.Expr, origin snapshot.Origin) []Refinement {
	e = ast.Unparen(e)
	var out []Refinement
	if k, ok := b.key(e); ok {
		out = append(out, Refinement{Key: k, State: nullness.NotNull, Origin: origin})
	}
	switch e := e.(type) {
	case *ast.Member:
		if e.Safe {
			out = append(out, b.nonNullFacts(e.Receiver, origin)...)
		}
	case *ast.Call:
		if e.Safe && e.Receiver != nil {
			out = append(out, b.nonNullFacts(e.Receiver, origin)...)
		}
	}
	return out
}

func (b *builder) nullFacts(e ast.Expr, origin snapshot.Origin) []Refinement {
	if k, ok := b.key(e); ok {
		return []Refinement{{Key: k, State: nullness.Null, Origin: origin}}
	}
	return nil
}

func isNull(e ast.Expr) bool {
	_, ok := e.(*ast.NullLit)
	return ok
}
