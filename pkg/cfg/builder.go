package cfg

import (
	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

// Options configures graph construction.
type Options struct {
	// Policy decides which expressions get dataflow keys.
	Policy stable.Policy
	// Oracle answers whether a type excludes null. Nil means
	// ast.DefaultOracle.
	Oracle ast.TypeOracle
}

// anyType is the requirement placed on receivers of non-safe accesses.
var anyType = ast.TypeRef{Name: "Any"}

// exit is an edge whose target is not known yet.
type exit struct {
	from       int
	kind       EdgeKind
	assume     []Refinement
	infeasible bool
}

type loopContext struct {
	label string
	cont  int
	brk   int
}

type builder struct {
	g    *Graph
	opts Options

	// cur is the node control falls out of, or -1 after an abrupt exit.
	cur      int
	loops    []loopContext
	handlers []int
}

// Build constructs the control flow graph of fn. The graph is validated
// before it is returned.
func Build(fn *ast.Function, opts Options) *Graph {
	if opts.Oracle == nil {
		opts.Oracle = ast.DefaultOracle{}
	}

	g := &Graph{
		Func:  fn,
		Reads: make(map[ast.Expr]int),
		Names: make(map[stable.Key]string),
	}
	b := &builder{g: g, opts: opts}

	at := fn.Span()
	g.Entry = b.newNode(Node{Kind: NodeEntry, At: at})
	g.Exit = b.newNode(Node{Kind: NodeExit, At: ast.Span{Start: at.End, End: at.End}})
	b.cur = g.Entry

	if fn.Body != nil {
		b.stmt(fn.Body)
	}
	b.goTo(g.Exit)

	g.Validate()
	return g
}

func (b *builder) newNode(n Node) int {
	n.ID = len(b.g.Nodes)
	b.g.Nodes = append(b.g.Nodes, n)
	return n.ID
}

func (b *builder) addEdge(from, to int, kind EdgeKind, assume []Refinement, infeasible bool) {
	id := len(b.g.Edges)
	b.g.Edges = append(b.g.Edges, Edge{
		ID:         id,
		From:       from,
		To:         to,
		Kind:       kind,
		Assume:     assume,
		Infeasible: infeasible,
	})
	b.g.Nodes[from].Succs = append(b.g.Nodes[from].Succs, id)
	b.g.Nodes[to].Preds = append(b.g.Nodes[to].Preds, id)
}

// emit appends n after the current point and makes it current. After an
// abrupt exit the node has no predecessors. Inside a try body every node
// except jumps also gets an exceptional edge to the innermost handler.
func (b *builder) emit(n Node) int {
	id := b.newNode(n)
	if b.cur >= 0 {
		b.addEdge(b.cur, id, Unconditional, nil, false)
	}
	if len(b.handlers) > 0 && n.Kind != NodeJump {
		b.addEdge(id, b.handlers[len(b.handlers)-1], AbruptExit, nil, false)
	}
	b.cur = id
	return id
}

func (b *builder) goTo(to int) {
	if b.cur >= 0 {
		b.addEdge(b.cur, to, Unconditional, nil, false)
	}
}

// pending returns the fallthrough out of the current point, if any.
func (b *builder) pending() []exit {
	if b.cur < 0 {
		return nil
	}
	return []exit{{from: b.cur, kind: Unconditional}}
}

func (b *builder) connect(exits []exit, to int) {
	for _, x := range exits {
		b.addEdge(x.from, to, x.kind, x.assume, x.infeasible)
	}
}

// land makes the merge of exits the current point.
func (b *builder) land(exits []exit, at ast.Span) {
	switch {
	case len(exits) == 0:
		b.cur = -1
	case len(exits) == 1 && exits[0].kind == Unconditional && exits[0].assume == nil && !exits[0].infeasible:
		b.cur = exits[0].from
	default:
		join := b.newNode(Node{Kind: NodeJoin, At: at})
		b.connect(exits, join)
		b.cur = join
	}
}

// key returns the dataflow key of e and remembers how it was spelled.
func (b *builder) key(e ast.Expr) (stable.Key, bool) {
	k, ok := b.opts.Policy.Of(e)
	if ok {
		if _, seen := b.g.Names[k]; !seen {
			b.g.Names[k] = stable.Describe(e)
		}
	}
	return k, ok
}

func (b *builder) excludesNull(t ast.TypeRef) bool {
	return b.opts.Oracle.ExcludesNull(t)
}

func (b *builder) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case nil:
	case *ast.Block:
		for _, st := range s.Stmts {
			b.stmt(st)
		}
	case *ast.VarDecl:
		if s.Init != nil {
			b.expr(s.Init)
			b.require(s.Init, UseInitializer, s.Binding.Type)
		}
		b.declare(s.Binding, s.Init, s.Span())
	case *ast.Assign:
		b.assign(s)
	case *ast.ExprStmt:
		b.expr(s.X)
	case *ast.While:
		b.whileLoop(s)
	case *ast.DoWhile:
		b.doWhileLoop(s)
	case *ast.For:
		b.forLoop(s)
	default:
		internalError("cfg: unexpected statement %T", s)
	}
}

func (b *builder) declare(x *ast.Binding, value ast.Expr, at ast.Span) {
	n := Node{
		Kind:    NodeDecl,
		At:      at,
		Expr:    value,
		Binding: x,
		Type:    x.Type,
		NonNull: b.excludesNull(x.Type),
		Path:    stable.BindingKey(x),
	}
	if b.opts.Policy.StableBinding(x) {
		n.Key, n.HasKey = stable.BindingKey(x), true
		if _, seen := b.g.Names[n.Key]; !seen {
			b.g.Names[n.Key] = x.Name
		}
	}
	if value != nil {
		n.SeedNotNull, n.SeedFrom = b.seed(value)
	}
	b.emit(n)
}

func (b *builder) assign(s *ast.Assign) {
	target := ast.Unparen(s.Target)
	var want ast.TypeRef
	switch t := target.(type) {
	case *ast.Member:
		b.expr(t.Receiver)
		if !t.Safe {
			b.require(t.Receiver, UseReceiver, anyType)
		}
		if t.Property != nil {
			want = t.Property.Type
		}
	case *ast.Ident:
		if t.Binding != nil {
			want = t.Binding.Type
		}
	default:
		b.expr(target)
	}

	b.expr(s.Value)
	if s.Op == "" || s.Op == "=" {
		b.require(s.Value, UseAssignment, want)
	}

	n := Node{
		Kind:    NodeAssign,
		At:      s.Span(),
		Expr:    s.Value,
		Target:  target,
		Type:    want,
		NonNull: b.excludesNull(want),
	}
	n.Path, _ = stable.Path(target)
	n.Key, n.HasKey = b.key(target)
	if s.Op == "" || s.Op == "=" {
		n.SeedNotNull, n.SeedFrom = b.seed(s.Value)
	}
	b.emit(n)
}

// seed decides whether a stored value is provably non-null, either outright
// or through the state of another stable expression. A null value never
// seeds a Null fact.
func (b *builder) seed(v ast.Expr) (bool, stable.Key) {
	v = ast.Unparen(v)
	switch v.(type) {
	case *ast.NullLit:
		return false, ""
	case *ast.Literal, *ast.BoolLit, *ast.This, *ast.NotNullAssert:
		return true, ""
	}
	if b.excludesNull(ast.TypeOf(v)) {
		return true, ""
	}
	if k, ok := b.key(v); ok {
		return false, k
	}
	return false, ""
}

// require records that e must not be null because a value of type want is
// expected. Nothing is recorded unless want excludes null and the static
// type of e is known to admit it.
func (b *builder) require(e ast.Expr, ctx UseContext, want ast.TypeRef) {
	if !b.excludesNull(want) {
		return
	}
	t := ast.TypeOf(e)
	if !t.Known() || b.excludesNull(t) {
		return
	}
	n := Node{Kind: NodeUse, At: e.Span(), Expr: e, Context: ctx, Type: t}
	n.Key, n.HasKey = b.key(e)
	b.emit(n)
}

func (b *builder) read(e ast.Expr) {
	t := ast.TypeOf(e)
	n := Node{Kind: NodeRead, At: e.Span(), Expr: e, Type: t, NonNull: b.excludesNull(t)}
	n.Key, n.HasKey = b.key(e)
	b.g.Reads[e] = b.emit(n)
}

func (b *builder) expr(e ast.Expr) {
	switch e := e.(type) {
	case nil:
	case *ast.Ident:
		b.read(e)
	case *ast.This, *ast.NullLit, *ast.BoolLit, *ast.Literal:
	case *ast.Member:
		b.expr(e.Receiver)
		if !e.Safe {
			b.require(e.Receiver, UseReceiver, anyType)
		}
		b.read(e)
	case *ast.NotNullAssert:
		b.expr(e.X)
		t := ast.TypeOf(e.X)
		n := Node{Kind: NodeAssert, At: e.Span(), Expr: e.X, Op: e.Op, Type: t, NonNull: b.excludesNull(t)}
		n.Key, n.HasKey = b.key(e.X)
		b.emit(n)
	case *ast.Compare, *ast.IsCheck, *ast.And, *ast.Or, *ast.Not:
		t, f := b.cond(e)
		b.land(append(t, f...), e.Span())
	case *ast.Paren:
		b.expr(e.X)
	case *ast.Call:
		b.call(e)
	case *ast.Elvis:
		b.expr(e.Left)
		notNull, null := b.nullTest(e.Left, e.Span())
		b.land(null, e.Span())
		b.expr(e.Right)
		b.land(append(notNull, b.pending()...), e.Span())
	case *ast.IfExpr:
		t, f := b.cond(e.Cond)
		b.land(t, e.Span())
		b.stmt(e.Then)
		done := b.pending()
		b.land(f, e.Span())
		b.stmt(e.Else)
		b.land(append(done, b.pending()...), e.Span())
	case *ast.WhenExpr:
		b.when(e)
	case *ast.TryExpr:
		b.try(e)
	case *ast.Jump:
		b.jump(e)
	case *ast.Opaque:
		for _, c := range e.Children {
			b.expr(c)
		}
	default:
		internalError("cfg: unexpected expression %T", e)
	}
}

func (b *builder) call(c *ast.Call) {
	// Arguments of a safe call run only when the receiver is not null.
	guarded := c.Safe && c.Receiver != nil && len(c.Args) > 0
	var skipped []exit
	if c.Receiver != nil {
		b.expr(c.Receiver)
		switch {
		case guarded:
			var notNull []exit
			notNull, skipped = b.nullTest(c.Receiver, c.Span())
			b.land(notNull, c.Span())
		case !c.Safe:
			b.require(c.Receiver, UseReceiver, anyType)
		}
	}

	for i, a := range c.Args {
		b.expr(a)
		b.require(a, UseArgument, c.Sig.Param(i))
	}

	if guarded {
		b.land(append(b.pending(), skipped...), c.Span())
	}
	if ast.TypeOf(c) == ast.Nothing {
		n := b.emit(Node{Kind: NodeJump, At: c.Span(), Expr: c, Jump: ast.JumpThrow})
		b.addEdge(n, b.throwTarget(), AbruptExit, nil, false)
		b.cur = -1
	}
}

func (b *builder) when(w *ast.WhenExpr) {
	if w.Subject != nil {
		b.expr(w.Subject)
	}

	var done []exit
	for _, entry := range w.Entries {
		if entry.Else {
			b.stmt(entry.Body)
			done = append(done, b.pending()...)
			b.cur = -1
			continue
		}

		var taken []exit
		for _, c := range entry.Conds {
			t, f := b.whenCond(w.Subject, c)
			taken = append(taken, t...)
			b.land(f, c.Span())
		}
		rest := b.pending()

		b.land(taken, entry.Span())
		b.stmt(entry.Body)
		done = append(done, b.pending()...)

		b.land(rest, entry.Span())
	}
	done = append(done, b.pending()...)
	b.land(done, w.Span())
}

func (b *builder) try(t *ast.TryExpr) {
	handler := -1
	if len(t.Catches) > 0 || t.Finally != nil {
		handler = b.newNode(Node{Kind: NodeJoin, At: t.Span()})
		b.handlers = append(b.handlers, handler)
		// The state on entry to the body reaches the handler too.
		b.emit(Node{Kind: NodeJoin, At: t.Span()})
	}

	if t.Body != nil {
		b.stmt(t.Body)
	}
	if handler >= 0 {
		b.handlers = b.handlers[:len(b.handlers)-1]
	}
	done := b.pending()

	for _, c := range t.Catches {
		b.cur = handler
		if c.Param != nil {
			b.declare(c.Param, nil, c.Span())
		}
		if c.Body != nil {
			b.stmt(c.Body)
		}
		done = append(done, b.pending()...)
	}
	if len(t.Catches) == 0 && handler >= 0 {
		// An exception escaping the body runs finally and propagates. Both
		// paths share one copy of the finally block.
		done = append(done, exit{from: handler, kind: Unconditional})
	}

	b.land(done, t.Span())
	if t.Finally != nil {
		b.stmt(t.Finally)
	}
}

func (b *builder) jump(j *ast.Jump) {
	if j.Value != nil {
		b.expr(j.Value)
		if j.Kind == ast.JumpReturn {
			b.require(j.Value, UseReturn, b.g.Func.Result)
		}
	}
	n := b.emit(Node{Kind: NodeJump, At: j.Span(), Expr: j, Jump: j.Kind})
	b.addEdge(n, b.jumpTarget(j), AbruptExit, nil, false)
	b.cur = -1
}

func (b *builder) jumpTarget(j *ast.Jump) int {
	switch j.Kind {
	case ast.JumpThrow:
		return b.throwTarget()
	case ast.JumpBreak, ast.JumpContinue:
		for i := len(b.loops) - 1; i >= 0; i-- {
			l := b.loops[i]
			if j.Label != "" && l.label != j.Label {
				continue
			}
			if j.Kind == ast.JumpBreak {
				return l.brk
			}
			return l.cont
		}
	}
	// return, or a break/continue outside any loop
	return b.g.Exit
}

func (b *builder) throwTarget() int {
	if len(b.handlers) > 0 {
		return b.handlers[len(b.handlers)-1]
	}
	return b.g.Exit
}

func (b *builder) pushLoop(label string, cont, brk int) {
	b.loops = append(b.loops, loopContext{label: label, cont: cont, brk: brk})
}

func (b *builder) popLoop() {
	b.loops = b.loops[:len(b.loops)-1]
}

func (b *builder) whileLoop(s *ast.While) {
	head := b.newNode(Node{Kind: NodeJoin, At: s.Span()})
	brk := b.newNode(Node{Kind: NodeJoin, At: s.Span()})
	b.goTo(head)
	b.cur = head

	t, f := b.cond(s.Cond)
	b.connect(f, brk)
	b.land(t, s.Span())

	b.pushLoop(s.Label, head, brk)
	b.stmt(s.Body)
	b.popLoop()

	b.goTo(head)
	b.cur = brk
}

func (b *builder) doWhileLoop(s *ast.DoWhile) {
	head := b.newNode(Node{Kind: NodeJoin, At: s.Span()})
	cont := b.newNode(Node{Kind: NodeJoin, At: s.Span()})
	brk := b.newNode(Node{Kind: NodeJoin, At: s.Span()})
	b.goTo(head)
	b.cur = head

	b.pushLoop(s.Label, cont, brk)
	b.stmt(s.Body)
	b.popLoop()

	b.goTo(cont)
	b.cur = cont
	t, f := b.cond(s.Cond)
	b.connect(t, head)
	b.connect(f, brk)
	b.cur = brk
}

func (b *builder) forLoop(s *ast.For) {
	b.expr(s.Range)

	head := b.newNode(Node{Kind: NodeJoin, At: s.Span()})
	brk := b.newNode(Node{Kind: NodeJoin, At: s.Span()})
	b.goTo(head)
	b.cur = head

	next := b.emit(Node{Kind: NodeBranch, At: s.Span(), Expr: s.Range})
	b.addEdge(next, brk, FalseBranch, nil, false)
	b.land([]exit{{from: next, kind: TrueBranch}}, s.Span())

	b.pushLoop(s.Label, head, brk)
	if s.Var != nil {
		b.declare(s.Var, nil, s.Var.Span)
	}
	b.stmt(s.Body)
	b.popLoop()

	b.goTo(head)
	b.cur = brk
}
