package ast

import "strings"

// ParseType turns a type written in source form ("Int", "String?") into a
// TypeRef. Surrounding parentheses and whitespace are ignored.
func ParseType(s string) TypeRef {
	s = strings.TrimSpace(s)
	nullable := false
	for strings.HasSuffix(s, "?") {
		nullable = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "?"))
	}
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
		for strings.HasSuffix(s, "?") {
			nullable = true
			s = strings.TrimSpace(strings.TrimSuffix(s, "?"))
		}
	}
	return TypeRef{Name: s, Nullable: nullable}
}

// Builder allocates bindings and constructs trees programmatically. Front
// ends use it for binding identities; tests use the node helpers, which
// assign increasing synthetic spans in call order.
type Builder struct {
	nextID BindingID
	offset int
}

// NewBuilder returns a builder whose first binding has ID 1.
func NewBuilder() *Builder {
	return &Builder{nextID: 1}
}

// NewBinding allocates a binding.
func (b *Builder) NewBinding(name string, t TypeRef, kind MutabilityKind, at Span) *Binding {
	id := b.nextID
	b.nextID++
	return &Binding{ID: id, Name: name, Type: t, Kind: kind, Span: at}
}

func (b *Builder) span() Span {
	start := b.offset
	b.offset += 10
	line := start/10 + 1
	return Span{
		Start: Pos{Offset: start, Line: line, Column: 1},
		End:   Pos{Offset: start + 9, Line: line, Column: 10},
	}
}

// Val declares a read-only local.
func (b *Builder) Val(name, typ string) *Binding {
	return b.NewBinding(name, ParseType(typ), ReadOnlyLocal, b.span())
}

// Var declares a mutable local.
func (b *Builder) Var(name, typ string) *Binding {
	return b.NewBinding(name, ParseType(typ), MutableLocal, b.span())
}

// Param declares a parameter.
func (b *Builder) Param(name, typ string) *Binding {
	return b.NewBinding(name, ParseType(typ), Parameter, b.span())
}

// Prop declares a member property of the given kind.
func (b *Builder) Prop(name, typ string, kind MutabilityKind) *Binding {
	return b.NewBinding(name, ParseType(typ), kind, b.span())
}

// Sig describes a callable with the given result and parameter types.
func (b *Builder) Sig(name, result string, params ...string) *Signature {
	sig := &Signature{Name: name, Result: ParseType(result)}
	for _, p := range params {
		sig.Params = append(sig.Params, ParseType(p))
	}
	return sig
}

func (b *Builder) Ident(x *Binding) *Ident { return &Ident{Loc: Loc{b.span()}, Binding: x} }
func (b *Builder) This() *This            { return &This{Loc: Loc{b.span()}} }
func (b *Builder) Null() *NullLit         { return &NullLit{Loc: Loc{b.span()}} }
func (b *Builder) Bool(v bool) *BoolLit   { return &BoolLit{Loc: Loc{b.span()}, Value: v} }

// Int is an integer constant.
func (b *Builder) Int(text string) *Literal {
	return &Literal{Loc: Loc{b.span()}, Type: TypeRef{Name: "Int"}, Text: text}
}

// Member reads prop from recv.
func (b *Builder) Member(recv Expr, prop *Binding) *Member {
	return &Member{Loc: Loc{b.span()}, Receiver: recv, Name: prop.Name, Property: prop, Type: prop.Type}
}

// SafeMember reads prop from recv with ?.
func (b *Builder) SafeMember(recv Expr, prop *Binding) *Member {
	m := b.Member(recv, prop)
	m.Safe = true
	return m
}

// Assert applies !! to x.
func (b *Builder) Assert(x Expr) *NotNullAssert {
	return &NotNullAssert{Loc: Loc{b.span()}, X: x, Op: b.span()}
}

func (b *Builder) Eq(l, r Expr) *Compare {
	return &Compare{Loc: Loc{b.span()}, Op: OpEq, Left: l, Right: r}
}

func (b *Builder) NotEq(l, r Expr) *Compare {
	return &Compare{Loc: Loc{b.span()}, Op: OpNotEq, Left: l, Right: r}
}

// Is checks x against typ; a leading "!" negates the check.
func (b *Builder) Is(x Expr, typ string) *IsCheck {
	neg := strings.HasPrefix(typ, "!")
	return &IsCheck{Loc: Loc{b.span()}, X: x, Type: ParseType(strings.TrimPrefix(typ, "!")), Negated: neg}
}

func (b *Builder) And(l, r Expr) *And  { return &And{Loc: Loc{b.span()}, Left: l, Right: r} }
func (b *Builder) Or(l, r Expr) *Or    { return &Or{Loc: Loc{b.span()}, Left: l, Right: r} }
func (b *Builder) Not(x Expr) *Not     { return &Not{Loc: Loc{b.span()}, X: x} }
func (b *Builder) Paren(x Expr) *Paren { return &Paren{Loc: Loc{b.span()}, X: x} }

// Call invokes sig with args.
func (b *Builder) Call(sig *Signature, args ...Expr) *Call {
	return &Call{Loc: Loc{b.span()}, Callee: sig.Name, Sig: sig, Args: args, Type: sig.Result}
}

func (b *Builder) Elvis(l, r Expr) *Elvis { return &Elvis{Loc: Loc{b.span()}, Left: l, Right: r} }

// If builds an if; els may be nil.
func (b *Builder) If(cond Expr, then, els Stmt) *IfExpr {
	return &IfExpr{Loc: Loc{b.span()}, Cond: cond, Then: then, Else: els}
}

// When builds a when expression.
func (b *Builder) When(subject Expr, entries ...*WhenEntry) *WhenExpr {
	return &WhenExpr{Loc: Loc{b.span()}, Subject: subject, Entries: entries}
}

// Entry is a when branch taken when any of conds holds.
func (b *Builder) Entry(body Stmt, conds ...Expr) *WhenEntry {
	return &WhenEntry{Loc: Loc{b.span()}, Conds: conds, Body: body}
}

// ElseEntry is the else branch of a when.
func (b *Builder) ElseEntry(body Stmt) *WhenEntry {
	return &WhenEntry{Loc: Loc{b.span()}, Else: true, Body: body}
}

// Try builds try/catch/finally; finally may be nil.
func (b *Builder) Try(body *Block, finally *Block, catches ...*Catch) *TryExpr {
	return &TryExpr{Loc: Loc{b.span()}, Body: body, Catches: catches, Finally: finally}
}

// Catch builds a catch clause binding param.
func (b *Builder) Catch(param *Binding, body *Block) *Catch {
	return &Catch{Loc: Loc{b.span()}, Param: param, Body: body}
}

func (b *Builder) Return(v Expr) *Jump {
	return &Jump{Loc: Loc{b.span()}, Kind: JumpReturn, Value: v}
}

func (b *Builder) Throw(v Expr) *Jump {
	return &Jump{Loc: Loc{b.span()}, Kind: JumpThrow, Value: v}
}

func (b *Builder) Break(label string) *Jump {
	return &Jump{Loc: Loc{b.span()}, Kind: JumpBreak, Label: label}
}

func (b *Builder) Continue(label string) *Jump {
	return &Jump{Loc: Loc{b.span()}, Kind: JumpContinue, Label: label}
}

// Opaque wraps children in an unmodelled expression of unknown type.
func (b *Builder) Opaque(children ...Expr) *Opaque {
	return &Opaque{Loc: Loc{b.span()}, Children: children}
}

// Block wraps stmts.
func (b *Builder) Block(stmts ...Stmt) *Block {
	return &Block{Loc: Loc{b.span()}, Stmts: stmts}
}

// Decl declares x with an optional initializer.
func (b *Builder) Decl(x *Binding, init Expr) *VarDecl {
	return &VarDecl{Loc: Loc{b.span()}, Binding: x, Init: init}
}

// Assign stores value into target.
func (b *Builder) Assign(target, value Expr) *Assign {
	return &Assign{Loc: Loc{b.span()}, Target: target, Value: value, Op: "="}
}

// Do evaluates x as a statement.
func (b *Builder) Do(x Expr) *ExprStmt {
	return &ExprStmt{Loc: Loc{b.span()}, X: x}
}

func (b *Builder) While(cond Expr, body Stmt) *While {
	return &While{Loc: Loc{b.span()}, Cond: cond, Body: body}
}

func (b *Builder) DoWhile(body Stmt, cond Expr) *DoWhile {
	return &DoWhile{Loc: Loc{b.span()}, Body: body, Cond: cond}
}

func (b *Builder) For(v *Binding, rng Expr, body Stmt) *For {
	return &For{Loc: Loc{b.span()}, Var: v, Range: rng, Body: body}
}

// Func builds a function unit.
func (b *Builder) Func(name, result string, params []*Binding, stmts ...Stmt) *Function {
	return &Function{
		Loc:    Loc{b.span()},
		Name:   name,
		Params: params,
		Result: ParseType(result),
		Body:   b.Block(stmts...),
	}
}
