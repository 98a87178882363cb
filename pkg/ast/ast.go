// Package ast defines the resolved syntax tree consumed by the nullability
// analysis. Every name is already bound to a *Binding and every node carries
// its source span; the analysis never looks at source text.
//
// Expressions and statements are closed sets: the marker methods are
// unexported and consumers switch exhaustively over the concrete types.
package ast

// Node is implemented by every syntax node.
type Node interface {
	Span() Span
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// CompareOp is an equality operator.
type CompareOp uint8

const (
	OpEq           CompareOp = iota // ==
	OpNotEq                         // !=
	OpIdentical                     // ===
	OpNotIdentical                  // !==
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNotEq:
		return "!="
	case OpIdentical:
		return "==="
	case OpNotIdentical:
		return "!=="
	}
	return "?"
}

// Negated reports whether the operator tests for inequality.
func (op CompareOp) Negated() bool {
	return op == OpNotEq || op == OpNotIdentical
}

// JumpKind distinguishes abrupt exits.
type JumpKind uint8

const (
	JumpReturn JumpKind = iota
	JumpThrow
	JumpBreak
	JumpContinue
)

func (k JumpKind) String() string {
	switch k {
	case JumpReturn:
		return "return"
	case JumpThrow:
		return "throw"
	case JumpBreak:
		return "break"
	case JumpContinue:
		return "continue"
	}
	return "?"
}

type (
	// Ident is a read of a local, parameter or top-level binding.
	Ident struct {
		Loc
		Binding *Binding
	}

	// This is the receiver of the enclosing class. Implicit is set when the
	// front end inserted it for a bare property name.
	This struct {
		Loc
		Implicit bool
	}

	// Member is a property access. Property is nil when the front end could
	// not resolve the member.
	Member struct {
		Loc
		Receiver Expr
		Name     string
		Property *Binding
		Safe     bool // ?.
		Type     TypeRef
	}

	// NullLit is the null literal.
	NullLit struct {
		Loc
	}

	// BoolLit is true or false.
	BoolLit struct {
		Loc
		Value bool
	}

	// Literal is any other constant. Constants are never null.
	Literal struct {
		Loc
		Type TypeRef
		Text string
	}

	// NotNullAssert is x!!. Op is the span of the operator itself.
	NotNullAssert struct {
		Loc
		X  Expr
		Op Span
	}

	// Compare is an equality or identity comparison.
	Compare struct {
		Loc
		Op          CompareOp
		Left, Right Expr
	}

	// IsCheck is x is T or x !is T. Inside a when with a subject X is nil
	// and the check applies to the subject.
	IsCheck struct {
		Loc
		X       Expr
		Type    TypeRef
		Negated bool
	}

	// And is a short-circuit conjunction.
	And struct {
		Loc
		Left, Right Expr
	}

	// Or is a short-circuit disjunction.
	Or struct {
		Loc
		Left, Right Expr
	}

	// Not is logical negation.
	Not struct {
		Loc
		X Expr
	}

	// Paren is a parenthesized expression.
	Paren struct {
		Loc
		X Expr
	}

	// Call is a function or method call. Sig is nil for unresolved callees.
	Call struct {
		Loc
		Callee   string
		Receiver Expr
		Safe     bool
		Sig      *Signature
		Args     []Expr
		Type     TypeRef
	}

	// Elvis is left ?: right.
	Elvis struct {
		Loc
		Left, Right Expr
	}

	// IfExpr is an if statement or expression.
	IfExpr struct {
		Loc
		Cond Expr
		Then Stmt
		Else Stmt // may be nil
	}

	// WhenExpr is a when statement or expression. For a when with a subject
	// each condition is either an IsCheck with a nil X, a value compared for
	// equality with the subject, or an Opaque range test.
	WhenExpr struct {
		Loc
		Subject Expr // may be nil
		Entries []*WhenEntry
	}

	// TryExpr is try/catch/finally.
	TryExpr struct {
		Loc
		Body    *Block
		Catches []*Catch
		Finally *Block // may be nil
	}

	// Jump is return, throw, break or continue.
	Jump struct {
		Loc
		Kind  JumpKind
		Value Expr // may be nil
		Label string
	}

	// Opaque is an expression shape the analysis does not model. Children
	// are evaluated in order for their effects; the result is never narrowed.
	Opaque struct {
		Loc
		Children []Expr
		Type     TypeRef
		Text     string
	}
)

// WhenEntry is one branch of a when.
type WhenEntry struct {
	Loc
	Conds []Expr
	Else  bool
	Body  Stmt
}

// Catch is one catch clause.
type Catch struct {
	Loc
	Param *Binding
	Body  *Block
}

type (
	// Block is a braced statement list.
	Block struct {
		Loc
		Stmts []Stmt
	}

	// VarDecl declares a local binding. Init may be nil.
	VarDecl struct {
		Loc
		Binding *Binding
		Init    Expr
	}

	// Assign is target = value (or a compound assignment).
	Assign struct {
		Loc
		Target Expr // *Ident or *Member
		Value  Expr
		Op     string
	}

	// ExprStmt evaluates an expression for its effects.
	ExprStmt struct {
		Loc
		X Expr
	}

	// While is a while loop.
	While struct {
		Loc
		Cond  Expr
		Body  Stmt
		Label string
	}

	// DoWhile is a do-while loop.
	DoWhile struct {
		Loc
		Body  Stmt
		Cond  Expr
		Label string
	}

	// For iterates Var over Range.
	For struct {
		Loc
		Var   *Binding
		Range Expr
		Body  Stmt
		Label string
	}
)

func (*Ident) exprNode()         {}
func (*This) exprNode()          {}
func (*Member) exprNode()        {}
func (*NullLit) exprNode()       {}
func (*BoolLit) exprNode()       {}
func (*Literal) exprNode()       {}
func (*NotNullAssert) exprNode() {}
func (*Compare) exprNode()       {}
func (*IsCheck) exprNode()       {}
func (*And) exprNode()           {}
func (*Or) exprNode()            {}
func (*Not) exprNode()           {}
func (*Paren) exprNode()         {}
func (*Call) exprNode()          {}
func (*Elvis) exprNode()         {}
func (*IfExpr) exprNode()        {}
func (*WhenExpr) exprNode()      {}
func (*TryExpr) exprNode()       {}
func (*Jump) exprNode()          {}
func (*Opaque) exprNode()        {}

func (*Block) stmtNode()    {}
func (*VarDecl) stmtNode()  {}
func (*Assign) stmtNode()   {}
func (*ExprStmt) stmtNode() {}
func (*While) stmtNode()    {}
func (*DoWhile) stmtNode()  {}
func (*For) stmtNode()      {}

// UnitKind distinguishes analysis units.
type UnitKind uint8

const (
	UnitFunction UnitKind = iota
	UnitInitializer
)

func (k UnitKind) String() string {
	if k == UnitInitializer {
		return "initializer"
	}
	return "function"
}

// Function is one analysis unit: a function body or a top-level/class
// initializer.
type Function struct {
	Loc
	Name   string
	Kind   UnitKind
	Params []*Binding
	Result TypeRef
	Body   *Block
}

// File is a resolved source file.
type File struct {
	Path      string
	Functions []*Function
}

// Lookup returns the unit with the given name.
func (f *File) Lookup(name string) *Function {
	for _, fn := range f.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}
