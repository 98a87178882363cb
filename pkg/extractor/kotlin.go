package extractor

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"

	"fortio.org/safecast"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/kotlin"

	"github.com/l3aro/go-nullflow/pkg/ast"
)

// KotlinExtractor lowers Kotlin sources to resolved trees. It keeps no
// state between calls and is safe for concurrent use.
type KotlinExtractor struct{}

// NewKotlinExtractor returns the Kotlin front end.
func NewKotlinExtractor() Extractor {
	return &KotlinExtractor{}
}

// NewKotlinParser creates a new tree-sitter parser for Kotlin.
func NewKotlinParser() *sitter.Parser {
	parser := sitter.NewParser()
	parser.SetLanguage(kotlin.GetLanguage())
	return parser
}

// Extract reads and lowers a Kotlin file.
func (e *KotlinExtractor) Extract(filePath string) (*ast.File, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", filePath, err)
	}
	return e.ExtractFromBytes(content, filePath)
}

// ExtractFromBytes lowers Kotlin source already in memory.
func (e *KotlinExtractor) ExtractFromBytes(content []byte, filePath string) (*ast.File, error) {
	return ParseKotlin(filePath, content)
}

// ParseKotlin parses src and resolves every name it can. Each function body
// becomes one unit; property initializers and init blocks of a class become
// a "<Class>.<init>" unit and top-level initializers a "<top-level>" unit.
//
// When the parser had to recover from malformed input the file is still
// returned, together with a *SyntaxError.
func ParseKotlin(path string, src []byte) (*ast.File, error) {
	parser := NewKotlinParser()
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing file %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	l := newLowerer(path, src)
	l.declareFile(root)
	l.lowerFile(root)

	if root.HasError() {
		return l.file, l.syntaxError(root)
	}
	return l.file, nil
}

type classInfo struct {
	name    string
	props   map[string]*ast.Binding
	methods map[string]*ast.Signature
	ctor    *ast.Signature
	params  []*ast.Binding // primary constructor parameters that are not properties
}

type scope struct {
	parent *scope
	vars   map[string]*ast.Binding
	funcs  map[string]*ast.Signature
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: map[string]*ast.Binding{}, funcs: map[string]*ast.Signature{}}
}

// Functions from the standard library whose nullability matters.
var builtinFuncs = map[string]*ast.Signature{
	"error": {Name: "error", Params: []ast.TypeRef{{Name: "Any", Nullable: true}}, Result: ast.Nothing},
	"TODO":  {Name: "TODO", Result: ast.Nothing},
}

type lowerer struct {
	path string
	src  []byte
	b    *ast.Builder
	file *ast.File

	top     *scope
	scope   *scope
	classes map[string]*classInfo
	byNode  map[uint32]*classInfo
	cls     *classInfo

	// frames records which function or lambda body declared each local.
	// A local read from a different frame is captured.
	frames    map[*ast.Binding]int
	frame     int
	nextFrame int
	unit      string
}

func newLowerer(path string, src []byte) *lowerer {
	top := newScope(nil)
	return &lowerer{
		path:    path,
		src:     src,
		b:       ast.NewBuilder(),
		file:    &ast.File{Path: path},
		top:     top,
		scope:   top,
		classes: map[string]*classInfo{},
		byNode:  map[uint32]*classInfo{},
		frames:  map[*ast.Binding]int{},
	}
}

// Node helpers.

func toInt(v uint32) int {
	n, err := safecast.Conv[int](v)
	if err != nil {
		return math.MaxInt
	}
	return n
}

func (l *lowerer) text(n *sitter.Node) string {
	return n.Content(l.src)
}

func pos(offset uint32, p sitter.Point) ast.Pos {
	return ast.Pos{Offset: toInt(offset), Line: toInt(p.Row) + 1, Column: toInt(p.Column) + 1}
}

func span(n *sitter.Node) ast.Span {
	return ast.Span{Start: pos(n.StartByte(), n.StartPoint()), End: pos(n.EndByte(), n.EndPoint())}
}

func loc(n *sitter.Node) ast.Loc {
	return ast.Loc{At: span(n)}
}

func children(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func isComment(t string) bool {
	return t == "line_comment" || t == "multiline_comment" || t == "comment"
}

// isOperand reports whether c can stand for a subexpression. The null
// literal is an anonymous token in the grammar.
func isOperand(c *sitter.Node) bool {
	t := c.Type()
	if t == "null" {
		return true
	}
	return c.IsNamed() && !isComment(t)
}

func operands(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range children(n) {
		if isOperand(c) {
			out = append(out, c)
		}
	}
	return out
}

func childOfType(n *sitter.Node, types ...string) *sitter.Node {
	for _, c := range children(n) {
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

// blockNode returns the node holding the braces and statements of a block
// body. The grammar usually inlines blocks into their parent, in which case
// that is n itself.
func blockNode(n *sitter.Node) *sitter.Node {
	if blk := childOfType(n, "block"); blk != nil {
		return blk
	}
	if childOfType(n, "{") != nil {
		return n
	}
	return nil
}

func isTypeNode(t string) bool {
	switch t {
	case "user_type", "nullable_type", "function_type", "parenthesized_type",
		"non_nullable_type", "type_reference", "dynamic":
		return true
	}
	return false
}

func (l *lowerer) typeRef(n *sitter.Node) ast.TypeRef {
	if n == nil {
		return ast.TypeRef{}
	}
	return ast.ParseType(strings.Join(strings.Fields(l.text(n)), ""))
}

// between returns the source text separating a and b, which is where
// binary operators live.
func (l *lowerer) between(a, b *sitter.Node) string {
	if a.EndByte() > b.StartByte() {
		return ""
	}
	return strings.TrimSpace(string(l.src[a.EndByte():b.StartByte()]))
}

func (l *lowerer) hasModifier(n *sitter.Node, mods ...string) bool {
	m := childOfType(n, "modifiers")
	if m == nil {
		return false
	}
	for _, f := range strings.Fields(l.text(m)) {
		for _, want := range mods {
			if f == want {
				return true
			}
		}
	}
	return false
}

// isVar reports whether a declaration is introduced with var.
func (l *lowerer) isVar(n *sitter.Node) bool {
	for _, c := range children(n) {
		switch c.Type() {
		case "var":
			return true
		case "binding_pattern_kind":
			return strings.TrimSpace(l.text(c)) == "var"
		}
	}
	return false
}

func (l *lowerer) syntaxError(root *sitter.Node) error {
	bad := firstError(root)
	if bad == nil {
		bad = root
	}
	text := l.text(bad)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 40 {
		text = text[:40]
	}
	return &SyntaxError{File: l.path, At: pos(bad.StartByte(), bad.StartPoint()), Text: text}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for _, c := range children(n) {
		if c.HasError() || c.IsMissing() {
			if e := firstError(c); e != nil {
				return e
			}
		}
	}
	return nil
}

// Scopes and frames.

func (l *lowerer) push() { l.scope = newScope(l.scope) }
func (l *lowerer) pop()  { l.scope = l.scope.parent }

func (l *lowerer) enterFrame() int {
	prev := l.frame
	l.nextFrame++
	l.frame = l.nextFrame
	return prev
}

func (l *lowerer) declare(name string, t ast.TypeRef, kind ast.MutabilityKind, at ast.Span) *ast.Binding {
	b := l.b.NewBinding(name, t, kind, at)
	l.scope.vars[name] = b
	l.frames[b] = l.frame
	return b
}

// lookupVar resolves a name to a local, a property of the enclosing class
// or a top-level property, in that order.
func (l *lowerer) lookupVar(name string) (*ast.Binding, bool) {
	for s := l.scope; s != nil && s != l.top; s = s.parent {
		if b, ok := s.vars[name]; ok {
			if owner, ok := l.frames[b]; ok && owner != l.frame {
				b.Captured = true
			}
			return b, false
		}
	}
	if l.cls != nil {
		if p, ok := l.cls.props[name]; ok {
			return p, true
		}
	}
	if b, ok := l.top.vars[name]; ok {
		return b, false
	}
	return nil, false
}

func (l *lowerer) lookupFunc(name string) *ast.Signature {
	for s := l.scope; s != nil && s != l.top; s = s.parent {
		if sig, ok := s.funcs[name]; ok {
			return sig
		}
	}
	if l.cls != nil {
		if sig, ok := l.cls.methods[name]; ok {
			return sig
		}
	}
	if sig, ok := l.top.funcs[name]; ok {
		return sig
	}
	if ci, ok := l.classes[name]; ok {
		return ci.ctor
	}
	return builtinFuncs[name]
}

// classOf returns the class a receiver expression is statically known to
// be an instance of.
func (l *lowerer) classOf(recv ast.Expr) *classInfo {
	if _, ok := recv.(*ast.This); ok {
		return l.cls
	}
	return l.classes[ast.TypeOf(recv).Name]
}

// Declarations.

func (l *lowerer) signature(n *sitter.Node) *ast.Signature {
	name := childOfType(n, "simple_identifier")
	if name == nil {
		return nil
	}
	sig := &ast.Signature{Name: l.text(name)}

	seenParams := false
	for _, c := range children(n) {
		switch {
		case c.Type() == "function_value_parameters":
			seenParams = true
			for _, p := range children(c) {
				if p.Type() == "parameter" {
					sig.Params = append(sig.Params, l.typeRef(firstType(p)))
				}
			}
		case seenParams && isTypeNode(c.Type()):
			sig.Result = l.typeRef(c)
		}
	}

	if !sig.Result.Known() {
		body := childOfType(n, "function_body")
		if body == nil || blockNode(body) != nil {
			sig.Result = ast.TypeRef{Name: "Unit"}
		}
	}
	return sig
}

func firstType(n *sitter.Node) *sitter.Node {
	for _, c := range children(n) {
		if isTypeNode(c.Type()) {
			return c
		}
	}
	return nil
}

// property declares the binding of a property_declaration outside any
// function body.
func (l *lowerer) property(n *sitter.Node, open bool) *ast.Binding {
	decl := childOfType(n, "variable_declaration")
	if decl == nil {
		return nil
	}
	name := childOfType(decl, "simple_identifier")
	if name == nil {
		return nil
	}

	kind := ast.ReadOnlyProperty
	switch {
	case l.isVar(n):
		kind = ast.MutableProperty
	case open || l.hasModifier(n, "open", "abstract") ||
		childOfType(n, "getter") != nil || childOfType(n, "property_delegate") != nil:
		kind = ast.CustomGetterProperty
	}
	return l.b.NewBinding(l.text(name), l.typeRef(firstType(decl)), kind, span(n))
}

func (l *lowerer) declareFile(root *sitter.Node) {
	for _, c := range children(root) {
		switch c.Type() {
		case "function_declaration":
			if sig := l.signature(c); sig != nil {
				l.top.funcs[sig.Name] = sig
			}
		case "property_declaration":
			if b := l.property(c, false); b != nil {
				l.top.vars[b.Name] = b
			}
		case "class_declaration", "object_declaration":
			l.declareClass(c, "")
		}
	}
}

func (l *lowerer) declareClass(n *sitter.Node, outer string) {
	simple := "Companion"
	if id := childOfType(n, "type_identifier", "simple_identifier"); id != nil {
		simple = l.text(id)
	}
	name := simple
	if outer != "" {
		name = outer + "." + simple
	}

	ci := &classInfo{
		name:    name,
		props:   map[string]*ast.Binding{},
		methods: map[string]*ast.Signature{},
		ctor:    &ast.Signature{Name: simple, Result: ast.TypeRef{Name: simple}},
	}
	l.classes[simple] = ci
	l.byNode[n.StartByte()] = ci

	iface := childOfType(n, "interface") != nil
	openClass := iface || l.hasModifier(n, "open", "abstract", "sealed")

	if pc := childOfType(n, "primary_constructor"); pc != nil {
		params := childOfType(pc, "class_parameters")
		if params == nil {
			params = pc
		}
		for _, p := range children(params) {
			if p.Type() != "class_parameter" {
				continue
			}
			id := childOfType(p, "simple_identifier")
			if id == nil {
				continue
			}
			t := l.typeRef(firstType(p))
			ci.ctor.Params = append(ci.ctor.Params, t)

			hasKind := childOfType(p, "val", "var", "binding_pattern_kind") != nil
			if !hasKind {
				ci.params = append(ci.params, l.b.NewBinding(l.text(id), t, ast.Parameter, span(p)))
				continue
			}
			kind := ast.ReadOnlyProperty
			switch {
			case l.isVar(p):
				kind = ast.MutableProperty
			case l.hasModifier(p, "open"):
				kind = ast.CustomGetterProperty
			}
			ci.props[l.text(id)] = l.b.NewBinding(l.text(id), t, kind, span(p))
		}
	}

	body := childOfType(n, "class_body", "enum_class_body")
	if body == nil {
		return
	}
	for _, m := range children(body) {
		switch m.Type() {
		case "property_declaration":
			open := iface || (openClass && l.hasModifier(m, "open"))
			if b := l.property(m, open); b != nil {
				ci.props[b.Name] = b
			}
		case "function_declaration":
			if sig := l.signature(m); sig != nil {
				ci.methods[sig.Name] = sig
			}
		case "class_declaration", "object_declaration", "companion_object":
			l.declareClass(m, name)
		}
	}
}

// Units.

func (l *lowerer) lowerFile(root *sitter.Node) {
	prevFrame := l.enterFrame()
	l.push()
	l.unit = "<top-level>"
	var inits []ast.Stmt
	for _, c := range children(root) {
		switch c.Type() {
		case "function_declaration":
			l.function(c, "")
		case "property_declaration":
			if s := l.initializer(c, l.top.vars); s != nil {
				inits = append(inits, s)
			}
		case "class_declaration", "object_declaration":
			l.lowerClass(c)
		case "package_header", "import_list", "import_header", "file_annotation", "shebang_line", "type_alias":
		case "statements":
			inits = append(inits, l.statements(c)...)
		default:
			if isOperand(c) {
				if s := l.stmt(c, ""); s != nil {
					inits = append(inits, s)
				}
			}
		}
	}
	l.pop()
	l.frame = prevFrame

	if len(inits) > 0 {
		l.file.Functions = append(l.file.Functions, &ast.Function{
			Loc:    loc(root),
			Name:   "<top-level>",
			Kind:   ast.UnitInitializer,
			Result: ast.TypeRef{Name: "Unit"},
			Body:   &ast.Block{Loc: loc(root), Stmts: inits},
		})
	}
}

// initializer lowers the initializer of a declared property into a
// declaration statement of that property.
func (l *lowerer) initializer(n *sitter.Node, props map[string]*ast.Binding) ast.Stmt {
	decl := childOfType(n, "variable_declaration")
	if decl == nil {
		return nil
	}
	id := childOfType(decl, "simple_identifier")
	if id == nil {
		return nil
	}
	p := props[l.text(id)]
	init := l.initExpr(n)
	if p == nil || init == nil {
		return nil
	}
	if !p.Type.Known() {
		p.Type = ast.TypeOf(init)
	}
	return &ast.VarDecl{Loc: loc(n), Binding: p, Init: init}
}

// initExpr lowers whatever follows "=" in a declaration, or its delegate.
func (l *lowerer) initExpr(n *sitter.Node) ast.Expr {
	seenEq := false
	for _, c := range children(n) {
		switch {
		case c.Type() == "=":
			seenEq = true
		case c.Type() == "property_delegate":
			var kids []ast.Expr
			for _, o := range operands(c) {
				kids = append(kids, l.expr(o))
			}
			return &ast.Opaque{Loc: loc(c), Children: kids, Text: "by"}
		case seenEq && isOperand(c):
			return l.expr(c)
		}
	}
	return nil
}

func (l *lowerer) lowerClass(n *sitter.Node) {
	ci := l.byNode[n.StartByte()]
	if ci == nil {
		return
	}
	prevCls := l.cls
	prevUnit := l.unit
	l.cls = ci
	l.unit = ci.name + ".<init>"

	prevFrame := l.enterFrame()
	l.push()
	for _, p := range ci.params {
		l.scope.vars[p.Name] = p
		l.frames[p] = l.frame
	}

	var inits []ast.Stmt
	if body := childOfType(n, "class_body", "enum_class_body"); body != nil {
		for _, m := range children(body) {
			switch m.Type() {
			case "property_declaration":
				if s := l.initializer(m, ci.props); s != nil {
					inits = append(inits, s)
				}
			case "anonymous_initializer":
				if blk := blockNode(m); blk != nil {
					inits = append(inits, l.block(blk))
				}
			case "function_declaration":
				saved := l.scope
				l.scope = l.top
				l.function(m, ci.name+".")
				l.scope = saved
			case "class_declaration", "object_declaration", "companion_object":
				saved := l.scope
				l.scope = l.top
				l.lowerClass(m)
				l.scope = saved
			}
		}
	}
	l.pop()
	l.frame = prevFrame

	if len(inits) > 0 {
		l.file.Functions = append(l.file.Functions, &ast.Function{
			Loc:    loc(n),
			Name:   ci.name + ".<init>",
			Kind:   ast.UnitInitializer,
			Params: ci.params,
			Result: ast.TypeRef{Name: "Unit"},
			Body:   &ast.Block{Loc: loc(n), Stmts: inits},
		})
	}
	l.cls = prevCls
	l.unit = prevUnit
}

// function lowers a function declaration into a unit named prefix+name.
// Functions without a body are skipped.
func (l *lowerer) function(n *sitter.Node, prefix string) {
	sig := l.signature(n)
	body := childOfType(n, "function_body")
	if sig == nil || body == nil {
		return
	}

	slot := len(l.file.Functions)
	l.file.Functions = append(l.file.Functions, nil)

	prevUnit := l.unit
	l.unit = prefix + sig.Name
	prevFrame := l.enterFrame()
	l.push()

	fn := &ast.Function{Loc: loc(n), Name: l.unit, Kind: ast.UnitFunction, Result: sig.Result}
	fn.Params = l.parameters(childOfType(n, "function_value_parameters"))
	fn.Body = l.functionBody(body)

	l.pop()
	l.frame = prevFrame
	l.unit = prevUnit
	l.file.Functions[slot] = fn
}

func (l *lowerer) parameters(n *sitter.Node) []*ast.Binding {
	if n == nil {
		return nil
	}
	var out []*ast.Binding
	for _, p := range children(n) {
		if p.Type() != "parameter" {
			continue
		}
		id := childOfType(p, "simple_identifier")
		if id == nil {
			continue
		}
		out = append(out, l.declare(l.text(id), l.typeRef(firstType(p)), ast.Parameter, span(p)))
	}
	return out
}

func (l *lowerer) functionBody(n *sitter.Node) *ast.Block {
	if blk := blockNode(n); blk != nil {
		return l.block(blk)
	}
	for _, c := range children(n) {
		if isOperand(c) {
			x := l.expr(c)
			ret := &ast.Jump{Loc: loc(c), Kind: ast.JumpReturn, Value: x}
			return &ast.Block{Loc: loc(n), Stmts: []ast.Stmt{&ast.ExprStmt{Loc: loc(c), X: ret}}}
		}
	}
	return &ast.Block{Loc: loc(n)}
}

// lambda walks a lambda or anonymous function body so that the locals it
// references are marked captured. The body does not run in place.
func (l *lowerer) lambda(n *sitter.Node) ast.Expr {
	prevFrame := l.enterFrame()
	l.push()
	defer func() {
		l.pop()
		l.frame = prevFrame
	}()

	lit := n
	if n.Type() == "annotated_lambda" {
		if inner := childOfType(n, "lambda_literal"); inner != nil {
			lit = inner
		}
	}

	switch lit.Type() {
	case "anonymous_function":
		l.parameters(childOfType(lit, "function_value_parameters"))
		if body := childOfType(lit, "function_body"); body != nil {
			l.functionBody(body)
		}
	default:
		if params := childOfType(lit, "lambda_parameters"); params != nil {
			for _, p := range children(params) {
				for _, id := range l.declaredNames(p) {
					l.declare(l.text(id), l.typeRef(firstType(p)), ast.Parameter, span(p))
				}
			}
		} else {
			l.declare("it", ast.TypeRef{}, ast.Parameter, span(lit))
		}
		if stmts := childOfType(lit, "statements"); stmts != nil {
			l.statements(stmts)
		}
	}
	return &ast.Opaque{Loc: loc(n), Text: "lambda"}
}

func (l *lowerer) declaredNames(n *sitter.Node) []*sitter.Node {
	switch n.Type() {
	case "variable_declaration":
		if id := childOfType(n, "simple_identifier"); id != nil {
			return []*sitter.Node{id}
		}
	case "multi_variable_declaration":
		var out []*sitter.Node
		for _, c := range children(n) {
			out = append(out, l.declaredNames(c)...)
		}
		return out
	}
	return nil
}

// Statements.

func (l *lowerer) block(n *sitter.Node) *ast.Block {
	l.push()
	defer l.pop()
	blk := &ast.Block{Loc: loc(n)}
	if stmts := childOfType(n, "statements"); stmts != nil {
		blk.Stmts = l.statements(stmts)
	} else {
		blk.Stmts = l.statements(n)
	}
	return blk
}

func (l *lowerer) statements(n *sitter.Node) []ast.Stmt {
	var out []ast.Stmt
	label := ""
	for _, c := range children(n) {
		switch c.Type() {
		case "statements":
			out = append(out, l.statements(c)...)
		case "label":
			label = strings.TrimSuffix(strings.TrimSpace(l.text(c)), "@")
		case "annotation":
		default:
			if !isOperand(c) {
				continue
			}
			if s := l.stmt(c, label); s != nil {
				out = append(out, s)
			}
			label = ""
		}
	}
	return out
}

func (l *lowerer) stmt(n *sitter.Node, label string) ast.Stmt {
	switch n.Type() {
	case "property_declaration":
		return l.localProperty(n)
	case "assignment":
		return l.assignment(n)
	case "while_statement":
		return l.whileStmt(n, label)
	case "do_while_statement":
		return l.doWhileStmt(n, label)
	case "for_statement":
		return l.forStmt(n, label)
	case "function_declaration":
		if sig := l.signature(n); sig != nil {
			l.scope.funcs[sig.Name] = sig
			l.function(n, l.unit+".")
		}
		return nil
	case "class_declaration", "object_declaration", "type_alias":
		return nil
	}
	return &ast.ExprStmt{Loc: loc(n), X: l.expr(n)}
}

func (l *lowerer) localProperty(n *sitter.Node) ast.Stmt {
	init := l.initExpr(n)
	kind := ast.ReadOnlyLocal
	if l.isVar(n) {
		kind = ast.MutableLocal
	}

	if decl := childOfType(n, "variable_declaration"); decl != nil {
		id := childOfType(decl, "simple_identifier")
		if id == nil {
			return nil
		}
		t := l.typeRef(firstType(decl))
		if !t.Known() && init != nil {
			t = ast.TypeOf(init)
		}
		b := l.declare(l.text(id), t, kind, span(decl))
		return &ast.VarDecl{Loc: loc(n), Binding: b, Init: init}
	}

	// Destructuring: evaluate the value, then declare each component.
	blk := &ast.Block{Loc: loc(n)}
	if init != nil {
		blk.Stmts = append(blk.Stmts, &ast.ExprStmt{Loc: loc(n), X: init})
	}
	if multi := childOfType(n, "multi_variable_declaration"); multi != nil {
		for _, c := range children(multi) {
			for _, id := range l.declaredNames(c) {
				b := l.declare(l.text(id), l.typeRef(firstType(c)), kind, span(c))
				blk.Stmts = append(blk.Stmts, &ast.VarDecl{Loc: loc(c), Binding: b})
			}
		}
	}
	return blk
}

func (l *lowerer) assignment(n *sitter.Node) ast.Stmt {
	ops := operands(n)
	if len(ops) < 2 {
		return &ast.ExprStmt{Loc: loc(n), X: &ast.Opaque{Loc: loc(n), Text: l.text(n)}}
	}
	lhs, rhs := ops[0], ops[len(ops)-1]
	op := l.between(lhs, rhs)

	target := l.assignable(lhs)
	value := l.expr(rhs)
	switch target.(type) {
	case *ast.Ident, *ast.Member:
		return &ast.Assign{Loc: loc(n), Target: target, Value: value, Op: op}
	}
	return &ast.ExprStmt{Loc: loc(n), X: &ast.Opaque{Loc: loc(n), Children: []ast.Expr{target, value}, Text: op}}
}

func (l *lowerer) assignable(n *sitter.Node) ast.Expr {
	switch n.Type() {
	case "directly_assignable_expression", "parenthesized_directly_assignable_expression":
	default:
		return l.expr(n)
	}
	ops := operands(n)
	switch {
	case len(ops) == 1:
		return l.assignable(ops[0])
	case len(ops) == 2 && ops[1].Type() == "navigation_suffix":
		return l.member(l.expr(ops[0]), ops[1], n)
	}
	var kids []ast.Expr
	for _, o := range ops {
		if o.Type() == "indexing_suffix" {
			for _, i := range operands(o) {
				kids = append(kids, l.expr(i))
			}
			continue
		}
		kids = append(kids, l.expr(o))
	}
	return &ast.Opaque{Loc: loc(n), Children: kids, Text: l.text(n)}
}

// loopParts splits a loop into its condition (or range) and its body.
func (l *lowerer) loopParts(n *sitter.Node) (cond *sitter.Node, body *sitter.Node) {
	for _, c := range children(n) {
		switch {
		case c.Type() == "control_structure_body":
			body = c
		case c.Type() == "variable_declaration" || c.Type() == "multi_variable_declaration" || c.Type() == "annotation":
		case isOperand(c):
			cond = c
		}
	}
	return cond, body
}

func (l *lowerer) condExpr(n *sitter.Node, at *sitter.Node) ast.Expr {
	if n == nil {
		return &ast.Opaque{Loc: loc(at), Type: ast.TypeRef{Name: "Boolean"}}
	}
	return l.expr(n)
}

func (l *lowerer) whileStmt(n *sitter.Node, label string) ast.Stmt {
	cond, body := l.loopParts(n)
	return &ast.While{Loc: loc(n), Cond: l.condExpr(cond, n), Body: l.body(body), Label: label}
}

func (l *lowerer) doWhileStmt(n *sitter.Node, label string) ast.Stmt {
	cond, body := l.loopParts(n)
	s := &ast.DoWhile{Loc: loc(n), Label: label}
	// The condition sees the body's declarations.
	l.push()
	defer l.pop()
	if body != nil {
		if blk := blockNode(body); blk != nil {
			stmts := childOfType(blk, "statements")
			b := &ast.Block{Loc: loc(blk)}
			if stmts != nil {
				b.Stmts = l.statements(stmts)
			}
			s.Body = b
		} else {
			s.Body = l.body(body)
		}
	}
	s.Cond = l.condExpr(cond, n)
	return s
}

func (l *lowerer) forStmt(n *sitter.Node, label string) ast.Stmt {
	rng, body := l.loopParts(n)
	s := &ast.For{Loc: loc(n), Label: label, Range: l.condExpr(rng, n)}

	l.push()
	defer l.pop()
	if decl := childOfType(n, "variable_declaration", "multi_variable_declaration"); decl != nil {
		for i, id := range l.declaredNames(decl) {
			b := l.declare(l.text(id), l.typeRef(firstType(decl)), ast.ReadOnlyLocal, span(decl))
			if i == 0 {
				s.Var = b
			}
		}
	}
	s.Body = l.body(body)
	return s
}

// body lowers a control_structure_body, which is a block or a single
// statement.
func (l *lowerer) body(n *sitter.Node) ast.Stmt {
	if n == nil {
		return nil
	}
	if blk := blockNode(n); blk != nil {
		return l.block(blk)
	}
	l.push()
	defer l.pop()
	return &ast.Block{Loc: loc(n), Stmts: l.statements(n)}
}

// Expressions.

func (l *lowerer) expr(n *sitter.Node) ast.Expr {
	switch n.Type() {
	case "simple_identifier":
		return l.ident(n)
	case "this_expression":
		return &ast.This{Loc: loc(n)}
	case "null", "null_literal":
		return &ast.NullLit{Loc: loc(n)}
	case "boolean_literal":
		return &ast.BoolLit{Loc: loc(n), Value: strings.TrimSpace(l.text(n)) == "true"}
	case "integer_literal", "hex_literal", "bin_literal":
		return l.literal(n, "Int")
	case "long_literal":
		return l.literal(n, "Long")
	case "unsigned_literal":
		return l.literal(n, "UInt")
	case "real_literal":
		if strings.HasSuffix(strings.ToLower(l.text(n)), "f") {
			return l.literal(n, "Float")
		}
		return l.literal(n, "Double")
	case "character_literal":
		return l.literal(n, "Char")
	case "string_literal", "line_string_literal", "multi_line_string_literal":
		return l.stringLiteral(n)
	case "parenthesized_expression":
		ops := operands(n)
		if len(ops) == 0 {
			return l.opaque(n)
		}
		return &ast.Paren{Loc: loc(n), X: l.expr(ops[0])}
	case "postfix_expression":
		return l.postfix(n)
	case "prefix_expression":
		return l.prefix(n)
	case "navigation_expression":
		ops := operands(n)
		if len(ops) != 2 {
			return l.opaque(n)
		}
		return l.member(l.expr(ops[0]), ops[1], n)
	case "call_expression":
		return l.call(n)
	case "indexing_expression":
		return l.opaque(n)
	case "as_expression":
		return l.asExpr(n)
	case "elvis_expression":
		ops := operands(n)
		if len(ops) < 2 {
			return l.opaque(n)
		}
		return &ast.Elvis{Loc: loc(n), Left: l.expr(ops[0]), Right: l.expr(ops[len(ops)-1])}
	case "check_expression":
		return l.check(n)
	case "equality_expression":
		return l.equality(n)
	case "conjunction_expression", "disjunction_expression":
		return l.logical(n)
	case "comparison_expression":
		o := l.opaque(n)
		o.Type = ast.TypeRef{Name: "Boolean"}
		return o
	case "infix_expression":
		ops := operands(n)
		if len(ops) < 3 {
			return l.opaque(n)
		}
		return &ast.Opaque{
			Loc:      loc(n),
			Children: []ast.Expr{l.expr(ops[0]), l.expr(ops[len(ops)-1])},
			Text:     l.text(ops[1]),
		}
	case "if_expression":
		return l.ifExpr(n)
	case "when_expression":
		return l.when(n)
	case "try_expression":
		return l.try(n)
	case "jump_expression":
		return l.jump(n)
	case "lambda_literal", "annotated_lambda", "anonymous_function":
		return l.lambda(n)
	case "annotated_expression":
		ops := operands(n)
		if len(ops) == 0 {
			return l.opaque(n)
		}
		return l.expr(ops[len(ops)-1])
	case "callable_reference", "object_literal", "super_expression", "collection_literal", "ERROR":
		return &ast.Opaque{Loc: loc(n), Text: l.text(n)}
	}
	return l.opaque(n)
}

// opaque lowers an unmodeled expression, keeping its operands for their
// effects.
func (l *lowerer) opaque(n *sitter.Node) *ast.Opaque {
	o := &ast.Opaque{Loc: loc(n), Text: n.Type()}
	for _, c := range operands(n) {
		if isTypeNode(c.Type()) {
			continue
		}
		switch c.Type() {
		case "indexing_suffix", "value_arguments", "call_suffix", "navigation_suffix":
			for _, i := range operands(c) {
				o.Children = append(o.Children, l.argument(i))
			}
			continue
		}
		o.Children = append(o.Children, l.expr(c))
	}
	return o
}

func (l *lowerer) literal(n *sitter.Node, typ string) ast.Expr {
	return &ast.Literal{Loc: loc(n), Type: ast.TypeRef{Name: typ}, Text: l.text(n)}
}

func (l *lowerer) stringLiteral(n *sitter.Node) ast.Expr {
	var parts []ast.Expr
	var walk func(*sitter.Node)
	walk = func(c *sitter.Node) {
		for _, k := range children(c) {
			switch k.Type() {
			case "interpolated_expression":
				for _, o := range operands(k) {
					parts = append(parts, l.expr(o))
				}
			case "interpolated_identifier":
				parts = append(parts, l.ident(k))
			default:
				if k.ChildCount() > 0 {
					walk(k)
				}
			}
		}
	}
	walk(n)
	if len(parts) == 0 {
		return l.literal(n, "String")
	}
	return &ast.Opaque{Loc: loc(n), Children: parts, Type: ast.TypeRef{Name: "String"}, Text: "template"}
}

func (l *lowerer) ident(n *sitter.Node) ast.Expr {
	name := strings.TrimPrefix(strings.TrimSpace(l.text(n)), "$")
	b, member := l.lookupVar(name)
	switch {
	case b == nil:
		return &ast.Opaque{Loc: loc(n), Text: name}
	case member:
		return &ast.Member{
			Loc:      loc(n),
			Receiver: &ast.This{Loc: loc(n), Implicit: true},
			Name:     name,
			Property: b,
			Type:     b.Type,
		}
	}
	return &ast.Ident{Loc: loc(n), Binding: b}
}

func (l *lowerer) member(recv ast.Expr, suffix *sitter.Node, whole *sitter.Node) ast.Expr {
	op := strings.TrimSpace(l.text(suffix))
	id := childOfType(suffix, "simple_identifier")
	if id == nil || strings.HasPrefix(op, "::") {
		return &ast.Opaque{Loc: loc(whole), Children: []ast.Expr{recv}, Text: l.text(whole)}
	}

	name := l.text(id)
	m := &ast.Member{Loc: loc(whole), Receiver: recv, Name: name, Safe: strings.HasPrefix(op, "?.")}
	if ci := l.classOf(recv); ci != nil {
		if p, ok := ci.props[name]; ok {
			m.Property = p
			m.Type = p.Type
		}
	}
	return m
}

func (l *lowerer) argument(n *sitter.Node) ast.Expr {
	if n.Type() != "value_argument" {
		return l.expr(n)
	}
	ops := operands(n)
	if len(ops) == 0 {
		return &ast.Opaque{Loc: loc(n)}
	}
	return l.expr(ops[len(ops)-1])
}

func (l *lowerer) call(n *sitter.Node) ast.Expr {
	ops := operands(n)
	if len(ops) < 2 || ops[len(ops)-1].Type() != "call_suffix" {
		return l.opaque(n)
	}
	callee, suffix := ops[0], ops[len(ops)-1]

	// The callee's receiver is evaluated before the arguments.
	var c *ast.Call
	switch callee.Type() {
	case "simple_identifier":
		name := l.text(callee)
		c = &ast.Call{Loc: loc(n), Callee: name}
		if sig := l.lookupFunc(name); sig != nil {
			c.Sig = sig
		} else if b, member := l.lookupVar(name); b != nil {
			// Invoking a value of function type.
			var recv ast.Expr = &ast.Ident{Loc: loc(callee), Binding: b}
			if member {
				recv = &ast.Member{Loc: loc(callee), Receiver: &ast.This{Loc: loc(callee), Implicit: true}, Name: name, Property: b, Type: b.Type}
			}
			c.Receiver = recv
			c.Callee = "invoke"
		}
	case "navigation_expression":
		parts := operands(callee)
		var id *sitter.Node
		if len(parts) == 2 {
			id = childOfType(parts[1], "simple_identifier")
		}
		if id == nil {
			return l.opaque(n)
		}
		recv := l.expr(parts[0])
		name := l.text(id)
		c = &ast.Call{
			Loc:      loc(n),
			Callee:   name,
			Receiver: recv,
			Safe:     strings.HasPrefix(strings.TrimSpace(l.text(parts[1])), "?."),
		}
		if ci := l.classOf(recv); ci != nil {
			c.Sig = ci.methods[name]
		}
	default:
		o := &ast.Opaque{Loc: loc(n), Text: "call", Children: []ast.Expr{l.expr(callee)}}
		o.Children = append(o.Children, l.arguments(suffix)...)
		return o
	}

	c.Args = l.arguments(suffix)
	if c.Sig != nil {
		c.Type = c.Sig.Result
	}
	return c
}

func (l *lowerer) arguments(suffix *sitter.Node) []ast.Expr {
	var args []ast.Expr
	for _, c := range children(suffix) {
		switch c.Type() {
		case "value_arguments":
			for _, a := range children(c) {
				if a.Type() == "value_argument" {
					args = append(args, l.argument(a))
				}
			}
		case "annotated_lambda", "lambda_literal":
			args = append(args, l.lambda(c))
		}
	}
	return args
}

func (l *lowerer) postfix(n *sitter.Node) ast.Expr {
	ops := operands(n)
	if len(ops) == 0 {
		return l.opaque(n)
	}
	x := ops[0]
	op := strings.TrimSpace(string(l.src[x.EndByte():n.EndByte()]))
	if op != "!!" {
		inner := l.expr(x)
		return &ast.Opaque{Loc: loc(n), Children: []ast.Expr{inner}, Type: ast.TypeOf(inner).NonNull(), Text: op}
	}

	end := n.EndPoint()
	opStart := n.EndByte() - 2
	start := sitter.Point{Row: end.Row, Column: end.Column - 2}
	return &ast.NotNullAssert{
		Loc: loc(n),
		X:   l.expr(x),
		Op:  ast.Span{Start: pos(opStart, start), End: pos(n.EndByte(), end)},
	}
}

func (l *lowerer) prefix(n *sitter.Node) ast.Expr {
	ops := operands(n)
	if len(ops) == 0 {
		return l.opaque(n)
	}
	x := ops[len(ops)-1]
	op := strings.TrimSpace(string(l.src[n.StartByte():x.StartByte()]))
	switch {
	case op == "!":
		return &ast.Not{Loc: loc(n), X: l.expr(x)}
	case strings.HasSuffix(op, "@") || strings.HasPrefix(op, "@"):
		// Labels and annotations.
		return l.expr(x)
	}
	inner := l.expr(x)
	t := ast.TypeOf(inner)
	if t.Known() {
		t = t.NonNull()
	}
	return &ast.Opaque{Loc: loc(n), Children: []ast.Expr{inner}, Type: t, Text: op}
}

func (l *lowerer) asExpr(n *sitter.Node) ast.Expr {
	ops := operands(n)
	if len(ops) < 2 {
		return l.opaque(n)
	}
	x, typ := ops[0], ops[len(ops)-1]
	t := l.typeRef(typ)
	if l.between(x, typ) == "as?" {
		t.Nullable = true
	}
	return &ast.Opaque{Loc: loc(n), Children: []ast.Expr{l.expr(x)}, Type: t, Text: "as"}
}

func (l *lowerer) check(n *sitter.Node) ast.Expr {
	ops := operands(n)
	if len(ops) < 2 {
		return l.opaque(n)
	}
	left, right := ops[0], ops[len(ops)-1]
	switch op := l.between(left, right); op {
	case "is", "!is":
		return &ast.IsCheck{Loc: loc(n), X: l.expr(left), Type: l.typeRef(right), Negated: op == "!is"}
	}
	return &ast.Opaque{
		Loc:      loc(n),
		Children: []ast.Expr{l.expr(left), l.expr(right)},
		Type:     ast.TypeRef{Name: "Boolean"},
		Text:     "in",
	}
}

func (l *lowerer) equality(n *sitter.Node) ast.Expr {
	ops := operands(n)
	if len(ops) < 2 {
		return l.opaque(n)
	}
	left, right := ops[0], ops[len(ops)-1]
	var op ast.CompareOp
	switch l.between(left, right) {
	case "==":
		op = ast.OpEq
	case "!=":
		op = ast.OpNotEq
	case "===":
		op = ast.OpIdentical
	case "!==":
		op = ast.OpNotIdentical
	default:
		return l.opaque(n)
	}
	return &ast.Compare{Loc: loc(n), Op: op, Left: l.expr(left), Right: l.expr(right)}
}

func (l *lowerer) logical(n *sitter.Node) ast.Expr {
	ops := operands(n)
	if len(ops) < 2 {
		return l.opaque(n)
	}
	left, right := l.expr(ops[0]), l.expr(ops[len(ops)-1])
	if n.Type() == "conjunction_expression" {
		return &ast.And{Loc: loc(n), Left: left, Right: right}
	}
	return &ast.Or{Loc: loc(n), Left: left, Right: right}
}

func (l *lowerer) ifExpr(n *sitter.Node) ast.Expr {
	s := &ast.IfExpr{Loc: loc(n)}
	seenElse := false
	for _, c := range children(n) {
		switch {
		case c.Type() == "else":
			seenElse = true
		case c.Type() == "control_structure_body":
			if seenElse {
				s.Else = l.body(c)
			} else {
				s.Then = l.body(c)
			}
		case s.Cond == nil && isOperand(c):
			s.Cond = l.expr(c)
		}
	}
	if s.Cond == nil {
		s.Cond = &ast.Opaque{Loc: loc(n), Type: ast.TypeRef{Name: "Boolean"}}
	}
	return s
}

func (l *lowerer) when(n *sitter.Node) ast.Expr {
	w := &ast.WhenExpr{Loc: loc(n)}
	l.push()
	defer l.pop()
	for _, c := range children(n) {
		switch c.Type() {
		case "when_subject":
			w.Subject = l.whenSubject(c)
		case "when_entry":
			w.Entries = append(w.Entries, l.whenEntry(c))
		}
	}
	return w
}

// whenSubject lowers the subject. A subject bound with val is read
// through its binding in every branch.
func (l *lowerer) whenSubject(n *sitter.Node) ast.Expr {
	var decl *sitter.Node
	var value ast.Expr
	for _, c := range operands(n) {
		switch {
		case c.Type() == "variable_declaration":
			decl = c
		case c.Type() == "annotation":
		default:
			value = l.expr(c)
		}
	}
	if value == nil {
		value = &ast.Opaque{Loc: loc(n)}
	}
	if decl == nil {
		return value
	}
	id := childOfType(decl, "simple_identifier")
	if id == nil {
		return value
	}
	t := l.typeRef(firstType(decl))
	if !t.Known() {
		t = ast.TypeOf(value)
	}
	b := l.declare(l.text(id), t, ast.ReadOnlyLocal, span(decl))
	return &ast.Ident{Loc: loc(id), Binding: b}
}

func (l *lowerer) whenEntry(n *sitter.Node) *ast.WhenEntry {
	e := &ast.WhenEntry{Loc: loc(n)}
	for _, c := range children(n) {
		switch {
		case c.Type() == "else":
			e.Else = true
		case c.Type() == "control_structure_body":
			e.Body = l.body(c)
		case c.Type() == "when_condition":
			for _, o := range operands(c) {
				e.Conds = append(e.Conds, l.whenCondition(o))
			}
		case isOperand(c):
			e.Conds = append(e.Conds, l.whenCondition(c))
		}
	}
	return e
}

func (l *lowerer) whenCondition(n *sitter.Node) ast.Expr {
	switch n.Type() {
	case "type_test":
		typ := firstType(n)
		if typ == nil {
			ops := operands(n)
			if len(ops) == 0 {
				return l.opaque(n)
			}
			typ = ops[len(ops)-1]
		}
		op := strings.TrimSpace(string(l.src[n.StartByte():typ.StartByte()]))
		return &ast.IsCheck{Loc: loc(n), Type: l.typeRef(typ), Negated: strings.HasPrefix(op, "!")}
	case "range_test":
		o := l.opaque(n)
		o.Type = ast.TypeRef{Name: "Boolean"}
		return o
	}
	return l.expr(n)
}

func (l *lowerer) try(n *sitter.Node) ast.Expr {
	t := &ast.TryExpr{Loc: loc(n)}
	if blk := blockNode(n); blk != nil {
		t.Body = l.block(blk)
	} else {
		t.Body = &ast.Block{Loc: loc(n)}
	}
	for _, c := range children(n) {
		switch c.Type() {
		case "catch_block":
			t.Catches = append(t.Catches, l.catch(c))
		case "finally_block":
			if blk := blockNode(c); blk != nil {
				t.Finally = l.block(blk)
			}
		}
	}
	return t
}

func (l *lowerer) catch(n *sitter.Node) *ast.Catch {
	l.push()
	defer l.pop()
	c := &ast.Catch{Loc: loc(n)}
	if id := childOfType(n, "simple_identifier"); id != nil {
		c.Param = l.declare(l.text(id), l.typeRef(firstType(n)), ast.Parameter, span(id))
	}
	if blk := blockNode(n); blk != nil {
		c.Body = l.block(blk)
	} else {
		c.Body = &ast.Block{Loc: loc(n)}
	}
	return c
}

var jumpKeywords = []struct {
	word string
	kind ast.JumpKind
}{
	{"return", ast.JumpReturn},
	{"throw", ast.JumpThrow},
	{"break", ast.JumpBreak},
	{"continue", ast.JumpContinue},
}

func (l *lowerer) jump(n *sitter.Node) ast.Expr {
	text := l.text(n)
	j := &ast.Jump{Loc: loc(n), Kind: ast.JumpReturn}

	rest := text
	for _, kw := range jumpKeywords {
		if strings.HasPrefix(text, kw.word) {
			j.Kind = kw.kind
			rest = text[len(kw.word):]
			break
		}
	}
	if strings.HasPrefix(rest, "@") {
		end := strings.IndexFunc(rest[1:], func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		if end < 0 {
			end = len(rest) - 1
		}
		j.Label = rest[1 : end+1]
	}
	skip := len(text) - len(rest)
	if j.Label != "" {
		skip += len(j.Label) + 1
	}
	valueFrom := toInt(n.StartByte()) + skip

	if j.Kind == ast.JumpReturn || j.Kind == ast.JumpThrow {
		for _, c := range operands(n) {
			if toInt(c.StartByte()) >= valueFrom {
				j.Value = l.expr(c)
				break
			}
		}
	}
	return j
}
