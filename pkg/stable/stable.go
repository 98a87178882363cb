// Package stable decides which expressions denote values that cannot change
// between two observations on one control-flow path, and maps them to
// canonical dataflow keys.
//
// Read-only locals, parameters and this are stable. A property chain a.b.c
// is stable only if every receiver is stable and every property is a final
// read-only property without a custom getter. Mutable locals and mutable
// properties are never stable under the default policy: a closure or
// another thread may reassign them with no visible code in between.
package stable

import (
	"strconv"
	"strings"

	"github.com/l3aro/go-nullflow/pkg/ast"
)

// Key is the canonical identity of a stable expression: binding IDs joined
// by dots, rooted at a binding or at this.
type Key string

// This is the key of the enclosing receiver.
const This Key = "this"

// BindingKey returns the key of a bare binding.
func BindingKey(b *ast.Binding) Key {
	return Key("b" + strconv.Itoa(int(b.ID)))
}

// Child extends k by a property access.
func (k Key) Child(prop *ast.Binding) Key {
	return k + "." + BindingKey(prop)
}

// Root returns the first component of k.
func (k Key) Root() Key {
	if i := strings.IndexByte(string(k), '.'); i >= 0 {
		return k[:i]
	}
	return k
}

// HasPrefix reports whether k is root or a chain through root.
func (k Key) HasPrefix(root Key) bool {
	return k == root || strings.HasPrefix(string(k), string(root)+".")
}

// Policy tunes which bindings count as stable.
type Policy struct {
	// UncapturedLocals treats a mutable local as stable when no lambda or
	// local function references it. Reassignments are then the only way
	// its value changes, and those are visible in the graph.
	UncapturedLocals bool
}

// StableBinding reports whether reads of b always yield the same value
// between two reassignments visible in the graph.
func (p Policy) StableBinding(b *ast.Binding) bool {
	if b == nil {
		return false
	}
	switch b.Kind {
	case ast.ReadOnlyLocal, ast.Parameter, ast.ReadOnlyProperty:
		return true
	case ast.MutableLocal:
		return p.UncapturedLocals && !b.Captured
	default:
		return false
	}
}

// Of returns the key of e if e is stable.
func (p Policy) Of(e ast.Expr) (Key, bool) {
	switch e := e.(type) {
	case *ast.Paren:
		return p.Of(e.X)
	case *ast.Ident:
		if !p.StableBinding(e.Binding) {
			return "", false
		}
		return BindingKey(e.Binding), true
	case *ast.This:
		return This, true
	case *ast.Member:
		if e.Safe || e.Property == nil || e.Property.Kind != ast.ReadOnlyProperty {
			return "", false
		}
		recv, ok := p.Of(e.Receiver)
		if !ok {
			return "", false
		}
		return recv.Child(e.Property), true
	default:
		return "", false
	}
}

// Of returns the key of e under the default policy.
func Of(e ast.Expr) (Key, bool) {
	return Policy{}.Of(e)
}

// Path returns the syntactic key of an assignment target regardless of
// stability. Facts about any key with this prefix die when the target is
// written.
func Path(e ast.Expr) (Key, bool) {
	switch e := e.(type) {
	case *ast.Paren:
		return Path(e.X)
	case *ast.Ident:
		if e.Binding == nil {
			return "", false
		}
		return BindingKey(e.Binding), true
	case *ast.This:
		return This, true
	case *ast.Member:
		if e.Property == nil {
			return "", false
		}
		recv, ok := Path(e.Receiver)
		if !ok {
			return "", false
		}
		return recv.Child(e.Property), true
	default:
		return "", false
	}
}

// Describe renders e the way a user wrote it, for key names in output.
func Describe(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.Paren:
		return Describe(e.X)
	case *ast.Ident:
		if e.Binding == nil {
			return "?"
		}
		return e.Binding.Name
	case *ast.This:
		return "this"
	case *ast.Member:
		name := e.Name
		if e.Property != nil {
			name = e.Property.Name
		}
		if t, ok := e.Receiver.(*ast.This); ok && t.Implicit {
			return name
		}
		op := "."
		if e.Safe {
			op = "?."
		}
		return Describe(e.Receiver) + op + name
	case *ast.NotNullAssert:
		return Describe(e.X) + "!!"
	case *ast.Call:
		if e.Receiver != nil {
			return Describe(e.Receiver) + "." + e.Callee + "(...)"
		}
		return e.Callee + "(...)"
	case *ast.NullLit:
		return "null"
	case *ast.Literal:
		return e.Text
	case *ast.Opaque:
		if e.Text != "" {
			return e.Text
		}
	}
	return "<expr>"
}
