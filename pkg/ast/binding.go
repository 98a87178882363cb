package ast

import "fmt"

// BindingID identifies a binding within one file.
type BindingID int

// MutabilityKind classifies how a binding may change after it is declared.
type MutabilityKind uint8

const (
	ReadOnlyLocal        MutabilityKind = iota // val x
	MutableLocal                               // var x
	Parameter                                  // function or catch parameter
	ReadOnlyProperty                           // val p, final, default getter
	MutableProperty                            // var p
	CustomGetterProperty                       // val p with get() or open
)

func (k MutabilityKind) String() string {
	switch k {
	case ReadOnlyLocal:
		return "read-only-local"
	case MutableLocal:
		return "mutable-local"
	case Parameter:
		return "parameter"
	case ReadOnlyProperty:
		return "read-only-property"
	case MutableProperty:
		return "mutable-property"
	case CustomGetterProperty:
		return "read-only-property-with-custom-accessor"
	default:
		return fmt.Sprintf("MutabilityKind(%d)", uint8(k))
	}
}

// IsProperty reports whether the kind denotes a member property.
func (k MutabilityKind) IsProperty() bool {
	return k == ReadOnlyProperty || k == MutableProperty || k == CustomGetterProperty
}

// TypeRef is a declared type as seen by the nullability analysis. An empty
// Name means the type is not known to the front end.
type TypeRef struct {
	Name     string `json:"name"`
	Nullable bool   `json:"nullable"`
}

// Known reports whether the front end resolved the type at all.
func (t TypeRef) Known() bool { return t.Name != "" }

// NonNull returns t without the nullable marker.
func (t TypeRef) NonNull() TypeRef {
	t.Nullable = false
	return t
}

func (t TypeRef) String() string {
	name := t.Name
	if name == "" {
		name = "<unknown>"
	}
	if t.Nullable {
		return name + "?"
	}
	return name
}

// Nothing is the type of expressions that never complete normally.
var Nothing = TypeRef{Name: "Nothing"}

// NullType is the type of the null literal.
var NullType = TypeRef{Name: "Nothing", Nullable: true}

// Binding is a declared name. Bindings are created once by the front end and
// are read-only afterwards.
type Binding struct {
	ID   BindingID
	Name string
	Type TypeRef
	Kind MutabilityKind
	// Captured is set for local variables referenced from a lambda or local
	// function body.
	Captured bool
	Span     Span
}

func (b *Binding) String() string {
	return fmt.Sprintf("%s#%d", b.Name, b.ID)
}

// Signature describes a callable resolved by the front end.
type Signature struct {
	Name   string
	Params []TypeRef
	Result TypeRef
}

// Param returns the declared type of the i-th parameter, or an unknown type
// when the call passes more arguments than declared (varargs, bad code).
func (s *Signature) Param(i int) TypeRef {
	if s == nil || i < 0 || i >= len(s.Params) {
		return TypeRef{}
	}
	return s.Params[i]
}

// TypeOracle answers type questions the analysis cannot answer itself.
type TypeOracle interface {
	// ExcludesNull reports whether no value of type t can be null at
	// runtime.
	ExcludesNull(t TypeRef) bool
}

// DefaultOracle treats every known, non-nullable type as excluding null.
type DefaultOracle struct{}

// ExcludesNull implements TypeOracle.
func (DefaultOracle) ExcludesNull(t TypeRef) bool {
	return t.Known() && !t.Nullable
}
