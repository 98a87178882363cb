// Package nullness defines the nullability lattice.
//
// The lattice has height 2:
//
//	        Unknown
//	       /       \
//	   NotNull     Null
//	       \       /
//	      Unreachable
//
// Meet combines the states flowing into a join point from different CFG
// edges. An unreachable predecessor contributes nothing.
package nullness

import "fmt"

// State is a point in the nullability lattice.
type State uint8

const (
	Unreachable State = iota // bottom: no execution reaches this point
	NotNull
	Null
	Unknown // top: nothing is known
)

func (s State) String() string {
	switch s {
	case Unreachable:
		return "unreachable"
	case NotNull:
		return "not-null"
	case Null:
		return "null"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Meet combines facts about one key arriving over different edges.
func Meet(a, b State) State {
	switch {
	case a == Unreachable:
		return b
	case b == Unreachable:
		return a
	case a == b:
		return a
	default:
		return Unknown
	}
}

// Leq reports whether a ⊑ b.
func Leq(a, b State) bool {
	return Meet(a, b) == b
}

// Narrowed reports whether s proves anything about nullability.
func (s State) Narrowed() bool {
	return s == NotNull || s == Null
}

// Refine combines two facts that hold at the same time, for example the
// states of both operands on the true edge of x == y. Unknown adds nothing;
// contradicting facts yield Unreachable.
func Refine(a, b State) State {
	switch {
	case a == Unknown:
		return b
	case b == Unknown:
		return a
	case a == b:
		return a
	default:
		return Unreachable
	}
}
