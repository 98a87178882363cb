// Package snapshot holds the immutable fact sets the solver attaches to
// program points.
package snapshot

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

// OriginKind records which construct established a fact.
type OriginKind uint8

const (
	OriginComparison OriginKind = iota
	OriginAssertion
	OriginTypeCheck
	OriginAssignment
)

func (k OriginKind) String() string {
	switch k {
	case OriginComparison:
		return "comparison"
	case OriginAssertion:
		return "assertion"
	case OriginTypeCheck:
		return "type-check"
	case OriginAssignment:
		return "assignment"
	}
	return fmt.Sprintf("OriginKind(%d)", uint8(k))
}

// Origin points at the construct behind a fact. It never affects merging.
type Origin struct {
	Kind OriginKind
	At   ast.Span
}

func (o Origin) String() string {
	return fmt.Sprintf("%s at %s", o.Kind, o.At)
}

// Fact is a proven state for one key.
type Fact struct {
	Key    stable.Key
	State  nullness.State
	Origin Origin
}

// Snapshot is an immutable set of facts with at most one fact per key. Keys
// without a fact are Unknown. The zero value is the empty snapshot.
type Snapshot struct {
	facts       map[stable.Key]Fact
	unreachable bool
}

// Empty returns the snapshot with no facts.
func Empty() Snapshot { return Snapshot{} }

// Unreachable returns the snapshot of a point no execution reaches.
func Unreachable() Snapshot { return Snapshot{unreachable: true} }

// IsUnreachable reports whether s is the unreachable snapshot.
func (s Snapshot) IsUnreachable() bool { return s.unreachable }

// Len returns the number of facts.
func (s Snapshot) Len() int { return len(s.facts) }

// State returns what s knows about k.
func (s Snapshot) State(k stable.Key) nullness.State {
	if s.unreachable {
		return nullness.Unreachable
	}
	if f, ok := s.facts[k]; ok {
		return f.State
	}
	return nullness.Unknown
}

// Fact returns the fact recorded for k.
func (s Snapshot) Fact(k stable.Key) (Fact, bool) {
	f, ok := s.facts[k]
	return f, ok
}

// With returns s with f replacing any earlier fact about f.Key. Along one
// path a later fact always overrides an earlier one. Recording Unknown
// removes the key.
func (s Snapshot) With(f Fact) Snapshot {
	if s.unreachable {
		return s
	}
	if f.State == nullness.Unknown {
		return s.Without(f.Key)
	}
	if f.State == nullness.Unreachable {
		return Unreachable()
	}
	facts := make(map[stable.Key]Fact, len(s.facts)+1)
	maps.Copy(facts, s.facts)
	facts[f.Key] = f
	return Snapshot{facts: facts}
}

// Without drops the fact about k.
func (s Snapshot) Without(k stable.Key) Snapshot {
	if _, ok := s.facts[k]; !ok {
		return s
	}
	facts := maps.Clone(s.facts)
	delete(facts, k)
	return Snapshot{facts: facts}
}

// WithoutRoot drops the facts about root and about every chain through it.
func (s Snapshot) WithoutRoot(root stable.Key) Snapshot {
	var facts map[stable.Key]Fact
	for k := range s.facts {
		if !k.HasPrefix(root) {
			continue
		}
		if facts == nil {
			facts = maps.Clone(s.facts)
		}
		delete(facts, k)
	}
	if facts == nil {
		return s
	}
	return Snapshot{facts: facts}
}

// Meet combines the snapshots of two incoming edges. A key keeps a fact only
// if both sides know something about it; states are combined with
// nullness.Meet. An unreachable side contributes nothing.
func (s Snapshot) Meet(o Snapshot) Snapshot {
	switch {
	case s.unreachable:
		return o
	case o.unreachable:
		return s
	}
	var facts map[stable.Key]Fact
	for k, f := range s.facts {
		g, ok := o.facts[k]
		if !ok {
			continue
		}
		st := nullness.Meet(f.State, g.State)
		if st == nullness.Unknown {
			continue
		}
		if facts == nil {
			facts = make(map[stable.Key]Fact)
		}
		f.State = st
		if g.Origin.At.Start.Before(f.Origin.At.Start) {
			f.Origin = g.Origin
		}
		facts[k] = f
	}
	return Snapshot{facts: facts}
}

// Equal compares states; origins are informational and ignored.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.unreachable || o.unreachable {
		return s.unreachable == o.unreachable
	}
	if len(s.facts) != len(o.facts) {
		return false
	}
	for k, f := range s.facts {
		g, ok := o.facts[k]
		if !ok || g.State != f.State {
			return false
		}
	}
	return true
}

// Facts returns the facts sorted by key.
func (s Snapshot) Facts() []Fact {
	out := make([]Fact, 0, len(s.facts))
	for _, k := range slices.Sorted(maps.Keys(s.facts)) {
		out = append(out, s.facts[k])
	}
	return out
}

// Format renders s using names for keys that have one.
func (s Snapshot) Format(names map[stable.Key]string) string {
	if s.unreachable {
		return "⊥"
	}
	if len(s.facts) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(s.facts))
	for _, f := range s.Facts() {
		name, ok := names[f.Key]
		if !ok {
			name = string(f.Key)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, f.State))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s Snapshot) String() string {
	return s.Format(nil)
}
