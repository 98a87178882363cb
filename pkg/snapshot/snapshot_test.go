package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

func at(offset int) ast.Span {
	return ast.Span{Start: ast.Pos{Offset: offset, Line: 1, Column: offset + 1}}
}

func fact(k stable.Key, s nullness.State, offset int) Fact {
	return Fact{Key: k, State: s, Origin: Origin{Kind: OriginComparison, At: at(offset)}}
}

func TestEmptyAndUnreachable(t *testing.T) {
	e := Empty()
	assert.False(t, e.IsUnreachable())
	assert.Equal(t, nullness.Unknown, e.State("b1"))

	u := Unreachable()
	assert.True(t, u.IsUnreachable())
	assert.Equal(t, nullness.Unreachable, u.State("b1"))
	assert.True(t, u.With(fact("b1", nullness.NotNull, 0)).IsUnreachable())
}

func TestWithOverrides(t *testing.T) {
	s := Empty().With(fact("b1", nullness.Null, 0))
	s2 := s.With(fact("b1", nullness.NotNull, 5))

	assert.Equal(t, nullness.Null, s.State("b1"), "original must not change")
	assert.Equal(t, nullness.NotNull, s2.State("b1"))
	f, ok := s2.Fact("b1")
	require.True(t, ok)
	assert.Equal(t, 5, f.Origin.At.Start.Offset)

	s3 := s2.With(fact("b1", nullness.Unknown, 6))
	assert.Equal(t, 0, s3.Len())
}

func TestWithoutRoot(t *testing.T) {
	s := Empty().
		With(fact("b1", nullness.NotNull, 0)).
		With(fact("b1.b2", nullness.NotNull, 1)).
		With(fact("b10", nullness.Null, 2))

	out := s.WithoutRoot("b1")
	assert.Equal(t, nullness.Unknown, out.State("b1"))
	assert.Equal(t, nullness.Unknown, out.State("b1.b2"))
	assert.Equal(t, nullness.Null, out.State("b10"))
	assert.Equal(t, 3, s.Len())

	assert.Equal(t, s, s.WithoutRoot("b7"))
}

func TestMeet(t *testing.T) {
	a := Empty().
		With(fact("b1", nullness.NotNull, 4)).
		With(fact("b2", nullness.NotNull, 0)).
		With(fact("b3", nullness.Null, 0))
	b := Empty().
		With(fact("b1", nullness.NotNull, 2)).
		With(fact("b2", nullness.Null, 0))

	m := a.Meet(b)
	assert.Equal(t, nullness.NotNull, m.State("b1"))
	assert.Equal(t, nullness.Unknown, m.State("b2"), "conflicting facts meet to unknown")
	assert.Equal(t, nullness.Unknown, m.State("b3"), "fact missing on one side is dropped")
	f, _ := m.Fact("b1")
	assert.Equal(t, 2, f.Origin.At.Start.Offset)

	assert.True(t, a.Meet(Unreachable()).Equal(a))
	assert.True(t, Unreachable().Meet(b).Equal(b))
	assert.True(t, Unreachable().Meet(Unreachable()).IsUnreachable())
	assert.True(t, a.Meet(b).Equal(b.Meet(a)))
}

func TestEqualIgnoresOrigin(t *testing.T) {
	a := Empty().With(fact("b1", nullness.NotNull, 0))
	b := Empty().With(Fact{Key: "b1", State: nullness.NotNull, Origin: Origin{Kind: OriginAssertion, At: at(9)}})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(Empty()))
	assert.False(t, Empty().Equal(Unreachable()))
	assert.True(t, Empty().Equal(Snapshot{}))
}

func TestFactsAndFormat(t *testing.T) {
	s := Empty().
		With(fact("b2", nullness.Null, 0)).
		With(fact("b1", nullness.NotNull, 0))

	facts := s.Facts()
	require.Len(t, facts, 2)
	assert.Equal(t, stable.Key("b1"), facts[0].Key)
	assert.Equal(t, "{x: not-null, b2: null}", s.Format(map[stable.Key]string{"b1": "x"}))
	assert.Equal(t, "⊥", Unreachable().String())
	assert.Equal(t, "{}", Empty().String())
}
