package nullness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var all = []State{Unreachable, NotNull, Null, Unknown}

func TestMeet(t *testing.T) {
	tests := []struct {
		a, b State
		want State
	}{
		{NotNull, NotNull, NotNull},
		{Null, Null, Null},
		{NotNull, Null, Unknown},
		{Null, NotNull, Unknown},
		{NotNull, Unknown, Unknown},
		{Null, Unknown, Unknown},
		{Unreachable, NotNull, NotNull},
		{Null, Unreachable, Null},
		{Unreachable, Unknown, Unknown},
		{Unreachable, Unreachable, Unreachable},
	}

	for _, tt := range tests {
		t.Run(tt.a.String()+"_"+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Meet(tt.a, tt.b))
		})
	}
}

func TestMeetLaws(t *testing.T) {
	for _, a := range all {
		assert.Equal(t, a, Meet(a, a), "idempotent %v", a)
		assert.Equal(t, a, Meet(a, Unreachable), "identity %v", a)
		assert.Equal(t, Unknown, Meet(a, Unknown), "absorbing %v", a)
		for _, b := range all {
			assert.Equal(t, Meet(a, b), Meet(b, a), "commutative %v %v", a, b)
			for _, c := range all {
				assert.Equal(t, Meet(Meet(a, b), c), Meet(a, Meet(b, c)), "associative %v %v %v", a, b, c)
			}
		}
	}
}

func TestLeq(t *testing.T) {
	assert.True(t, Leq(Unreachable, NotNull))
	assert.True(t, Leq(NotNull, Unknown))
	assert.True(t, Leq(Null, Unknown))
	assert.False(t, Leq(NotNull, Null))
	assert.False(t, Leq(Null, NotNull))
	assert.False(t, Leq(Unknown, NotNull))
}

func TestNarrowed(t *testing.T) {
	assert.True(t, NotNull.Narrowed())
	assert.True(t, Null.Narrowed())
	assert.False(t, Unknown.Narrowed())
	assert.False(t, Unreachable.Narrowed())
}

func TestRefine(t *testing.T) {
	assert.Equal(t, NotNull, Refine(Unknown, NotNull))
	assert.Equal(t, Null, Refine(Null, Unknown))
	assert.Equal(t, NotNull, Refine(NotNull, NotNull))
	assert.Equal(t, Unreachable, Refine(NotNull, Null))
	assert.Equal(t, Unreachable, Refine(Unreachable, Unknown))
	for _, a := range all {
		assert.Equal(t, a, Refine(a, Unknown), "identity %v", a)
		for _, b := range all {
			assert.Equal(t, Refine(a, b), Refine(b, a), "commutative %v %v", a, b)
		}
	}
}
