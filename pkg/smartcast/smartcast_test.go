package smartcast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/cfg"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/report"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

func TestQuery(t *testing.T) {
	b := ast.NewBuilder()
	foo := b.Sig("foo", "Int", "Int")
	x := b.Param("x", "Int?")
	n := b.Param("n", "Int")

	before := b.Ident(x)
	inThen := b.Ident(x)
	inElse := b.Ident(x)
	dead := b.Ident(x)
	nonNull := b.Ident(n)
	lit := b.Null()
	call := b.Call(foo, b.Int("1"))

	fn := b.Func("f", "Unit", []*ast.Binding{x, n},
		b.Do(before),
		b.Do(b.If(b.NotEq(b.Ident(x), b.Null()), b.Do(inThen), b.Do(inElse))),
		b.Do(nonNull),
		b.Do(b.Opaque(lit, call)),
		b.Do(b.Return(nil)),
		b.Do(dead),
	)

	r := Analyze(fn, Options{})
	assert.Equal(t, nullness.Unknown, r.Query(before))
	assert.Equal(t, nullness.NotNull, r.Query(inThen))
	assert.Equal(t, nullness.Null, r.Query(inElse))
	assert.Equal(t, nullness.Unreachable, r.Query(dead))
	assert.Equal(t, nullness.NotNull, r.Query(nonNull))
	assert.Equal(t, nullness.Null, r.Query(lit))
	assert.Equal(t, nullness.NotNull, r.Query(call))
	assert.Equal(t, nullness.NotNull, r.Query(b.Paren(inThen)))
}

func TestQueryUnstableFallsBackToType(t *testing.T) {
	b := ast.NewBuilder()
	m := b.Prop("m", "String?", ast.MutableProperty)
	use := b.Member(b.This(), m)
	fn := b.Func("f", "Unit", nil,
		b.Do(b.If(b.NotEq(b.Member(b.This(), m), b.Null()), b.Do(use), nil)),
	)

	r := Analyze(fn, Options{})
	assert.Equal(t, nullness.Unknown, r.Query(use))
}

func TestAnalyzeSeparatesMarkers(t *testing.T) {
	b := ast.NewBuilder()
	foo := b.Sig("foo", "Int", "Int")
	x := b.Param("x", "Int?")
	fn := b.Func("f", "Unit", []*ast.Binding{x},
		b.Do(b.Call(foo, b.Ident(x))),
		b.Do(b.If(b.NotEq(b.Ident(x), b.Null()), b.Do(b.Call(foo, b.Ident(x))), nil)),
	)

	r := Analyze(fn, Options{})
	require.Len(t, r.Diagnostics(), 1)
	assert.Equal(t, report.TypeMismatch, r.Diagnostics()[0].Kind)
	require.Len(t, r.Markers(), 1)
	assert.Equal(t, report.SmartCast, r.Markers()[0].Kind)
	assert.Same(t, fn, r.Function())
	assert.NotNil(t, r.Graph())
	assert.NotNil(t, r.Solution())
}

func TestStateAt(t *testing.T) {
	b := ast.NewBuilder()
	x := b.Param("x", "Int?")
	use := b.Ident(x)
	fn := b.Func("f", "Unit", []*ast.Binding{x},
		b.Do(b.If(b.Eq(b.Ident(x), b.Null()), b.Do(b.Return(nil)), nil)),
		b.Do(use),
	)

	r := Analyze(fn, Options{})
	n := r.Graph().Reads[use]
	assert.Equal(t, nullness.NotNull, r.StateAt(n, stable.BindingKey(x)))
	assert.Equal(t, nullness.Unknown, r.StateAt(r.Graph().Entry, stable.BindingKey(x)))
}

func TestAssertionPolicyOption(t *testing.T) {
	b := ast.NewBuilder()
	y := b.Val("y", "Int?")
	fn := b.Func("f", "Unit", nil,
		b.Decl(y, b.Null()),
		b.Do(b.If(b.Eq(b.Ident(y), b.Null()), b.Do(b.Assert(b.Ident(y))), nil)),
	)

	assert.Empty(t, Analyze(fn, Options{}).Diagnostics())
	ds := Analyze(fn, Options{Assertions: report.AssertReport}).Diagnostics()
	require.Len(t, ds, 1)
	assert.Equal(t, report.ImpossibleAssertion, ds[0].Kind)
}

func TestAnalyzeFile(t *testing.T) {
	b := ast.NewBuilder()
	foo := b.Sig("foo", "Int", "Int")

	var fns []*ast.Function
	for _, name := range []string{"a", "b", "c", "d"} {
		x := b.Param("x", "Int?")
		fns = append(fns, b.Func(name, "Unit", []*ast.Binding{x},
			b.Do(b.Call(foo, b.Ident(x))),
		))
	}
	file := &ast.File{Path: "units.kt", Functions: fns}

	res, err := AnalyzeFile(context.Background(), file, Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, res.Units, 4)
	for i, u := range res.Units {
		assert.Same(t, fns[i], u.Function())
	}
	assert.Same(t, fns[2], res.Unit("c").Function())
	assert.Nil(t, res.Unit("missing"))

	ds := res.Diagnostics()
	require.Len(t, ds, 4)
	for i := 1; i < len(ds); i++ {
		assert.Less(t, ds[i-1].At.Start.Offset, ds[i].At.Start.Offset)
	}
	assert.Empty(t, res.Markers())
}

func TestAnalyzeFileEmpty(t *testing.T) {
	res, err := AnalyzeFile(context.Background(), &ast.File{Path: "empty.kt"}, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Units)
	assert.Empty(t, res.Diagnostics())
}

func TestAnalyzeFileCanceled(t *testing.T) {
	b := ast.NewBuilder()
	file := &ast.File{Path: "c.kt", Functions: []*ast.Function{b.Func("f", "Unit", nil)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AnalyzeFile(ctx, file, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnitPanic(t *testing.T) {
	b := ast.NewBuilder()
	fn := b.Func("broken", "Unit", nil)

	err := unitPanic(fn, &cfg.InternalError{Msg: "dangling edge"})
	var ie *cfg.InternalError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, err.Error(), "unit broken")
	assert.Contains(t, err.Error(), "Internal Error: dangling edge")

	assert.Panics(t, func() { _ = unitPanic(fn, "boom") })
}
