package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/cfg"
	"github.com/l3aro/go-nullflow/pkg/dfg"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

func collect(fn *ast.Function, opts Options) []Diagnostic {
	return Collect(dfg.Solve(cfg.Build(fn, cfg.Options{})), opts)
}

// kinds maps the span start offset of each finding to its kind.
func kinds(ds []Diagnostic) map[int]Kind {
	out := make(map[int]Kind, len(ds))
	for _, d := range ds {
		out[d.At.Start.Offset] = d.Kind
	}
	return out
}

func TestCollectNullCheckScenario(t *testing.T) {
	b := ast.NewBuilder()
	foo := b.Sig("foo", "Int", "Int")
	x := b.Val("x", "Int?")

	before := b.Ident(x)
	thenUse := b.Ident(x)
	thenAssert := b.Assert(b.Ident(x))
	elseUse := b.Ident(x)
	elseAssert := b.Assert(b.Ident(x))
	elseAfter := b.Ident(x)
	after := b.Ident(x)
	trailing := b.Assert(b.Ident(x))

	fn := b.Func("main", "Unit", nil,
		b.Decl(x, b.Null()),
		b.Do(b.Call(foo, before)),
		b.Do(b.If(b.NotEq(b.Ident(x), b.Null()),
			b.Block(
				b.Do(b.Call(foo, thenUse)),
				b.Do(b.Call(foo, thenAssert)),
			),
			b.Block(
				b.Do(b.Call(foo, elseUse)),
				b.Do(b.Call(foo, elseAssert)),
				b.Do(b.Call(foo, elseAfter)),
			),
		)),
		b.Do(b.Call(foo, after)),
		b.Do(b.Call(foo, trailing)),
	)

	got := kinds(collect(fn, Options{}))
	want := map[int]Kind{
		before.At.Start.Offset:     TypeMismatch,
		thenUse.At.Start.Offset:    SmartCast,
		thenAssert.Op.Start.Offset: RedundantAssertion,
		elseUse.At.Start.Offset:    TypeMismatch,
		elseAfter.At.Start.Offset:  SmartCast,
		after.At.Start.Offset:      SmartCast,
		trailing.Op.Start.Offset:   RedundantAssertion,
	}
	assert.Equal(t, want, got)
}

func TestCollectImpossibleAssertionPolicy(t *testing.T) {
	b := ast.NewBuilder()
	x := b.Param("x", "Int?")
	assertion := b.Assert(b.Ident(x))
	fn := b.Func("f", "Unit", []*ast.Binding{x},
		b.Do(b.If(b.Eq(b.Ident(x), b.Null()), b.Do(assertion), nil)),
	)

	assert.Empty(t, collect(fn, Options{}))

	ds := collect(fn, Options{Assertions: AssertReport})
	require.Len(t, ds, 1)
	assert.Equal(t, ImpossibleAssertion, ds[0].Kind)
	require.NotNil(t, ds[0].Related)
	assert.Equal(t, "x", ds[0].Subject)
}

func TestCollectAssertionIdempotence(t *testing.T) {
	b := ast.NewBuilder()
	y := b.Val("y", "Int?")
	first := b.Assert(b.Ident(y))
	second := b.Assert(b.Ident(y))
	fn := b.Func("main", "Unit", nil,
		b.Decl(y, b.Null()),
		b.Do(first),
		b.Do(second),
	)

	ds := collect(fn, Options{})
	require.Len(t, ds, 1)
	assert.Equal(t, RedundantAssertion, ds[0].Kind)
	assert.Equal(t, second.Op, ds[0].At)
	require.NotNil(t, ds[0].Related)
	assert.Equal(t, first.Op, ds[0].Related.At)
}

func TestCollectStaticallyNonNullAssertion(t *testing.T) {
	b := ast.NewBuilder()
	x := b.Param("x", "Int")
	a := b.Assert(b.Ident(x))
	fn := b.Func("f", "Unit", []*ast.Binding{x}, b.Do(a))

	ds := collect(fn, Options{})
	require.Len(t, ds, 1)
	assert.Equal(t, RedundantAssertion, ds[0].Kind)
	assert.Nil(t, ds[0].Related)
}

func TestCollectSkipsDeadCode(t *testing.T) {
	b := ast.NewBuilder()
	foo := b.Sig("foo", "Unit", "String")
	x := b.Param("x", "String?")
	fn := b.Func("f", "Unit", []*ast.Binding{x},
		b.Do(b.If(b.Bool(false), b.Block(
			b.Do(b.Call(foo, b.Ident(x))),
			b.Do(b.Assert(b.Assert(b.Ident(x)))),
		), nil)),
		b.Do(b.Return(nil)),
		b.Do(b.Call(foo, b.Ident(x))),
	)

	assert.Empty(t, collect(fn, Options{}))
}

func TestCollectUseContexts(t *testing.T) {
	b := ast.NewBuilder()
	x := b.Param("x", "String?")
	s := b.Val("s", "String")
	length := b.Prop("length", "Int", ast.ReadOnlyProperty)
	fn := b.Func("f", "String", []*ast.Binding{x},
		b.Decl(s, b.Ident(x)),
		b.Do(b.Member(b.Ident(x), length)),
		b.Do(b.SafeMember(b.Ident(x), length)),
		b.Do(b.Return(b.Ident(x))),
	)

	ds := collect(fn, Options{})
	var contexts []cfg.UseContext
	for _, d := range ds {
		assert.Equal(t, TypeMismatch, d.Kind)
		contexts = append(contexts, d.Context)
	}
	assert.Equal(t, []cfg.UseContext{cfg.UseInitializer, cfg.UseReceiver, cfg.UseReturn}, contexts)
}

func TestCollectUnstableIsUnknown(t *testing.T) {
	b := ast.NewBuilder()
	foo := b.Sig("foo", "Unit", "String")
	m := b.Prop("m", "String?", ast.MutableProperty)
	use := b.Member(b.This(), m)
	fn := b.Func("f", "Unit", nil,
		b.Do(b.If(b.NotEq(b.Member(b.This(), m), b.Null()), b.Do(b.Call(foo, use)), nil)),
	)

	ds := collect(fn, Options{})
	require.Len(t, ds, 1)
	assert.Equal(t, TypeMismatch, ds[0].Kind)
	assert.Equal(t, stable.Key(""), ds[0].Key)
	assert.Equal(t, "this.m", ds[0].Subject)
}

func TestSortOrdersByPosition(t *testing.T) {
	at := func(off int) ast.Span { return ast.Span{Start: ast.Pos{Offset: off}} }
	ds := []Diagnostic{
		{Kind: SmartCast, At: at(9)},
		{Kind: RedundantAssertion, At: at(3)},
		{Kind: TypeMismatch, At: at(3)},
	}
	Sort(ds)
	assert.Equal(t, []Kind{TypeMismatch, RedundantAssertion, SmartCast}, []Kind{ds[0].Kind, ds[1].Kind, ds[2].Kind})
}

func TestKindCodes(t *testing.T) {
	for _, k := range []Kind{TypeMismatch, RedundantAssertion, ImpossibleAssertion, SmartCast} {
		got, ok := KindFromCode(k.Code())
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
	_, ok := KindFromCode("NOPE")
	assert.False(t, ok)
	assert.Equal(t, SeverityError, TypeMismatch.Severity())
	assert.Equal(t, SeverityInfo, SmartCast.Severity())
}

func TestParseAssertionPolicy(t *testing.T) {
	p, err := ParseAssertionPolicy("Report")
	require.NoError(t, err)
	assert.Equal(t, AssertReport, p)

	p, err = ParseAssertionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, AssertSilent, p)

	_, err = ParseAssertionPolicy("loud")
	assert.Error(t, err)
}
