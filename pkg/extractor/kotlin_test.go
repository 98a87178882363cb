package extractor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-nullflow/pkg/ast"
)

func parse(t *testing.T, src string) *ast.File {
	t.Helper()
	file, err := ParseKotlin("test.kt", []byte(src))
	require.NoError(t, err)
	return file
}

func unitNames(f *ast.File) []string {
	var out []string
	for _, fn := range f.Functions {
		out = append(out, fn.Name)
	}
	return out
}

// find returns every node of type T in fn, in source order.
func find[T ast.Node](fn *ast.Function) []T {
	var out []T
	ast.Inspect(fn, func(n ast.Node) bool {
		if x, ok := n.(T); ok {
			out = append(out, x)
		}
		return true
	})
	return out
}

func TestParseKotlinUnits(t *testing.T) {
	file := parse(t, `package demo

val greeting: String = "hi"

fun foo(x: Int): Int = x + 1

class Box(val item: String?, seed: Int) {
    val size = 3

    init {
        println(seed)
    }

    fun get(): String? {
        fun helper(): Int = 1
        return item
    }
}
`)

	assert.Equal(t, []string{"foo", "Box.get", "Box.get.helper", "Box.<init>", "<top-level>"}, unitNames(file))

	foo := file.Lookup("foo")
	require.NotNil(t, foo)
	assert.Equal(t, ast.UnitFunction, foo.Kind)
	assert.Equal(t, ast.TypeRef{Name: "Int"}, foo.Result)
	require.Len(t, foo.Params, 1)
	assert.Equal(t, "x", foo.Params[0].Name)
	assert.Equal(t, ast.Parameter, foo.Params[0].Kind)
	assert.Len(t, find[*ast.Jump](foo), 1, "expression bodies return their value")

	init := file.Lookup("Box.<init>")
	require.NotNil(t, init)
	assert.Equal(t, ast.UnitInitializer, init.Kind)
	require.Len(t, init.Params, 1)
	assert.Equal(t, "seed", init.Params[0].Name)

	decls := find[*ast.VarDecl](init)
	require.Len(t, decls, 1)
	assert.Equal(t, "size", decls[0].Binding.Name)
	assert.Equal(t, ast.TypeRef{Name: "Int"}, decls[0].Binding.Type)

	top := file.Lookup("<top-level>")
	require.NotNil(t, top)
	assert.Equal(t, ast.UnitInitializer, top.Kind)
}

func TestParseKotlinResolvesNames(t *testing.T) {
	file := parse(t, `
fun length(s: String): Int = 0

class Holder(val fixed: String?, var moving: String?) {
    open val custom: String? = null
    val computed: String?
        get() = null

    fun run(p: String?) {
        val local: String? = p
        length(fixed)
        length(moving)
        length(local)
        length(this.fixed)
        unknown(p)
    }
}
`)
	run := file.Lookup("Holder.run")
	require.NotNil(t, run)

	calls := find[*ast.Call](run)
	require.Len(t, calls, 5)
	for _, c := range calls[:4] {
		require.NotNil(t, c.Sig, c.Callee)
		assert.Equal(t, "length", c.Sig.Name)
		assert.Equal(t, []ast.TypeRef{{Name: "String"}}, c.Sig.Params)
	}
	assert.Nil(t, calls[4].Sig)

	fixed, ok := calls[0].Args[0].(*ast.Member)
	require.True(t, ok)
	require.NotNil(t, fixed.Property)
	assert.Equal(t, ast.ReadOnlyProperty, fixed.Property.Kind)
	this, ok := fixed.Receiver.(*ast.This)
	require.True(t, ok)
	assert.True(t, this.Implicit)

	moving, ok := calls[1].Args[0].(*ast.Member)
	require.True(t, ok)
	assert.Equal(t, ast.MutableProperty, moving.Property.Kind)

	local, ok := calls[2].Args[0].(*ast.Ident)
	require.True(t, ok)
	assert.Equal(t, ast.ReadOnlyLocal, local.Binding.Kind)
	assert.Equal(t, ast.TypeRef{Name: "String", Nullable: true}, local.Binding.Type)

	explicit, ok := calls[3].Args[0].(*ast.Member)
	require.True(t, ok)
	assert.Same(t, fixed.Property, explicit.Property)
	_, ok = explicit.Receiver.(*ast.This)
	assert.True(t, ok)
}

func TestParseKotlinPropertyKinds(t *testing.T) {
	file := parse(t, `
open class Holder {
    val plain: String? = null
    var mutable: String? = null
    open val overridable: String? = null
    val computed: String?
        get() = null

    fun read() {
        plain
        mutable
        overridable
        computed
    }
}
`)
	read := file.Lookup("Holder.read")
	require.NotNil(t, read)

	kinds := map[string]ast.MutabilityKind{}
	for _, m := range find[*ast.Member](read) {
		require.NotNil(t, m.Property, m.Name)
		kinds[m.Name] = m.Property.Kind
	}
	assert.Equal(t, map[string]ast.MutabilityKind{
		"plain":       ast.ReadOnlyProperty,
		"mutable":     ast.MutableProperty,
		"overridable": ast.CustomGetterProperty,
		"computed":    ast.CustomGetterProperty,
	}, kinds)
}

func TestParseKotlinCapturedLocals(t *testing.T) {
	file := parse(t, `
fun run(block: () -> Unit) {}

fun f() {
    var seen: String? = null
    var plain: String? = null
    run { seen = "x" }
    plain = "y"
}
`)
	f := file.Lookup("f")
	require.NotNil(t, f)

	decls := find[*ast.VarDecl](f)
	require.Len(t, decls, 2)
	assert.Equal(t, "seen", decls[0].Binding.Name)
	assert.True(t, decls[0].Binding.Captured)
	assert.Equal(t, ast.MutableLocal, decls[0].Binding.Kind)
	assert.False(t, decls[1].Binding.Captured)
}

func TestParseKotlinExpressions(t *testing.T) {
	src := `
fun f(x: String?, y: Any?): Int {
    if (x != null && y is String) {
        x!!
    }
    val z = x ?: return 0
    when (y) {
        is Int -> return 1
        null -> throw Exception()
    }
    return 2
}
`
	file := parse(t, src)
	f := file.Lookup("f")
	require.NotNil(t, f)

	cmps := find[*ast.Compare](f)
	require.NotEmpty(t, cmps)
	assert.Equal(t, ast.OpNotEq, cmps[0].Op)
	_, ok := cmps[0].Right.(*ast.NullLit)
	assert.True(t, ok)

	checks := find[*ast.IsCheck](f)
	require.Len(t, checks, 2)
	assert.Equal(t, "String", checks[0].Type.Name)
	assert.NotNil(t, checks[0].X)
	assert.Equal(t, "Int", checks[1].Type.Name)
	assert.Nil(t, checks[1].X, "when conditions test the subject")

	asserts := find[*ast.NotNullAssert](f)
	require.Len(t, asserts, 1)
	op := asserts[0].Op
	assert.Equal(t, "!!", src[op.Start.Offset:op.End.Offset])

	elvis := find[*ast.Elvis](f)
	require.Len(t, elvis, 1)
	jump, ok := elvis[0].Right.(*ast.Jump)
	require.True(t, ok)
	assert.Equal(t, ast.JumpReturn, jump.Kind)

	decls := find[*ast.VarDecl](f)
	require.Len(t, decls, 1)
	assert.Equal(t, ast.TypeRef{Name: "String"}, decls[0].Binding.Type, "elvis with a jump drops nullability")

	var kinds []ast.JumpKind
	for _, j := range find[*ast.Jump](f) {
		kinds = append(kinds, j.Kind)
	}
	assert.Contains(t, kinds, ast.JumpThrow)
}

func TestParseKotlinLoopsAndTry(t *testing.T) {
	file := parse(t, `
fun f(items: List<String>) {
    outer@ for (item in items) {
        while (true) {
            break@outer
        }
    }
    do {
        val n = 1
    } while (n > 0)
    try {
        f(items)
    } catch (e: Exception) {
        throw e
    } finally {
        f(items)
    }
}
`)
	f := file.Lookup("f")
	require.NotNil(t, f)

	fors := find[*ast.For](f)
	require.Len(t, fors, 1)
	assert.Equal(t, "outer", fors[0].Label)
	require.NotNil(t, fors[0].Var)
	assert.Equal(t, "item", fors[0].Var.Name)

	var labels []string
	for _, j := range find[*ast.Jump](f) {
		if j.Kind == ast.JumpBreak {
			labels = append(labels, j.Label)
		}
	}
	assert.Equal(t, []string{"outer"}, labels)

	assert.Len(t, find[*ast.DoWhile](f), 1)

	tries := find[*ast.TryExpr](f)
	require.Len(t, tries, 1)
	require.Len(t, tries[0].Catches, 1)
	assert.Equal(t, "e", tries[0].Catches[0].Param.Name)
	assert.Equal(t, ast.Parameter, tries[0].Catches[0].Param.Kind)
	assert.NotNil(t, tries[0].Finally)
}

func TestParseKotlinSyntaxError(t *testing.T) {
	file, err := ParseKotlin("broken.kt", []byte("fun f( {\n"))
	require.Error(t, err)
	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "broken.kt", se.File)
	assert.NotNil(t, file)
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.kt")
	require.NoError(t, os.WriteFile(path, []byte("fun a() {}\n"), 0o644))

	file, err := ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, file.Path)
	assert.Equal(t, []string{"a"}, unitNames(file))

	_, err = ExtractFile(filepath.Join(dir, "missing.kt"))
	assert.Error(t, err)
	_, err = ExtractFile(filepath.Join(dir, "a.go"))
	assert.Error(t, err)
}

func TestLanguageRegistry(t *testing.T) {
	r := NewLanguageRegistry()
	assert.True(t, r.IsSupported("Main.kt"))
	assert.True(t, r.IsSupported("build.gradle.KTS"))
	assert.False(t, r.IsSupported("main.go"))
	assert.False(t, r.IsSupported("Makefile"))
	assert.Equal(t, []string{".kt", ".kts"}, r.SupportedExtensions())

	lang, err := r.GetLanguage("x.kt")
	require.NoError(t, err)
	assert.Equal(t, Kotlin, lang)
}
