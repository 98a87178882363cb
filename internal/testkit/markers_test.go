package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	src := "foo(<!TYPE_MISMATCH!>x<!>)\nfoo(x<!UNNECESSARY_NOT_NULL_ASSERTION!>!!<!>)"
	clean, ms, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, "foo(x)\nfoo(x!!)", clean)
	assert.Equal(t, []Marker{
		{Code: "TYPE_MISMATCH", Start: 4, End: 5},
		{Code: "UNNECESSARY_NOT_NULL_ASSERTION", Start: 12, End: 14},
	}, ms)
}

func TestParseNestedAndMultiple(t *testing.T) {
	clean, ms, err := Parse("<!A!>a<!B, C!>b<!><!>")
	require.NoError(t, err)
	assert.Equal(t, "ab", clean)
	assert.Equal(t, []Marker{
		{Code: "A", Start: 0, End: 2},
		{Code: "B", Start: 1, End: 2},
		{Code: "C", Start: 1, End: 2},
	}, ms)
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"x<!>", "<!A!>x", "<!A", "<!!>x<!>"} {
		_, _, err := Parse(src)
		assert.Error(t, err, src)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	for _, src := range []string{
		"foo(<!TYPE_MISMATCH!>x<!>)",
		"<!A!>a<!B, C!>b<!><!>",
		"plain",
		"<!A!><!>empty",
	} {
		clean, ms, err := Parse(src)
		require.NoError(t, err)
		assert.Equal(t, src, Render(clean, ms))
	}
}
