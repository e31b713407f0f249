package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptexctl/gosh/v2/internal/ast"
)

func braceStrings(t *testing.T, w *ast.Word) []string {
	t.Helper()
	words, err := Braces(w)
	require.NoError(t, err)
	var out []string
	for _, b := range words {
		out = append(out, b.String())
	}
	return out
}

func TestBraces(t *testing.T) {
	cases := []struct {
		src  string
		want []string
	}{
		{"pre{a,b}post", []string{"preapost", "prebpost"}},
		{"{a,b}{1,2}", []string{"a1", "a2", "b1", "b2"}},
		{"{a,{b,c}}d", []string{"ad", "bd", "cd"}},
		{"{1..3}", []string{"1", "2", "3"}},
		{"{3..1}", []string{"3", "2", "1"}},
		{"{01..03}", []string{"01", "02", "03"}},
		{"{0..10..5}", []string{"0", "5", "10"}},
		{"{-1..1}", []string{"-1", "0", "1"}},
		{"{a..c}", []string{"a", "b", "c"}},
		{"x{,y}", []string{"x", "xy"}},
		{"{a}", []string{"{a}"}},
		{"{}", []string{"{}"}},
		{"a{b", []string{"a{b"}},
		{`\{a,b}`, []string{`\{a,b}`}},
		{"plain", []string{"plain"}},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, braceStrings(t, ast.NewLiteral(tc.src)))
		})
	}
}

func TestBracesLeaveQuotedPartsAlone(t *testing.T) {
	w := &ast.Word{Parts: []*ast.WordPart{
		{Type: ast.PartLiteral, Value: "{x,y}"},
		{Type: ast.PartSingleQuoted, Value: "{a,b}"},
	}}
	assert.Equal(t, []string{"x'{a,b}'", "y'{a,b}'"}, braceStrings(t, w))
}

func TestBracesIdempotentWithoutBraces(t *testing.T) {
	for _, src := range []string{"abc", "a,b", "a..b", "*.go"} {
		w := ast.NewLiteral(src)
		got, err := Braces(w)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Same(t, w, got[0])
	}
}


func TestBracesTooLarge(t *testing.T) {
	for _, src := range []string{
		"{1..10000000000}",
		"{-9223372036854775808..9223372036854775807}",
		"{1..300}{1..300}",
		"{0..1000000..1}",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Braces(ast.NewLiteral(src))
			var expErr *ExpansionError
			require.ErrorAs(t, err, &expErr)
			assert.Contains(t, err.Error(), "brace expansion too large")
		})
	}

	words, err := Braces(ast.NewLiteral("{1..100000..2}"))
	require.NoError(t, err)
	assert.Len(t, words, 50000)
	assert.Equal(t, "99999", words[len(words)-1].String())
}
