package expand

import (
	"context"
	"errors"
	"path"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func globExpander(t *testing.T) *Expander {
	t.Helper()
	e := newTestExpander()
	for _, name := range []string{
		"/work/main.go",
		"/work/util.go",
		"/work/README.md",
		"/work/.hidden.go",
		"/work/src/a/x.c",
		"/work/src/b/y.c",
		"/work/src/b/z.h",
		"/etc/hosts",
	} {
		require.NoError(t, e.FS.MkdirAll(path.Dir(name), 0o755))
		require.NoError(t, afero.WriteFile(e.FS, name, nil, 0o644))
	}
	return e
}

func TestGlob(t *testing.T) {
	e := globExpander(t)

	cases := []struct {
		src  string
		want []string
	}{
		{"*.go", []string{"main.go", "util.go"}},
		{".*.go", []string{".hidden.go"}},
		{"src/*/*.c", []string{"src/a/x.c", "src/b/y.c"}},
		{"src/?/z.[ch]", []string{"src/b/z.h"}},
		{"*/", []string{"src/"}},
		{"/etc/host?", []string{"/etc/hosts"}},
		{"src/b/*", []string{"src/b/y.c", "src/b/z.h"}},
		{"[mu]*.go", []string{"main.go", "util.go"}},
		{`"*".go`, []string{"*.go"}},
		{`\*.go`, []string{"*.go"}},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, fields(t, e, tc.src))
		})
	}
}

func TestGlobFromVariable(t *testing.T) {
	e := globExpander(t)
	require.NoError(t, e.Vars.Set("p", "*.md"))

	assert.Equal(t, []string{"README.md"}, fields(t, e, `$p`))
	assert.Equal(t, []string{"*.md"}, fields(t, e, `"$p"`))
}

func TestGlobNoMatchLiteral(t *testing.T) {
	e := globExpander(t)
	e.NoMatch = NoMatchLiteral

	assert.Equal(t, []string{"ls", "*.rs"}, fields(t, e, "ls *.rs"))
}

func TestGlobNoMatchFail(t *testing.T) {
	e := globExpander(t)
	e.NoMatch = NoMatchFail

	_, err := e.Fields(context.Background(), words(t, "ls *.rs"))
	require.Error(t, err)
	var expErr *ExpansionError
	require.True(t, errors.As(err, &expErr))
	assert.Equal(t, "no match: *.rs", expErr.Error())

	assert.Equal(t, []string{"ls", "main.go", "util.go"}, fields(t, e, "ls *.go"))
}

func TestGlobNoMatchNull(t *testing.T) {
	e := globExpander(t)
	e.NoMatch = NoMatchNull

	assert.Equal(t, []string{"ls"}, fields(t, e, "ls *.rs"))
}

func TestNoGlobFlag(t *testing.T) {
	e := globExpander(t)
	e.Vars.Flags = "f"

	assert.Equal(t, []string{"*.go"}, fields(t, e, "*.go"))
}

func TestParseNoMatch(t *testing.T) {
	for _, policy := range []NoMatch{NoMatchLiteral, NoMatchFail, NoMatchNull} {
		got, err := ParseNoMatch(policy.String())
		require.NoError(t, err)
		assert.Equal(t, policy, got)
	}
	_, err := ParseNoMatch("sometimes")
	assert.Error(t, err)
}
