package readline

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainReader(t *testing.T) {
	var out bytes.Buffer
	r := NewPlain(strings.NewReader("echo one\necho two"), &out, true)

	line, err := r.ReadLine("$ ")
	require.NoError(t, err)
	assert.Equal(t, "echo one", line)

	line, err = r.ReadLine("> ")
	require.NoError(t, err)
	assert.Equal(t, "echo two", line)

	_, err = r.ReadLine("$ ")
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "$ > $ ", out.String())

	out.Reset()
	quiet := NewPlain(strings.NewReader("x\n"), &out, false)
	_, err = quiet.ReadLine("$ ")
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestCurrentWord(t *testing.T) {
	cases := []struct {
		head  string
		word  string
		first bool
	}{
		{"", "", true},
		{"ec", "ec", true},
		{"echo ", "", false},
		{"echo fi", "fi", false},
		{"echo 'a b' c", "c", false},
		{"ls | gr", "gr", true},
		{"true && ", "", true},
	}
	for _, tc := range cases {
		word, first := currentWord(tc.head)
		assert.Equal(t, tc.word, word, tc.head)
		assert.Equal(t, tc.first, first, tc.head)
	}
}

func completions(c *Completer, line string) []string {
	out, _ := c.Do([]rune(line), len([]rune(line)))
	var s []string
	for _, r := range out {
		s = append(s, string(r))
	}
	return s
}

func TestCompleter(t *testing.T) {
	dir := t.TempDir()
	bin := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "gosh-tool"), nil, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "gosh-data"), nil, 0o644))

	c := &Completer{
		Commands: func() []string { return []string{"echo", "export", "exit", "goshfn"} },
		Dir:      func() string { return dir },
		Path:     func() string { return bin },
	}

	assert.Equal(t, []string{"it ", "port "}, completions(c, "ex"))
	assert.Equal(t, []string{"fn ", "-tool "}, completions(c, "gosh"))
	assert.Equal(t, []string{"src/", "notes.txt "}, completions(c, "cat "))
	assert.Equal(t, []string{"main.go "}, completions(c, "cat src/"))
	assert.Equal(t, []string{"hidden "}, completions(c, "cat ."))
	assert.Empty(t, completions(c, "cat zz"))

	_, length := c.Do([]rune("cat src/ma"), 10)
	assert.Equal(t, 6, length)
}
