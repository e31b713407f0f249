package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptexctl/gosh/v2/internal/jobs"
	"github.com/cryptexctl/gosh/v2/internal/variables"
)

func init() {
	color.NoColor = true
}

// fakeShell records flow control requests instead of acting on them.
type fakeShell struct {
	vars     *variables.Manager
	jobs     *jobs.Manager
	builtins *Manager
	dir      string
	options  map[string]bool
	funcs    map[string]bool

	exited   *int
	breaks   int
	conts    int
	returned *int
	loops    int
	evals    []string
	sourced  []string
}

func newFakeShell() *fakeShell {
	return &fakeShell{
		vars:     variables.NewFromEnviron([]string{"HOME=/home/gosh"}),
		jobs:     jobs.New(nil),
		builtins: NewDefault(),
		dir:      "/",
		options:  map[string]bool{"errexit": false, "noglob": false, "nounset": false, "xtrace": false, "notify": false},
		funcs:    map[string]bool{},
	}
}

func (s *fakeShell) Vars() *variables.Manager { return s.vars }
func (s *fakeShell) Jobs() *jobs.Manager      { return s.jobs }
func (s *fakeShell) Builtins() *Manager       { return s.builtins }
func (s *fakeShell) Interactive() bool        { return false }
func (s *fakeShell) Dir() string              { return s.dir }

func (s *fakeShell) Chdir(dir string) error {
	s.dir = dir
	return nil
}

func (s *fakeShell) Exit(status int) { s.exited = &status }

func (s *fakeShell) Break(n int) error {
	if s.loops == 0 {
		return errors.New("only meaningful in a `for', `while', or `until' loop")
	}
	s.breaks = n
	return nil
}

func (s *fakeShell) Continue(n int) error {
	if s.loops == 0 {
		return errors.New("only meaningful in a `for', `while', or `until' loop")
	}
	s.conts = n
	return nil
}

func (s *fakeShell) Return(status int) error {
	if s.vars.Depth() == 0 {
		return errors.New("can only `return' from a function or sourced script")
	}
	s.returned = &status
	return nil
}

func (s *fakeShell) Eval(c *Context, src string) int {
	s.evals = append(s.evals, src)
	return 0
}

func (s *fakeShell) Source(c *Context, path string, args []string) int {
	s.sourced = append(s.sourced, path+" "+strings.Join(args, " "))
	return 0
}

func (s *fakeShell) LookupCommand(name string) (string, string) {
	switch {
	case name == "if" || name == "while":
		return "keyword", ""
	case s.funcs[name]:
		return "function", ""
	case s.builtins.Exists(name):
		return "builtin", ""
	case name == "ls":
		return "file", "/bin/ls"
	}
	return "", ""
}

func (s *fakeShell) UnsetFunction(name string) bool {
	ok := s.funcs[name]
	delete(s.funcs, name)
	return ok
}

func (s *fakeShell) SetOption(name string, on bool) error {
	if _, ok := s.options[name]; !ok {
		return fmt.Errorf("%s: invalid option name", name)
	}
	s.options[name] = on
	return nil
}

func (s *fakeShell) Option(name string) bool { return s.options[name] }

func (s *fakeShell) OptionNames() []string {
	var names []string
	for name := range s.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type result struct {
	status int
	stdout string
	stderr string
}

func run(s *fakeShell, stdin string, args ...string) result {
	var stdout, stderr bytes.Buffer
	c := &Context{
		Ctx:    context.Background(),
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
		Shell:  s,
	}
	status := s.builtins.Get(args[0])(c, args)
	return result{status, stdout.String(), stderr.String()}
}

func ExampleQuote() {
	fmt.Println(Quote("plain"))
	fmt.Println(Quote("two words"))
	fmt.Println(Quote("it's"))
	// Output:
	// plain
	// 'two words'
	// "it's"
}

func TestEcho(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"echo", "a", "b"}, "a b\n"},
		{[]string{"echo"}, "\n"},
		{[]string{"echo", "-n", "a"}, "a"},
		{[]string{"echo", "-e", `a\tb`}, "a\tb\n"},
		{[]string{"echo", "-E", `a\tb`}, `a\tb` + "\n"},
		{[]string{"echo", "-ne", `x\x41\0101`}, "xAA"},
		{[]string{"echo", "-e", `one\c`, "two"}, "one"},
		{[]string{"echo", "-x", "a"}, "-x a\n"},
		{[]string{"echo", "--", "a"}, "-- a\n"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			r := run(newFakeShell(), "", tt.args...)
			assert.Equal(t, 0, r.status)
			assert.Equal(t, tt.want, r.stdout)
		})
	}
}

func TestRead(t *testing.T) {
	s := newFakeShell()

	r := run(s, "  alpha  beta  gamma delta  \nnext\n", "read", "x", "y")
	assert.Equal(t, 0, r.status)
	assert.Equal(t, "alpha", s.vars.Get("x"))
	assert.Equal(t, "beta  gamma delta", s.vars.Get("y"))

	r = run(s, `a\ b c`+"\n", "read", "x", "y")
	assert.Equal(t, 0, r.status)
	assert.Equal(t, "a b", s.vars.Get("x"))
	assert.Equal(t, "c", s.vars.Get("y"))

	run(s, `a\ b c`+"\n", "read", "-r", "x", "y")
	assert.Equal(t, `a\`, s.vars.Get("x"))
	assert.Equal(t, "b c", s.vars.Get("y"))

	run(s, "  keep  spaces  \n", "read")
	assert.Equal(t, "  keep  spaces  ", s.vars.Get("REPLY"))

	run(s, "one two three\n", "read", "-a", "words")
	assert.Equal(t, []string{"one", "two", "three"}, s.vars.GetArray("words"))

	require.NoError(t, s.vars.Set("IFS", ":"))
	run(s, "a:b::c\n", "read", "-a", "words")
	assert.Equal(t, []string{"a", "b", "", "c"}, s.vars.GetArray("words"))
	require.NoError(t, s.vars.Unset("IFS"))

	r = run(s, "partial", "read", "x")
	assert.Equal(t, 0, r.status)
	assert.Equal(t, "partial", s.vars.Get("x"))

	r = run(s, "", "read", "x")
	assert.Equal(t, 1, r.status)
	assert.Equal(t, "", s.vars.Get("x"))

	r = run(s, "line\n", "read", "-p", "> ", "x")
	assert.Equal(t, "> ", r.stderr)
}

func TestTest(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0o644))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	tests := []struct {
		args []string
		want int
	}{
		{[]string{"test"}, 1},
		{[]string{"test", "x"}, 0},
		{[]string{"test", ""}, 1},
		{[]string{"test", "-n", ""}, 1},
		{[]string{"test", "-z", ""}, 0},
		{[]string{"test", "a", "=", "a"}, 0},
		{[]string{"test", "a", "!=", "a"}, 1},
		{[]string{"test", "a", "<", "b"}, 0},
		{[]string{"test", "3", "-lt", "10"}, 0},
		{[]string{"test", "3", "-ge", "10"}, 1},
		{[]string{"test", "!", "-z", "x"}, 0},
		{[]string{"test", "-f", file}, 0},
		{[]string{"test", "-d", file}, 1},
		{[]string{"test", "-d", dir}, 0},
		{[]string{"test", "-e", filepath.Join(dir, "missing")}, 1},
		{[]string{"test", "-s", empty}, 1},
		{[]string{"test", "-s", file}, 0},
		{[]string{"test", "-r", file}, 0},
		{[]string{"test", "-f", file, "-a", "-d", dir}, 0},
		{[]string{"test", "-f", dir, "-o", "-d", dir}, 0},
		{[]string{"test", "(", "a", "=", "b", ")", "-o", "x"}, 0},
		{[]string{"test", "!", "(", "a", "=", "a", ")"}, 1},
		{[]string{"[", "1", "-eq", "1", "]"}, 0},
		{[]string{"[", "1", "-eq", "1"}, 2},
		{[]string{"test", "x", "-eq", "1"}, 2},
		{[]string{"test", "a", "b"}, 2},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			r := run(newFakeShell(), "", tt.args...)
			assert.Equal(t, tt.want, r.status, r.stderr)
		})
	}
}

func TestFlowControl(t *testing.T) {
	s := newFakeShell()
	s.vars.Status = 3

	r := run(s, "", "exit")
	require.NotNil(t, s.exited)
	assert.Equal(t, 3, *s.exited)
	assert.Equal(t, 3, r.status)

	run(s, "", "exit", "257")
	assert.Equal(t, 1, *s.exited)

	r = run(s, "", "exit", "abc")
	assert.Equal(t, 2, *s.exited)
	assert.Equal(t, "exit: abc: numeric argument required\n", r.stderr)

	r = run(s, "", "break")
	assert.Equal(t, 1, r.status)
	assert.Contains(t, r.stderr, "only meaningful")

	s.loops = 2
	assert.Equal(t, 0, run(s, "", "break", "2").status)
	assert.Equal(t, 2, s.breaks)
	assert.Equal(t, 0, run(s, "", "continue").status)
	assert.Equal(t, 1, s.conts)
	r = run(s, "", "continue", "0")
	assert.Equal(t, 1, r.status)
	assert.Equal(t, "continue: 0: loop count out of range\n", r.stderr)

	r = run(s, "", "return", "4")
	assert.Equal(t, 1, r.status)
	assert.Nil(t, s.returned)

	s.vars.PushScope(nil)
	r = run(s, "", "return", "4")
	assert.Equal(t, 4, r.status)
	require.NotNil(t, s.returned)
	assert.Equal(t, 4, *s.returned)
}

func TestEvalAndSource(t *testing.T) {
	s := newFakeShell()
	assert.Equal(t, 0, run(s, "", "eval").status)
	run(s, "", "eval", "echo", "$x;", "true")
	assert.Equal(t, []string{"echo $x; true"}, s.evals)

	r := run(s, "", ".")
	assert.Equal(t, 2, r.status)
	assert.Equal(t, ".: filename argument required\n", r.stderr)

	run(s, "", "source", "lib.sh", "a", "b")
	assert.Equal(t, []string{"lib.sh a b"}, s.sourced)
}

func TestCd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), nil, 0o644))

	s := newFakeShell()
	s.dir = dir

	assert.Equal(t, 0, run(s, "", "cd", "sub").status)
	assert.Equal(t, filepath.Join(dir, "sub"), s.dir)
	assert.Equal(t, dir, s.vars.Get("OLDPWD"))
	assert.Equal(t, s.dir, s.vars.Get("PWD"))

	r := run(s, "", "cd", "-")
	assert.Equal(t, 0, r.status)
	assert.Equal(t, dir+"\n", r.stdout)
	assert.Equal(t, dir, s.dir)

	r = run(s, "", "cd", "file")
	assert.Equal(t, 1, r.status)
	assert.Equal(t, "cd: file: not a directory\n", r.stderr)

	r = run(s, "", "cd", "nope")
	assert.Equal(t, "cd: nope: no such file or directory\n", r.stderr)

	r = run(s, "", "cd", "a", "b")
	assert.Equal(t, "cd: too many arguments\n", r.stderr)

	r = run(s, "", "pwd")
	assert.Equal(t, dir+"\n", r.stdout)

	r = run(s, "", "pwd", "-z")
	assert.Equal(t, 2, r.status)
	assert.Contains(t, r.stderr, "usage: pwd [-L|-P]")
}

func TestVariableBuiltins(t *testing.T) {
	s := newFakeShell()

	assert.Equal(t, 0, run(s, "", "export", "GREETING=hello world").status)
	assert.True(t, s.vars.IsExported("GREETING"))
	r := run(s, "", "export", "-p")
	assert.Contains(t, r.stdout, "export GREETING='hello world'\n")
	assert.Contains(t, r.stdout, "export HOME=/home/gosh\n")

	assert.Equal(t, 0, run(s, "", "readonly", "CONST=1").status)
	r = run(s, "", "unset", "CONST")
	assert.Equal(t, 1, r.status)
	assert.Equal(t, "unset: CONST: readonly variable\n", r.stderr)
	r = run(s, "", "readonly", "1bad")
	assert.Equal(t, "readonly: 1bad: not a valid identifier\n", r.stderr)

	require.NoError(t, s.vars.SetArray("arr", []string{"a", "b", "c"}))
	run(s, "", "unset", "arr[1]")
	_, ok := s.vars.Element("arr", 1)
	assert.False(t, ok)

	s.funcs["greet"] = true
	run(s, "", "unset", "greet")
	assert.False(t, s.funcs["greet"])
	s.funcs["greet"] = true
	run(s, "", "unset", "-v", "greet")
	assert.True(t, s.funcs["greet"])
	run(s, "", "unset", "-f", "greet")
	assert.False(t, s.funcs["greet"])

	s.vars.SetArgs([]string{"1", "2", "3"})
	assert.Equal(t, 0, run(s, "", "shift", "2").status)
	assert.Equal(t, []string{"3"}, s.vars.Args())
	assert.Equal(t, 1, run(s, "", "shift", "5").status)

	s.vars.PushScope(nil)
	require.NoError(t, s.vars.Set("outer", "global"))
	run(s, "", "local", "outer=inner")
	assert.Equal(t, "inner", s.vars.Get("outer"))
	s.vars.PopScope()
	assert.Equal(t, "global", s.vars.Get("outer"))
}

func TestSet(t *testing.T) {
	s := newFakeShell()

	assert.Equal(t, 0, run(s, "", "set", "-eu").status)
	assert.True(t, s.options["errexit"])
	assert.True(t, s.options["nounset"])

	assert.Equal(t, 0, run(s, "", "set", "+e", "-o", "xtrace").status)
	assert.False(t, s.options["errexit"])
	assert.True(t, s.options["xtrace"])

	r := run(s, "", "set", "-o", "bogus")
	assert.Equal(t, 1, r.status)
	assert.Equal(t, "set: bogus: invalid option name\n", r.stderr)

	r = run(s, "", "set", "-q")
	assert.Equal(t, 2, r.status)
	assert.Equal(t, "set: -q: invalid option\n", r.stderr)

	run(s, "", "set", "--", "a", "-b")
	assert.Equal(t, []string{"a", "-b"}, s.vars.Args())
	run(s, "", "set", "-f", "x", "y")
	assert.Equal(t, []string{"x", "y"}, s.vars.Args())
	assert.True(t, s.options["noglob"])

	r = run(s, "", "set", "+o")
	assert.Equal(t, "set +o errexit\nset -o noglob\nset +o notify\nset -o nounset\nset -o xtrace\n", r.stdout)

	r = run(s, "", "set", "-o")
	assert.Contains(t, r.stdout, fmt.Sprintf("%-15s\ton\n", "noglob"))
}

func TestTypeAndHelp(t *testing.T) {
	s := newFakeShell()
	s.funcs["greet"] = true

	r := run(s, "", "type", "if", "greet", "cd", "ls", "nope")
	assert.Equal(t, 1, r.status)
	assert.Equal(t, "if is a shell keyword\ngreet is a function\ncd is a shell builtin\nls is /bin/ls\n", r.stdout)
	assert.Equal(t, "type: nope: not found\n", r.stderr)

	r = run(s, "", "type", "-t", "cd", "ls")
	assert.Equal(t, "builtin\nfile\n", r.stdout)

	r = run(s, "", "help", "cd")
	assert.Equal(t, 0, r.status)
	assert.Equal(t, "cd: cd [-L|-P] [dir]\n    Change the working directory.\n", r.stdout)

	r = run(s, "", "help", "expor")
	assert.Equal(t, 1, r.status)
	assert.Contains(t, r.stderr, `did you mean "export"?`)

	r = run(s, "", "help")
	assert.Contains(t, r.stdout, "Builtin commands:")
	assert.Contains(t, r.stdout, "Send a signal to processes or jobs.")
}

func TestJobBuiltins(t *testing.T) {
	s := newFakeShell()

	j := jobs.NewJob("sleep 10 | cat", false, nil)
	j.AddTask("sleep 10")
	j.AddTask("cat")
	s.jobs.Add(j)

	r := run(s, "", "jobs")
	assert.Equal(t, fmt.Sprintf("[1]+  %-24ssleep 10 | cat &\n", "Running"), r.stdout)

	r = run(s, "", "jobs", "%2")
	assert.Equal(t, 1, r.status)

	r = run(s, "", "bg", "%1")
	assert.Equal(t, 1, r.status)
	assert.Equal(t, "bg: job 1 already in background\n", r.stderr)

	r = run(s, "", "wait", "%9")
	assert.Equal(t, 127, r.status)

	r = run(s, "", "kill", "-l", "9", "137", "TERM")
	assert.Equal(t, "KILL\nKILL\n15\n", r.stdout)

	r = run(s, "", "kill")
	assert.Equal(t, 2, r.status)

	r = run(s, "", "kill", "-s")
	assert.Equal(t, "kill: -s: option requires an argument\n", r.stderr)

	r = run(s, "", "kill", "-BOGUS", "1")
	assert.Equal(t, 1, r.status)

	r = run(s, "", "kill", "notapid")
	assert.Equal(t, "kill: notapid: arguments must be process or job IDs\n", r.stderr)
}
