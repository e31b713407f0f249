// Package builtin implements the commands that run inside the shell
// process. They reach shell state through the Shell interface so the
// executor can hand each call its own descriptors.
package builtin

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	getopt "github.com/pborman/getopt/v2"

	"github.com/cryptexctl/gosh/v2/internal/jobs"
	"github.com/cryptexctl/gosh/v2/internal/variables"
)

// Shell is the executor state a builtin may read or change.
type Shell interface {
	Vars() *variables.Manager
	Jobs() *jobs.Manager
	Builtins() *Manager
	Interactive() bool

	Dir() string
	Chdir(dir string) error

	// Flow control requests take effect when the builtin returns.
	Exit(status int)
	Break(n int) error
	Continue(n int) error
	Return(status int) error

	Eval(c *Context, src string) int
	Source(c *Context, path string, args []string) int

	// LookupCommand reports how name would run: "keyword", "function",
	// "builtin" or "file" with its path. kind is empty when not found.
	LookupCommand(name string) (kind, path string)
	UnsetFunction(name string) bool

	SetOption(name string, on bool) error
	Option(name string) bool
	OptionNames() []string
}

// Context carries the descriptors of one builtin invocation.
type Context struct {
	Ctx    context.Context
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Shell  Shell
}

// Func runs a builtin. args[0] is the command name.
type Func func(c *Context, args []string) int

type Builtin struct {
	Name string
	// Use is a one line synopsis and Short a one line description.
	Use   string
	Short string
	Run   Func
}

type Manager struct {
	builtins map[string]Builtin
}

func New() *Manager {
	return &Manager{
		builtins: make(map[string]Builtin),
	}
}

// NewDefault returns a manager holding every standard builtin.
func NewDefault() *Manager {
	m := New()
	for _, b := range standard() {
		m.Register(b)
	}
	return m
}

func (m *Manager) Register(b Builtin) {
	m.builtins[b.Name] = b
}

func (m *Manager) Get(name string) Func {
	return m.builtins[name].Run
}

func (m *Manager) Lookup(name string) (Builtin, bool) {
	b, ok := m.builtins[name]
	return b, ok
}

// List returns the builtin names in order.
func (m *Manager) List() []string {
	var names []string
	for name := range m.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Exists(name string) bool {
	_, exists := m.builtins[name]
	return exists
}

func (m *Manager) Remove(name string) {
	delete(m.builtins, name)
}

func standard() []Builtin {
	return []Builtin{
		{Name: "cd", Use: "cd [-L|-P] [dir]", Short: "Change the working directory.", Run: cd},
		{Name: "pwd", Use: "pwd [-L|-P]", Short: "Print the working directory.", Run: pwd},
		{Name: "exit", Use: "exit [n]", Short: "Exit the shell with status n.", Run: exit},
		{Name: "export", Use: "export [-p] [name[=value] ...]", Short: "Mark variables for export to child processes.", Run: export},
		{Name: "unset", Use: "unset [-f] [-v] name ...", Short: "Remove variables or functions.", Run: unset},
		{Name: "local", Use: "local name[=value] ...", Short: "Declare function-local variables.", Run: local},
		{Name: "readonly", Use: "readonly [-p] [name[=value] ...]", Short: "Mark variables read-only.", Run: readonly},
		{Name: "set", Use: "set [-efux] [-o option] [--] [arg ...]", Short: "Set shell options and positional parameters.", Run: set},
		{Name: "shift", Use: "shift [n]", Short: "Shift positional parameters.", Run: shift},
		{Name: "jobs", Use: "jobs [-lp] [jobspec ...]", Short: "List jobs.", Run: jobsCmd},
		{Name: "fg", Use: "fg [jobspec]", Short: "Resume a job in the foreground.", Run: fg},
		{Name: "bg", Use: "bg [jobspec ...]", Short: "Resume jobs in the background.", Run: bg},
		{Name: "wait", Use: "wait [jobspec|pid ...]", Short: "Wait for jobs to finish.", Run: wait},
		{Name: "kill", Use: "kill [-s sig | -sig] pid|jobspec ... or kill -l [status]", Short: "Send a signal to processes or jobs.", Run: kill},
		{Name: "true", Use: "true", Short: "Return success.", Run: func(*Context, []string) int { return 0 }},
		{Name: "false", Use: "false", Short: "Return failure.", Run: func(*Context, []string) int { return 1 }},
		{Name: ":", Use: ": [arg ...]", Short: "Do nothing and succeed.", Run: func(*Context, []string) int { return 0 }},
		{Name: "echo", Use: "echo [-neE] [arg ...]", Short: "Write arguments to standard output.", Run: echo},
		{Name: "test", Use: "test expr", Short: "Evaluate a conditional expression.", Run: test},
		{Name: "[", Use: "[ expr ]", Short: "Evaluate a conditional expression.", Run: test},
		{Name: "read", Use: "read [-r] [-p prompt] [-a array] [name ...]", Short: "Read a line from standard input.", Run: read},
		{Name: "source", Use: "source file [arg ...]", Short: "Run commands from a file in this shell.", Run: source},
		{Name: ".", Use: ". file [arg ...]", Short: "Run commands from a file in this shell.", Run: source},
		{Name: "eval", Use: "eval [arg ...]", Short: "Run arguments as shell commands.", Run: eval},
		{Name: "break", Use: "break [n]", Short: "Exit n enclosing loops.", Run: breakCmd},
		{Name: "continue", Use: "continue [n]", Short: "Resume the next iteration of the nth enclosing loop.", Run: continueCmd},
		{Name: "return", Use: "return [n]", Short: "Return from a function or sourced file.", Run: returnCmd},
		{Name: "type", Use: "type [-t] name ...", Short: "Describe how a name would be run.", Run: typeCmd},
		{Name: "help", Use: "help [name]", Short: "Describe builtin commands.", Run: help},
	}
}

// Command parses getopt-style flags for a builtin.
type Command struct {
	Use string

	flags *getopt.Set
}

func (cmd *Command) Flags() *getopt.Set {
	if cmd.flags == nil {
		cmd.flags = getopt.New()
	}
	return cmd.flags
}

// Run parses args and calls fn with the operands. Bad flags print usage
// and return 2.
func (cmd *Command) Run(c *Context, args []string, fn func(operands []string) int) int {
	opts := cmd.Flags()
	if err := opts.Getopt(args, nil); err != nil {
		fmt.Fprintf(c.Stderr, "%s: %v\n", args[0], err)
		fmt.Fprintf(c.Stderr, "usage: %s\n", cmd.Use)
		return 2
	}
	return fn(opts.Args())
}

func errorf(c *Context, name, format string, args ...interface{}) int {
	fmt.Fprintf(c.Stderr, "%s: %s\n", name, fmt.Sprintf(format, args...))
	return 1
}

// count parses an optional numeric operand with a default.
func count(operands []string, def int) (int, error) {
	if len(operands) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(operands[0])
	if err != nil {
		return 0, fmt.Errorf("%s: numeric argument required", operands[0])
	}
	return n, nil
}
