// Package executor runs parsed scripts. It expands words, wires pipes and
// redirections, starts processes in job process groups and keeps the job
// table current.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cryptexctl/gosh/v2/internal/ast"
	"github.com/cryptexctl/gosh/v2/internal/builtin"
	"github.com/cryptexctl/gosh/v2/internal/expand"
	"github.com/cryptexctl/gosh/v2/internal/jobs"
	"github.com/cryptexctl/gosh/v2/internal/parser"
	"github.com/cryptexctl/gosh/v2/internal/variables"
)

// DefaultPath is searched when $PATH is unset.
const DefaultPath = "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"

const maxCallDepth = 1000

type flowKind int

const (
	flowNone flowKind = iota
	flowBreak
	flowContinue
	flowReturn
	flowExit
	// flowAbort ends the statement list a word failed to expand in.
	flowAbort
)

// flow is a pending break, continue, return, exit or abort. It unwinds the
// statements above it until something consumes it.
type flow struct {
	kind flowKind
	n    int
}

// options maps option names to the letter shown in $-.
var options = map[string]byte{
	"errexit":  'e',
	"noglob":   'f',
	"nounset":  'u',
	"xtrace":   'x',
	"notify":   'b',
	"nullglob": 0,
	"failglob": 0,
}

type Executor struct {
	vars     *variables.Manager
	builtins *builtin.Manager
	jobs     *jobs.Manager
	expander *expand.Expander

	funcs   map[string]*ast.Command
	options map[string]bool
	dir     string
	fds     fdTable

	// Path is searched when $PATH is unset.
	Path string
	Log  *log.Logger

	// group is the process group of the pipeline a forked executor runs
	// in; nil at the top level.
	group  *group
	forked bool

	loops     int
	calls     int
	noErrExit int
	flow      flow
	exitCode  int
}

func New(vars *variables.Manager, builtins *builtin.Manager, jm *jobs.Manager) *Executor {
	dir, err := os.Getwd()
	if err != nil {
		dir = vars.Get("PWD")
	}
	e := &Executor{
		vars:     vars,
		builtins: builtins,
		jobs:     jm,
		funcs:    make(map[string]*ast.Command),
		options:  make(map[string]bool),
		dir:      dir,
		fds:      fdTable{0: os.Stdin, 1: os.Stdout, 2: os.Stderr},
		Path:     DefaultPath,
		Log:      log.New(io.Discard, "", 0),
	}
	e.expander = expand.New(vars)
	e.bindExpander()
	e.updateFlags()
	return e
}

func (e *Executor) bindExpander() {
	e.expander.Vars = e.vars
	e.expander.Dir = e.Dir
	e.expander.Subst = e.subst
	e.expander.Warn = func(msg string) { e.errorf("%s", msg) }
}

// SetLogger sends debug output of the executor, its expander and its job
// table to l.
func (e *Executor) SetLogger(l *log.Logger) {
	e.Log = l
	e.expander.Log = l
	e.jobs.Log = l
}

// SetStdio replaces descriptors 0, 1 and 2.
func (e *Executor) SetStdio(stdin, stdout, stderr *os.File) {
	e.fds[0], e.fds[1], e.fds[2] = stdin, stdout, stderr
}

// SetIFS sets the field separators used while $IFS is unset.
func (e *Executor) SetIFS(ifs string) {
	e.expander.IFS = ifs
}

// SetNoMatch selects the glob no-match policy.
func (e *Executor) SetNoMatch(n expand.NoMatch) {
	e.options["failglob"] = n == expand.NoMatchFail
	e.options["nullglob"] = n == expand.NoMatchNull
	e.updateFlags()
}

// Status is the exit status of the last command.
func (e *Executor) Status() int {
	return e.vars.Status
}

// Exited reports whether exit ran, and its status.
func (e *Executor) Exited() (int, bool) {
	return e.exitCode, e.flow.kind == flowExit
}

func (e *Executor) stderr() io.Writer {
	if f := e.fds[2]; f != nil {
		return f
	}
	return io.Discard
}

func (e *Executor) errorf(format string, args ...interface{}) {
	fmt.Fprintf(e.stderr(), "gosh: %s\n", fmt.Sprintf(format, args...))
}

// report prints err and returns the status it stands for. An expansion
// error also abandons the statement list being run.
func (e *Executor) report(err error) int {
	e.errorf("%v", err)
	var re *ResolutionError
	var xe *expand.ExpansionError
	switch {
	case errors.As(err, &xe):
		if e.flow.kind == flowNone {
			e.flow = flow{kind: flowAbort}
		}
	case errors.As(err, &re):
		return re.Status()
	case errors.Is(err, context.Canceled):
		return 130
	}
	return 1
}

// RunString parses src and runs it.
func (e *Executor) RunString(ctx context.Context, src string) (int, error) {
	script, err := parser.New().Parse(src)
	if err != nil {
		return 2, err
	}
	return e.Run(ctx, script), nil
}

// Run executes script and returns the status of its last statement. A
// failed expansion abandons the rest of script but not the executor.
func (e *Executor) Run(ctx context.Context, script *ast.Script) int {
	status := e.run(ctx, script)
	if e.flow.kind == flowAbort {
		e.flow = flow{}
	}
	return status
}

func (e *Executor) run(ctx context.Context, script *ast.Script) int {
	if script == nil {
		return e.vars.Status
	}
	for _, st := range script.Statements {
		if e.flow.kind != flowNone {
			break
		}
		if ctx.Err() != nil {
			e.vars.Status = 130
			break
		}
		e.statement(ctx, st)
	}
	return e.vars.Status
}

func (e *Executor) statement(ctx context.Context, st *ast.Statement) {
	if st.Background {
		e.vars.Status = e.background(ctx, st)
		return
	}
	e.vars.Status = e.command(ctx, st.Command)
}

// checkErrexit ends the shell when errexit is on and status failed
// outside a condition.
func (e *Executor) checkErrexit(status int) {
	if status != 0 && e.options["errexit"] && e.noErrExit == 0 && e.flow.kind == flowNone {
		e.exit(status)
	}
}

func (e *Executor) exit(status int) {
	e.flow = flow{kind: flowExit}
	e.exitCode = status
}

func (e *Executor) command(ctx context.Context, c *ast.Command) int {
	if c == nil {
		return 0
	}
	if c.Type != ast.CommandSimple && len(c.Redirects) > 0 {
		fds, files, err := e.redirect(ctx, c.Redirects, e.fds)
		if err != nil {
			return e.report(err)
		}
		saved := e.fds
		e.fds = fds
		defer func() {
			e.fds = saved
			files.Close()
		}()
	}

	var status int
	switch c.Type {
	case ast.CommandSimple:
		status = e.simple(ctx, c.Simple)
		e.checkErrexit(status)
	case ast.CommandPipeline:
		status = e.pipeline(ctx, c.Pipeline)
		if !c.Pipeline.Negate {
			e.checkErrexit(status)
		}
	case ast.CommandList:
		status = e.list(ctx, c.List)
	case ast.CommandIf:
		status = e.ifCommand(ctx, c.If)
	case ast.CommandFor:
		status = e.forCommand(ctx, c.For)
	case ast.CommandWhile:
		status = e.whileCommand(ctx, c.While)
	case ast.CommandCase:
		status = e.caseCommand(ctx, c.Case)
	case ast.CommandFunction:
		e.funcs[c.Function.Name] = c.Function.Body
	case ast.CommandSubshell:
		status = e.subshell(ctx, c.Subshell.Script)
		e.checkErrexit(status)
	case ast.CommandGroup:
		status = e.run(ctx, c.Group.Script)
	case ast.CommandArith:
		status = e.arith(ctx, c.Arith)
		e.checkErrexit(status)
	default:
		e.errorf("unsupported command type %s", c.Type)
		status = 1
	}
	return status
}

// list runs an && / || chain. Only the last command that runs counts for
// errexit.
func (e *Executor) list(ctx context.Context, l *ast.List) int {
	status := 0
	last := len(l.Commands) - 1
	for i, c := range l.Commands {
		if i > 0 {
			op := l.Operators[i-1]
			if op == ast.ListAnd && status != 0 || op == ast.ListOr && status == 0 {
				continue
			}
		}
		if i < last {
			e.noErrExit++
		}
		status = e.command(ctx, c)
		if i < last {
			e.noErrExit--
		}
		e.vars.Status = status
		if e.flow.kind != flowNone {
			break
		}
	}
	return status
}

func (e *Executor) condition(ctx context.Context, script *ast.Script) int {
	e.noErrExit++
	defer func() { e.noErrExit-- }()
	return e.run(ctx, script)
}

func (e *Executor) ifCommand(ctx context.Context, c *ast.IfCommand) int {
	for _, clause := range c.Clauses {
		cond := e.condition(ctx, clause.Condition)
		if e.flow.kind != flowNone {
			return cond
		}
		if cond == 0 {
			return e.run(ctx, clause.Body)
		}
	}
	if c.Else != nil {
		return e.run(ctx, c.Else)
	}
	return 0
}

// loopBody runs one iteration and reports whether the loop must stop.
func (e *Executor) loopBody(ctx context.Context, body *ast.Script) (int, bool) {
	status := e.run(ctx, body)
	switch e.flow.kind {
	case flowBreak:
		if e.flow.n--; e.flow.n == 0 {
			e.flow = flow{}
		}
		return status, true
	case flowContinue:
		if e.flow.n--; e.flow.n > 0 {
			return status, true
		}
		e.flow = flow{}
	case flowReturn, flowExit, flowAbort:
		return status, true
	}
	return status, ctx.Err() != nil
}

func (e *Executor) whileCommand(ctx context.Context, c *ast.WhileCommand) int {
	e.loops++
	defer func() { e.loops-- }()

	status := 0
	for ctx.Err() == nil {
		cond := e.condition(ctx, c.Condition)
		if e.flow.kind != flowNone {
			break
		}
		if (cond == 0) == c.Until {
			break
		}
		var stop bool
		if status, stop = e.loopBody(ctx, c.Body); stop {
			break
		}
	}
	return status
}

func (e *Executor) forCommand(ctx context.Context, c *ast.ForCommand) int {
	values := e.vars.Args()
	if c.InPresent {
		var err error
		if values, err = e.expander.Fields(ctx, c.Values); err != nil {
			return e.report(err)
		}
	}

	e.loops++
	defer func() { e.loops-- }()

	status := 0
	for _, v := range values {
		if err := e.vars.Set(c.Variable, v); err != nil {
			return e.report(err)
		}
		var stop bool
		if status, stop = e.loopBody(ctx, c.Body); stop {
			break
		}
	}
	return status
}

func (e *Executor) caseCommand(ctx context.Context, c *ast.CaseCommand) int {
	word, err := e.expander.Literal(ctx, c.Word)
	if err != nil {
		return e.report(err)
	}
	for _, item := range c.Items {
		for _, p := range item.Patterns {
			pat, err := e.expander.Pattern(ctx, p)
			if err != nil {
				return e.report(err)
			}
			if expand.Match(pat, word) {
				return e.run(ctx, item.Body)
			}
		}
	}
	return 0
}

func (e *Executor) arith(ctx context.Context, c *ast.ArithCommand) int {
	n, err := e.expander.Arith(ctx, c.Expr)
	if err != nil {
		return e.report(err)
	}
	if n == 0 {
		return 1
	}
	return 0
}

func (e *Executor) subshell(ctx context.Context, script *ast.Script) int {
	f := e.fork()
	status := f.Run(ctx, script)
	if code, ok := f.Exited(); ok {
		return code
	}
	return status
}

// call runs a shell function with its own positional parameters.
func (e *Executor) call(ctx context.Context, body *ast.Command, args []string) int {
	if e.calls >= maxCallDepth {
		e.errorf("%s: maximum function nesting level exceeded (%d)", args[0], maxCallDepth)
		return 1
	}
	e.vars.PushScope(args[1:])
	e.calls++
	defer func() {
		e.calls--
		e.vars.PopScope()
	}()

	status := e.command(ctx, body)
	if e.flow.kind == flowReturn {
		status = e.flow.n
		e.flow = flow{}
	}
	return status
}

// fork returns an executor for a subshell, pipeline stage or command
// substitution. It starts from a copy of every piece of state and shares
// nothing that it could change.
func (e *Executor) fork() *Executor {
	f := *e
	f.vars = e.vars.Clone()
	f.jobs = e.jobs.Fork()
	f.fds = e.fds.clone()
	f.funcs = make(map[string]*ast.Command, len(e.funcs))
	for name, body := range e.funcs {
		f.funcs[name] = body
	}
	f.options = make(map[string]bool, len(e.options))
	for name, on := range e.options {
		f.options[name] = on
	}
	x := *e.expander
	f.expander = &x
	f.bindExpander()
	f.forked = true
	f.noErrExit = 0
	f.flow = flow{}
	return &f
}

var _ builtin.Shell = (*Executor)(nil)

func (e *Executor) Vars() *variables.Manager { return e.vars }
func (e *Executor) Jobs() *jobs.Manager      { return e.jobs }
func (e *Executor) Builtins() *builtin.Manager {
	return e.builtins
}

// Interactive reports whether job control is on.
func (e *Executor) Interactive() bool {
	return e.jobs.Interactive()
}

func (e *Executor) Dir() string {
	return e.dir
}

// Chdir changes the working directory of this execution context. The
// process directory follows only for the top-level executor.
func (e *Executor) Chdir(dir string) error {
	if !e.forked {
		if err := os.Chdir(dir); err != nil {
			return err
		}
	}
	e.dir = dir
	return nil
}

func (e *Executor) Exit(status int) {
	e.exit(status)
}

func (e *Executor) Break(n int) error {
	if e.loops == 0 {
		return errors.New("only meaningful in a `for', `while', or `until' loop")
	}
	if n > e.loops {
		n = e.loops
	}
	e.flow = flow{kind: flowBreak, n: n}
	return nil
}

func (e *Executor) Continue(n int) error {
	if e.loops == 0 {
		return errors.New("only meaningful in a `for', `while', or `until' loop")
	}
	if n > e.loops {
		n = e.loops
	}
	e.flow = flow{kind: flowContinue, n: n}
	return nil
}

func (e *Executor) Return(status int) error {
	if e.calls == 0 {
		return errors.New("can only `return' from a function or sourced script")
	}
	e.flow = flow{kind: flowReturn, n: status}
	return nil
}

// Eval parses and runs src in the current context.
func (e *Executor) Eval(c *builtin.Context, src string) int {
	script, err := parser.New().Parse(src)
	if err != nil {
		fmt.Fprintf(c.Stderr, "eval: %v\n", err)
		return 2
	}
	return e.run(c.Ctx, script)
}

// Source runs the commands of a file in the current context. args, when
// given, replace the positional parameters while it runs.
func (e *Executor) Source(c *builtin.Context, path string, args []string) int {
	resolved := path
	if !strings.Contains(path, "/") {
		if found, err := e.findSource(path); err == nil {
			resolved = found
		}
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(e.dir, resolved)
	}
	src, err := os.ReadFile(resolved)
	if err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		fmt.Fprintf(c.Stderr, "%s: %v\n", path, err)
		return 1
	}
	script, err := parser.New().Parse(string(src))
	if err != nil {
		fmt.Fprintf(c.Stderr, "%s: %v\n", path, err)
		return 2
	}

	if len(args) > 0 {
		saved := e.vars.Args()
		e.vars.SetArgs(args)
		defer e.vars.SetArgs(saved)
	}
	e.calls++
	defer func() { e.calls-- }()

	status := e.run(c.Ctx, script)
	if e.flow.kind == flowReturn {
		status = e.flow.n
		e.flow = flow{}
	}
	return status
}

// findSource looks for a sourced file in $PATH, falling back to the
// working directory.
func (e *Executor) findSource(name string) (string, error) {
	for _, dir := range e.searchPath() {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", os.ErrNotExist
}

func (e *Executor) UnsetFunction(name string) bool {
	_, ok := e.funcs[name]
	delete(e.funcs, name)
	return ok
}

// Function returns the body of a defined function.
func (e *Executor) Function(name string) (*ast.Command, bool) {
	body, ok := e.funcs[name]
	return body, ok
}

// Functions lists the defined function names in order.
func (e *Executor) Functions() []string {
	names := make([]string, 0, len(e.funcs))
	for name := range e.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Executor) SetOption(name string, on bool) error {
	if _, ok := options[name]; !ok {
		return fmt.Errorf("%s: invalid option name", name)
	}
	e.options[name] = on
	e.updateFlags()
	return nil
}

func (e *Executor) Option(name string) bool {
	return e.options[name]
}

func (e *Executor) OptionNames() []string {
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// updateFlags mirrors the options into $- and the expander.
func (e *Executor) updateFlags() {
	var flags []byte
	for _, name := range e.OptionNames() {
		if letter := options[name]; letter != 0 && e.options[name] {
			flags = append(flags, letter)
		}
	}
	if e.jobs.Interactive() {
		flags = append(flags, 'i', 'm')
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	e.vars.Flags = string(flags)

	switch {
	case e.options["failglob"]:
		e.expander.NoMatch = expand.NoMatchFail
	case e.options["nullglob"]:
		e.expander.NoMatch = expand.NoMatchNull
	default:
		e.expander.NoMatch = expand.NoMatchLiteral
	}
}

// EnableJobControl refreshes $- after the job table gained a terminal.
func (e *Executor) EnableJobControl() {
	e.updateFlags()
}
