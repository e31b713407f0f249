package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cryptexctl/gosh/v2/internal/ast"
	"github.com/cryptexctl/gosh/v2/internal/builtin"
	"github.com/cryptexctl/gosh/v2/internal/jobs"
	"github.com/cryptexctl/gosh/v2/internal/variables"
)

// simple runs one simple command: expand its words, apply redirections and
// then run a function, builtin or program, in that order of precedence.
func (e *Executor) simple(ctx context.Context, c *ast.SimpleCommand) int {
	e.expander.SubstStatus()
	args, err := e.expander.Fields(ctx, c.Args)
	if err != nil {
		return e.report(err)
	}
	return e.simpleArgs(ctx, c, args)
}

// simpleArgs finishes a simple command whose words are already expanded.
func (e *Executor) simpleArgs(ctx context.Context, c *ast.SimpleCommand, args []string) int {
	fds, files, err := e.redirect(ctx, c.Redirects, e.fds)
	if err != nil {
		return e.report(err)
	}
	defer files.Close()

	if len(args) == 0 {
		if err := e.assignAll(ctx, c.Assigns); err != nil {
			return e.report(err)
		}
		if status, ran := e.expander.SubstStatus(); ran {
			return status
		}
		return 0
	}

	env, err := e.prefixEnv(ctx, c.Assigns)
	if err != nil {
		return e.report(err)
	}
	e.trace(env, args)

	name := args[0]
	if body, ok := e.funcs[name]; ok {
		return e.withEnv(env, fds, func() int { return e.call(ctx, body, args) })
	}
	if fn := e.builtins.Get(name); fn != nil {
		return e.withEnv(env, fds, func() int { return e.runBuiltin(ctx, fn, args) })
	}

	path, err := e.lookPath(name)
	if err != nil {
		return e.report(err)
	}
	return e.external(ctx, ast.Words(c.Args), path, args, env, fds)
}

// withEnv runs fn with temporary variable assignments and descriptors.
func (e *Executor) withEnv(env []string, fds fdTable, fn func() int) int {
	type saved struct {
		v   variables.Variable
		had bool
	}
	restore := make(map[string]saved, len(env))
	for _, kv := range env {
		name, value, _ := strings.Cut(kv, "=")
		if _, done := restore[name]; !done {
			v, had := e.vars.Lookup(name)
			s := saved{had: had}
			if had {
				s.v = *v
			}
			restore[name] = s
		}
		if err := e.vars.Set(name, value); err != nil {
			e.errorf("%v", err)
		}
	}

	prev := e.fds
	e.fds = fds
	defer func() {
		e.fds = prev
		for name, s := range restore {
			switch {
			case !s.had:
				_ = e.vars.Unset(name)
			case s.v.Array:
				_ = e.vars.SetArray(name, s.v.Values)
			default:
				_ = e.vars.Set(name, s.v.Value)
			}
		}
	}()
	return fn()
}

func (e *Executor) runBuiltin(ctx context.Context, fn builtin.Func, args []string) int {
	c := &builtin.Context{
		Ctx:    ctx,
		Stdin:  e.fds[0],
		Stdout: e.fds[1],
		Stderr: e.stderr(),
		Shell:  e,
	}
	return fn(c, args)
}

// assignAll performs the assignments of a command with no words.
func (e *Executor) assignAll(ctx context.Context, assigns []*ast.Assign) error {
	for _, a := range assigns {
		if err := e.assign(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) assign(ctx context.Context, a *ast.Assign) error {
	if a.IsList {
		values, err := e.expander.Fields(ctx, a.Array)
		if err != nil {
			return err
		}
		if a.Append {
			return e.vars.AppendArray(a.Name, values)
		}
		return e.vars.SetArray(a.Name, values)
	}

	value, err := e.expander.Literal(ctx, a.Value)
	if err != nil {
		return err
	}
	if a.Index != nil {
		n, err := e.expander.Arith(ctx, a.Index)
		if err != nil {
			return err
		}
		if a.Append {
			old, _ := e.vars.Element(a.Name, int(n))
			value = old + value
		}
		return e.vars.SetElement(a.Name, int(n), value)
	}
	if a.Append {
		return e.vars.Append(a.Name, value)
	}
	return e.vars.Set(a.Name, value)
}

// prefixEnv expands the assignments written before a command name into
// NAME=value pairs.
func (e *Executor) prefixEnv(ctx context.Context, assigns []*ast.Assign) ([]string, error) {
	var env []string
	for _, a := range assigns {
		if a.IsList || a.Index != nil {
			continue
		}
		value, err := e.expander.Literal(ctx, a.Value)
		if err != nil {
			return nil, err
		}
		if a.Append {
			value = e.vars.Get(a.Name) + value
		}
		env = append(env, a.Name+"="+value)
	}
	return env, nil
}

// trace prints the command to stderr when xtrace is on, prefixed by $PS4.
func (e *Executor) trace(env, args []string) {
	if !e.options["xtrace"] {
		return
	}
	prefix := "+ "
	if ps4, ok := e.vars.Lookup("PS4"); ok {
		prefix = ps4.Scalar()
	}
	words := make([]string, 0, len(env)+len(args))
	for _, kv := range env {
		name, value, _ := strings.Cut(kv, "=")
		words = append(words, name+"="+builtin.Quote(value))
	}
	for _, arg := range args {
		words = append(words, builtin.Quote(arg))
	}
	fmt.Fprintf(e.stderr(), "%s%s\n", prefix, strings.Join(words, " "))
}

// cmd builds the exec.Cmd for an external program. Waiting is left to
// the job table, so the standard descriptors are always files.
func (e *Executor) cmd(path string, args, env []string, fds fdTable) *exec.Cmd {
	cmd := &exec.Cmd{
		Path:       path,
		Args:       args,
		Env:        append(e.vars.Environ(), env...),
		Dir:        e.dir,
		Stdin:      fds[0],
		Stdout:     fds[1],
		Stderr:     fds[2],
		ExtraFiles: fds.extra(),
	}
	// A nil *os.File in an io.Reader would not read as "closed".
	if fds[0] == nil {
		cmd.Stdin = nil
	}
	if fds[1] == nil {
		cmd.Stdout = nil
	}
	if fds[2] == nil {
		cmd.Stderr = nil
	}
	return cmd
}

// external runs a program as a one-process foreground job. text is the
// command as written, which is how the job table shows it.
func (e *Executor) external(ctx context.Context, text, path string, args, env []string, fds fdTable) int {
	g := e.newGroup(true)
	cmd := e.cmd(path, args, env, fds)
	if err := g.start(cmd); err != nil {
		se := &SpawnError{Op: args[0], Err: unwrapExec(err)}
		e.errorf("%v", se)
		return se.Status()
	}
	e.Log.Printf("started %d: %s%s", cmd.Process.Pid, strings.Join(args, " "), fds)

	j := jobs.NewJob(text, true, nil)
	j.AddProcess(cmd.Process.Pid, strings.Join(args, " "))
	j.Pgid = g.leader()
	return e.waitForeground(ctx, j, g)
}

// waitForeground waits for a job that holds the terminal and reports it
// if it stopped.
func (e *Executor) waitForeground(ctx context.Context, j *jobs.Job, g *group) int {
	status, err := e.jobs.Wait(ctx, j, true)
	if j.Pgid == 0 && g.leader() != 0 && g.owned {
		// A process group formed only after the wait started.
		e.jobs.Reclaim()
	}
	if err != nil {
		e.Log.Printf("wait %q: %v", j.Command, err)
		if ctx.Err() != nil && status == 0 {
			status = 130
		}
	}
	if j.State == jobs.Stopped {
		fmt.Fprintf(e.stderr(), "\n%s\n", e.jobs.Line(j, false))
	}
	return status
}

func unwrapExec(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}

// lastPid is the pid $! reports for j.
func lastPid(j *jobs.Job) int {
	pids := j.Pids()
	if len(pids) == 0 {
		return 0
	}
	return pids[len(pids)-1]
}
