package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/cryptexctl/gosh/v2/internal/ast"
	"github.com/cryptexctl/gosh/v2/internal/jobs"
)

// group assigns the process group of one job. The first process started
// leads it and, for a foreground job, takes the terminal on its way in.
type group struct {
	mu   sync.Mutex
	tty  int
	fg   bool
	pgid int
	// owned is set when this group took the terminal from the shell.
	owned bool
}

// newGroup returns the group for a new job. Stages of a pipeline share
// their pipeline's group; without job control every process stays in the
// shell's group.
func (e *Executor) newGroup(fg bool) *group {
	if e.group != nil {
		return e.group
	}
	tty := -1
	if t, ok := e.jobs.TTY.(interface{ Fd() int }); ok {
		tty = t.Fd()
	}
	return &group{tty: tty, fg: fg, owned: tty >= 0 && fg}
}

func (g *group) start(cmd *exec.Cmd) error {
	if g.tty < 0 {
		return cmd.Start()
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	attr := &syscall.SysProcAttr{Setpgid: true, Pgid: g.pgid}
	if g.pgid == 0 && g.fg {
		attr.Foreground = true
		attr.Ctty = g.tty
	}
	cmd.SysProcAttr = attr
	if err := cmd.Start(); err != nil {
		return err
	}
	if g.pgid == 0 {
		g.pgid = cmd.Process.Pid
	}
	return nil
}

func (g *group) leader() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pgid
}

func (e *Executor) pipeline(ctx context.Context, p *ast.Pipeline) int {
	if p.Negate {
		e.noErrExit++
		defer func() { e.noErrExit-- }()
	}
	var status int
	if len(p.Commands) == 1 {
		status = e.command(ctx, p.Commands[0])
	} else {
		status = e.runJob(ctx, p.Commands, p.Text, false)
	}
	if p.Negate {
		if status == 0 {
			return 1
		}
		return 0
	}
	return status
}

// background starts st as a job and returns at once.
func (e *Executor) background(ctx context.Context, st *ast.Statement) int {
	cmds := []*ast.Command{st.Command}
	if c := st.Command; c.Type == ast.CommandPipeline && !c.Pipeline.Negate {
		cmds = c.Pipeline.Commands
	}
	e.runJob(ctx, cmds, st.Text, true)
	return 0
}

// runJob starts cmds as the stages of one job, connected by pipes.
// Programs run as processes in the job's group; every other stage runs in
// a forked executor on its own goroutine. A foreground job is waited for;
// a background one enters the job table.
func (e *Executor) runJob(ctx context.Context, cmds []*ast.Command, text string, bg bool) int {
	g := e.newGroup(!bg)
	parent := ctx
	if bg {
		parent = context.Background()
	}
	stageCtx, cancel := context.WithCancel(parent)
	j := jobs.NewJob(text, !bg, cancel)

	var stages errgroup.Group
	in := e.fds[0]
	var inEnd *os.File
	if bg && !e.jobs.Interactive() {
		if devnull, err := os.Open(os.DevNull); err == nil {
			in, inEnd = devnull, devnull
		}
	}

	var spawnErr error
	for i, c := range cmds {
		fds := e.fds.clone()
		fds[0] = in
		var ends opened
		if inEnd != nil {
			ends = append(ends, inEnd)
		}
		in, inEnd = nil, nil

		if i < len(cmds)-1 {
			r, w, err := os.Pipe()
			if err != nil {
				ends.Close()
				spawnErr = &SpawnError{Op: "pipe", Err: err}
				break
			}
			fds[1] = w
			ends = append(ends, w)
			in, inEnd = r, r
		}

		if err := e.startStage(stageCtx, j, g, &stages, c, fds, ends); err != nil {
			spawnErr = err
			break
		}
	}

	if spawnErr != nil {
		if inEnd != nil {
			inEnd.Close()
		}
		return e.teardown(j, spawnErr)
	}

	go func() {
		if err := stages.Wait(); err != nil {
			e.Log.Printf("job %q: %v", text, err)
		}
		cancel()
	}()

	j.Pgid = g.leader()
	if bg {
		e.jobs.Add(j)
		e.vars.LastBackground = lastPid(j)
		if e.jobs.Interactive() {
			fmt.Fprintf(e.stderr(), "[%d] %d\n", j.ID, e.vars.LastBackground)
		}
		return 0
	}
	return e.waitForeground(ctx, j, g)
}

// teardown stops the part of a job that did start after a later stage
// failed to.
func (e *Executor) teardown(j *jobs.Job, err error) int {
	e.errorf("%v", err)
	if err := e.jobs.Signal(j, unix.SIGTERM); err != nil {
		e.Log.Printf("teardown: %v", err)
	}
	if _, err := e.jobs.Wait(context.Background(), j, false); err != nil {
		e.Log.Printf("teardown: %v", err)
	}
	if se, ok := err.(*SpawnError); ok {
		return se.Status()
	}
	return 1
}

// startStage starts one pipeline stage. ends are the pipe ends only this
// stage uses; they are closed once the stage no longer needs them.
func (e *Executor) startStage(ctx context.Context, j *jobs.Job, g *group, stages *errgroup.Group, c *ast.Command, fds fdTable, ends opened) error {
	f := e.fork()
	f.fds = fds
	f.group = g

	run := func() int { return f.command(ctx, c) }
	argv := commandText(c)
	if c.Type == ast.CommandSimple {
		args, err := f.expander.Fields(ctx, c.Simple.Args)
		if err != nil {
			ends.Close()
			finished(j, argv, f.report(err))
			return nil
		}
		if len(args) > 0 {
			argv = strings.Join(args, " ")
			if f.funcs[args[0]] == nil && !f.builtins.Exists(args[0]) {
				defer ends.Close()
				return f.startProgram(ctx, j, g, c.Simple, args)
			}
		}
		run = func() int { return f.simpleArgs(ctx, c.Simple, args) }
	}

	p := j.AddTask(argv)
	stages.Go(func() error {
		defer ends.Close()
		status := run()
		if code, ok := f.Exited(); ok {
			status = code
		}
		p.Finish(status)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", argv, err)
		}
		return nil
	})
	return nil
}

// startProgram starts an external stage. Failures before the process
// exists end only this stage; a failed start is returned.
func (e *Executor) startProgram(ctx context.Context, j *jobs.Job, g *group, c *ast.SimpleCommand, args []string) error {
	argv := strings.Join(args, " ")
	fds, files, err := e.redirect(ctx, c.Redirects, e.fds)
	if err != nil {
		finished(j, argv, e.report(err))
		return nil
	}
	defer files.Close()

	env, err := e.prefixEnv(ctx, c.Assigns)
	if err != nil {
		finished(j, argv, e.report(err))
		return nil
	}
	e.trace(env, args)
	path, err := e.lookPath(args[0])
	if err != nil {
		finished(j, argv, e.report(err))
		return nil
	}

	cmd := e.cmd(path, args, env, fds)
	if err := g.start(cmd); err != nil {
		return &SpawnError{Op: args[0], Err: unwrapExec(err)}
	}
	e.Log.Printf("started %d in group %d: %s%s", cmd.Process.Pid, g.leader(), argv, fds)
	j.AddProcess(cmd.Process.Pid, argv)
	return nil
}

// finished records a stage that ended before it could start.
func finished(j *jobs.Job, argv string, status int) {
	j.AddTask(argv).Finish(status)
}

func commandText(c *ast.Command) string {
	switch c.Type {
	case ast.CommandSimple:
		return ast.Words(c.Simple.Args)
	case ast.CommandPipeline:
		return c.Pipeline.Text
	}
	return c.Type.String()
}

// subst runs a command substitution in a forked executor and returns what
// it wrote to its standard output.
func (e *Executor) subst(ctx context.Context, script *ast.Script) (string, int, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", 1, &SpawnError{Op: "command substitution", Err: err}
	}
	f := e.fork()
	f.fds[1] = w

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(&out, r)
		r.Close()
		done <- err
	}()

	status := f.Run(ctx, script)
	if code, ok := f.Exited(); ok {
		status = code
	}
	w.Close()
	// out is complete only once the copy has drained the pipe.
	err = <-done
	return out.String(), status, err
}
