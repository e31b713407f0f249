package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cryptexctl/gosh/v2/internal/jobs"
)

func jobsCmd(c *Context, args []string) int {
	cmd := &Command{Use: "jobs [-lp] [jobspec ...]"}
	long := cmd.Flags().Bool('l', "list process ids")
	pidsOnly := cmd.Flags().Bool('p', "list process group leaders only")

	return cmd.Run(c, args, func(operands []string) int {
		m := c.Shell.Jobs()
		var list []*jobs.Job
		if len(operands) == 0 {
			for _, j := range m.Reap() {
				if j.State == jobs.Done {
					list = append(list, j)
				}
			}
			list = append(list, m.List()...)
		} else {
			for _, spec := range operands {
				j, err := m.Find(spec)
				if err != nil {
					return errorf(c, "jobs", "%v", err)
				}
				list = append(list, j)
			}
		}
		for _, j := range list {
			if *pidsOnly {
				if j.Pgid > 0 {
					fmt.Fprintln(c.Stdout, j.Pgid)
				}
				continue
			}
			fmt.Fprintln(c.Stdout, m.Line(j, *long))
		}
		return 0
	})
}

func fg(c *Context, args []string) int {
	m := c.Shell.Jobs()
	spec := ""
	if len(args) > 1 {
		spec = args[1]
	}
	j, err := m.Find(spec)
	if err != nil {
		return errorf(c, "fg", "%v", err)
	}
	fmt.Fprintln(c.Stdout, j.Command)
	status, err := m.Continue(c.Ctx, j, true)
	if err != nil {
		errorf(c, "fg", "%v", err)
	}
	if j.State == jobs.Stopped {
		fmt.Fprintln(c.Stderr)
		fmt.Fprintln(c.Stderr, m.Line(j, false))
	}
	return status
}

func bg(c *Context, args []string) int {
	m := c.Shell.Jobs()
	specs := args[1:]
	if len(specs) == 0 {
		specs = []string{""}
	}
	status := 0
	for _, spec := range specs {
		j, err := m.Find(spec)
		if err != nil {
			status = errorf(c, "bg", "%v", err)
			continue
		}
		if j.State == jobs.Running {
			status = errorf(c, "bg", "job %d already in background", j.ID)
			continue
		}
		if _, err := m.Continue(c.Ctx, j, false); err != nil {
			status = errorf(c, "bg", "%v", err)
			continue
		}
		fmt.Fprintf(c.Stdout, "[%d]+ %s &\n", j.ID, j.Command)
	}
	return status
}

// wait blocks on the named jobs, or on every job. The status is that of
// the last operand; an unknown one yields 127.
func wait(c *Context, args []string) int {
	m := c.Shell.Jobs()
	if len(args) == 1 {
		for _, j := range m.List() {
			if j.State == jobs.Stopped {
				continue
			}
			if _, err := m.Wait(c.Ctx, j, false); err != nil {
				return 128 + int(unix.SIGINT)
			}
		}
		return 0
	}

	status := 0
	for _, spec := range args[1:] {
		var j *jobs.Job
		if pid, err := strconv.Atoi(spec); err == nil && !strings.HasPrefix(spec, "%") {
			j = m.GetByPID(pid)
			if reaped, ok := m.Reaped(pid); ok && j == nil {
				status = reaped
				continue
			}
		} else {
			j, _ = m.Find(spec)
		}
		if j == nil {
			errorf(c, "wait", "%s: no such job", spec)
			status = 127
			continue
		}
		var err error
		if status, err = m.Wait(c.Ctx, j, false); err != nil {
			return 128 + int(unix.SIGINT)
		}
	}
	return status
}

func kill(c *Context, args []string) int {
	sig := unix.SIGTERM
	args = args[1:]

options:
	for len(args) > 0 && strings.HasPrefix(args[0], "-") && args[0] != "-" {
		arg := args[0]
		args = args[1:]
		switch arg {
		case "--":
			break options
		case "-l", "-L":
			return listSignals(c, args)
		case "-s", "-n":
			if len(args) == 0 {
				return errorf(c, "kill", "%s: option requires an argument", arg)
			}
			s, err := jobs.ParseSignal(args[0])
			if err != nil {
				return errorf(c, "kill", "%v", err)
			}
			sig, args = s, args[1:]
		default:
			s, err := jobs.ParseSignal(arg[1:])
			if err != nil {
				return errorf(c, "kill", "%v", err)
			}
			sig = s
		}
	}

	if len(args) == 0 {
		fmt.Fprintln(c.Stderr, "kill: usage: kill [-s sigspec | -sigspec] pid | jobspec ... or kill -l [sigspec]")
		return 2
	}
	m := c.Shell.Jobs()
	status := 0
	for _, target := range args {
		if strings.HasPrefix(target, "%") {
			j, err := m.Find(target)
			if err != nil {
				status = errorf(c, "kill", "%v", err)
				continue
			}
			if err := m.Signal(j, sig); err != nil {
				status = errorf(c, "kill", "%v", err)
			}
			continue
		}
		pid, err := strconv.Atoi(target)
		if err != nil {
			status = errorf(c, "kill", "%s: arguments must be process or job IDs", target)
			continue
		}
		if err := unix.Kill(pid, sig); err != nil {
			status = errorf(c, "kill", "(%d) - %v", pid, err)
		}
	}
	return status
}

func listSignals(c *Context, args []string) int {
	if len(args) == 0 {
		var names []string
		for sig := syscall.Signal(1); sig < 32; sig++ {
			if name := unix.SignalName(sig); name != "" {
				names = append(names, fmt.Sprintf("%2d) %s", int(sig), name))
			}
		}
		for i := 0; i < len(names); i += 5 {
			end := i + 5
			if end > len(names) {
				end = len(names)
			}
			fmt.Fprintln(c.Stdout, strings.Join(names[i:end], "\t"))
		}
		return 0
	}
	status := 0
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			if n > 128 {
				n -= 128
			}
			fmt.Fprintln(c.Stdout, jobs.SignalName(syscall.Signal(n)))
			continue
		}
		sig, err := jobs.ParseSignal(arg)
		if err != nil {
			status = errorf(c, "kill", "%v", err)
			continue
		}
		fmt.Fprintln(c.Stdout, int(sig))
	}
	return status
}
