package builtin

import (
	"strings"
)

func exit(c *Context, args []string) int {
	status, err := count(args[1:], c.Shell.Vars().Status)
	if err != nil {
		errorf(c, "exit", "%v", err)
		status = 2
	}
	c.Shell.Exit(status & 0xff)
	return status & 0xff
}

func loopCount(c *Context, args []string) (int, bool) {
	n, err := count(args[1:], 1)
	if err != nil {
		errorf(c, args[0], "%v", err)
		return 0, false
	}
	if n < 1 {
		errorf(c, args[0], "%d: loop count out of range", n)
		return 0, false
	}
	return n, true
}

func breakCmd(c *Context, args []string) int {
	n, ok := loopCount(c, args)
	if !ok {
		return 1
	}
	if err := c.Shell.Break(n); err != nil {
		return errorf(c, "break", "%v", err)
	}
	return 0
}

func continueCmd(c *Context, args []string) int {
	n, ok := loopCount(c, args)
	if !ok {
		return 1
	}
	if err := c.Shell.Continue(n); err != nil {
		return errorf(c, "continue", "%v", err)
	}
	return 0
}

func returnCmd(c *Context, args []string) int {
	status, err := count(args[1:], c.Shell.Vars().Status)
	if err != nil {
		errorf(c, "return", "%v", err)
		status = 2
	}
	status &= 0xff
	if err := c.Shell.Return(status); err != nil {
		return errorf(c, "return", "%v", err)
	}
	return status
}

func eval(c *Context, args []string) int {
	if len(args) < 2 {
		return 0
	}
	return c.Shell.Eval(c, strings.Join(args[1:], " "))
}

func source(c *Context, args []string) int {
	if len(args) < 2 {
		errorf(c, args[0], "filename argument required")
		return 2
	}
	return c.Shell.Source(c, args[1], args[2:])
}
