package jobs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal hands the controlling terminal between process groups.
type Terminal interface {
	SetForeground(pgid int) error
	Foreground() (int, error)
	// Save records the terminal modes the shell wants back after a job
	// releases the terminal; Restore reinstates them.
	Save() error
	Restore() error
}

// TTY is the controlling terminal of an interactive shell.
type TTY struct {
	fd    int
	state *term.State
}

// OpenTTY returns the terminal behind f, or an error when f is not one.
func OpenTTY(f *os.File) (*TTY, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s: not a terminal", f.Name())
	}
	return &TTY{fd: fd}, nil
}

// Fd is the descriptor children receive as their controlling terminal.
func (t *TTY) Fd() int {
	return t.fd
}

func (t *TTY) SetForeground(pgid int) error {
	return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
}

func (t *TTY) Foreground() (int, error) {
	return unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
}

func (t *TTY) Save() error {
	state, err := term.GetState(t.fd)
	if err != nil {
		return err
	}
	t.state = state
	return nil
}

func (t *TTY) Restore() error {
	if t.state == nil {
		return nil
	}
	return term.Restore(t.fd, t.state)
}

// Claim puts the shell in its own process group and takes the terminal.
// A shell started in the background stops itself until it is brought to
// the foreground.
func (t *TTY) Claim() (int, error) {
	pgid := unix.Getpgrp()
	for {
		fg, err := t.Foreground()
		if err != nil {
			return 0, err
		}
		if fg == pgid {
			break
		}
		if err := unix.Kill(-pgid, unix.SIGTTIN); err != nil {
			return 0, err
		}
	}
	pid := unix.Getpid()
	if pgid != pid {
		if err := unix.Setpgid(0, 0); err != nil {
			return 0, err
		}
		pgid = pid
	}
	if err := t.SetForeground(pgid); err != nil {
		return 0, err
	}
	return pgid, t.Save()
}
