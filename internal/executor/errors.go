package executor

import (
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// ResolutionError means a command name could not be turned into something
// runnable.
type ResolutionError struct {
	Name string
	// Suggestion is a similarly named command, if one exists.
	Suggestion string
	Err        error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Name, e.Err)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

var (
	errNotFound   = errors.New("command not found")
	errIsDir      = errors.New("is a directory")
	errNoSuchFile = errors.New("no such file or directory")
)

// Status is 127 for a missing command and 126 for one that exists but
// cannot run.
func (e *ResolutionError) Status() int {
	if errors.Is(e.Err, errNotFound) || errors.Is(e.Err, errNoSuchFile) {
		return 127
	}
	return 126
}

// SpawnError is an operating system failure to set up a process, pipe or
// redirection.
type SpawnError struct {
	Op  string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

func (e *SpawnError) Status() int {
	switch {
	case errors.Is(e.Err, fs.ErrNotExist):
		return 127
	case errors.Is(e.Err, fs.ErrPermission), errors.Is(e.Err, unix.ENOEXEC):
		return 126
	}
	return 1
}
