package jobs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// System is the process-control surface the job table needs. Tests replace
// it with a scripted fake.
type System interface {
	// Wait is wait4(2) on a single pid.
	Wait(pid int, options int) (int, unix.WaitStatus, error)
	// Kill delivers sig to pid, or to the process group -pid.
	Kill(pid int, sig syscall.Signal) error
}

type unixSystem struct{}

// OS returns the System backed by the running kernel.
func OS() System {
	return unixSystem{}
}

func (unixSystem) Wait(pid int, options int) (int, unix.WaitStatus, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return wpid, ws, err
	}
}

func (unixSystem) Kill(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}

// SignalError is a failed signal delivery. It is reported but never fatal.
type SignalError struct {
	Pid    int
	Signal syscall.Signal
	Err    error
}

func (e *SignalError) Error() string {
	target := fmt.Sprintf("process %d", e.Pid)
	if e.Pid < 0 {
		target = fmt.Sprintf("process group %d", -e.Pid)
	}
	return fmt.Sprintf("%s: %s: %v", SignalName(e.Signal), target, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

// SignalName returns the short name of sig, such as TERM.
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name[3:]
	}
	return strconv.Itoa(int(sig))
}

// ParseSignal accepts a signal name with or without the SIG prefix, or a
// number.
func ParseSignal(s string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n != 0 && unix.SignalName(syscall.Signal(n)) == "" {
			return 0, fmt.Errorf("%s: invalid signal specification", s)
		}
		return syscall.Signal(n), nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if sig := unix.SignalNum(name); sig != 0 {
		return sig, nil
	}
	return 0, fmt.Errorf("%s: invalid signal specification", s)
}
