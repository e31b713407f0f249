package shell

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/cryptexctl/gosh/v2/internal/jobs"
)

// enableJobControl takes the terminal for the shell's own process group
// and routes keyboard signals. Without a usable terminal the shell keeps
// running with job control off.
func (s *Shell) enableJobControl() {
	// The shell hands the terminal back to itself from the background.
	signal.Ignore(unix.SIGTTOU)

	tty, err := jobs.OpenTTY(s.stdin)
	if err != nil {
		s.log.Printf("job control disabled: %v", err)
		return
	}
	pgid, err := tty.Claim()
	if err != nil {
		s.errorf("cannot set terminal process group: %v", err)
		return
	}
	s.tty = tty
	s.jobs.TTY = tty
	s.jobs.ShellPgid = pgid
	s.executor.EnableJobControl()
	s.log.Printf("job control on: pgid %d", pgid)

	// Caught rather than ignored, so children start with the default
	// dispositions.
	s.signals = make(chan os.Signal, 8)
	signal.Notify(s.signals, unix.SIGINT, unix.SIGQUIT, unix.SIGTSTP, unix.SIGTTIN)
	go s.handleSignals()
}

func (s *Shell) handleSignals() {
	for sig := range s.signals {
		s.log.Printf("signal %v", sig)
		if sig == unix.SIGINT {
			s.interrupt()
		}
	}
}

// interrupt cancels the statement in progress. At the prompt there is
// nothing to cancel and the shell carries on.
func (s *Shell) interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Shell) stopSignals() {
	if s.signals == nil {
		return
	}
	signal.Stop(s.signals)
	close(s.signals)
	s.signals = nil
}
