package shell

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cryptexctl/gosh/v2/internal/builtin"
)

// registerBuiltins adds the commands that need the front end's state on
// top of the executor's standard set.
func (s *Shell) registerBuiltins() {
	s.builtins.Register(s.history.Builtin())
	s.builtins.Register(builtin.Builtin{
		Name:  "suspend",
		Use:   "suspend",
		Short: "Stop the shell until it is continued.",
		Run:   s.suspend,
	})
}

// suspend stops the shell process itself. Its own jobs keep their process
// groups and are not affected.
func (s *Shell) suspend(c *builtin.Context, args []string) int {
	cmd := &builtin.Command{Use: "suspend"}
	return cmd.Run(c, args, func(operands []string) int {
		if len(operands) > 0 {
			fmt.Fprintln(c.Stderr, "suspend: too many arguments")
			return 2
		}
		if s.tty == nil {
			fmt.Fprintln(c.Stderr, "suspend: no job control in this shell")
			return 1
		}

		fmt.Fprintln(c.Stderr, "[Suspended]")
		if err := s.tty.Restore(); err != nil {
			s.log.Printf("restore terminal: %v", err)
		}
		if err := unix.Kill(unix.Getpid(), unix.SIGSTOP); err != nil {
			fmt.Fprintf(c.Stderr, "suspend: %v\n", err)
			return 1
		}

		// Continued: take the terminal back if the parent gave it to us.
		if fg, err := s.tty.Foreground(); err == nil && fg == s.jobs.ShellPgid {
			s.jobs.Reclaim()
		}
		return 0
	})
}
