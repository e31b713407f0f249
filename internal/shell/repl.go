package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cryptexctl/gosh/v2/internal/parser"
	"github.com/cryptexctl/gosh/v2/internal/readline"
)

// runReader reads and runs statements from r until end of input or exit.
// Lines are accumulated while the parser asks for more input.
func (s *Shell) runReader(ctx context.Context, r readline.Reader) int {
	var pending strings.Builder
	for {
		if ctx.Err() != nil {
			return s.vars.Status
		}
		ps := s.prompt.PS2()
		if pending.Len() == 0 {
			s.notifyJobs()
			ps = s.prompt.PS1()
		}

		line, err := r.ReadLine(ps)
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			pending.Reset()
			s.vars.Status = 130
			continue
		case err == io.EOF:
			if pending.Len() > 0 {
				s.errorf("syntax error: unexpected end of file")
				s.vars.Status = 2
			}
			if s.interactive {
				fmt.Fprintln(s.stderr, "exit")
			}
			return s.vars.Status
		case err != nil:
			s.errorf("read: %v", err)
			return 1
		}

		if s.interactive {
			expanded, changed, err := s.history.Expand(line)
			if err != nil {
				s.errorf("%v", err)
				s.vars.Status = 1
				pending.Reset()
				continue
			}
			if changed {
				fmt.Fprintln(s.stderr, expanded)
				line = expanded
			}
		}

		pending.WriteString(line)
		pending.WriteByte('\n')
		src := pending.String()
		script, err := parser.New().Parse(src)
		if parser.IsIncomplete(err) {
			continue
		}
		pending.Reset()

		if s.interactive {
			entry := strings.TrimSuffix(src, "\n")
			s.history.Add(entry)
			r.AddHistory(entry)
		}
		if err != nil {
			s.errorf("%v", err)
			s.vars.Status = 2
			continue
		}

		s.log.Printf("run %q", strings.TrimSpace(src))
		status := s.execute(ctx, func(ctx context.Context) int {
			return s.executor.Run(ctx, script)
		})
		if code, ok := s.executor.Exited(); ok {
			return code
		}
		s.vars.Status = status
		if !s.interactive || s.executor.Option("notify") {
			s.notifyJobs()
		}
	}
}

// execute runs one statement under a context the interrupt handler can
// cancel.
func (s *Shell) execute(ctx context.Context, fn func(context.Context) int) int {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()
	return fn(ctx)
}

// notifyJobs is the safe point where queued child status changes are
// applied. Only an interactive shell reports them; otherwise finished jobs
// are collected silently.
func (s *Shell) notifyJobs() {
	changed := s.jobs.Reap()
	if !s.interactive {
		return
	}
	for _, j := range changed {
		if j.Foreground {
			continue
		}
		fmt.Fprintln(s.stderr, s.jobs.Line(j, false))
	}
}
