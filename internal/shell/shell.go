// Package shell is the front end: it sets up the session, reads input
// statement by statement and hands each one to the executor.
package shell

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/cryptexctl/gosh/v2/internal/builtin"
	"github.com/cryptexctl/gosh/v2/internal/config"
	"github.com/cryptexctl/gosh/v2/internal/executor"
	"github.com/cryptexctl/gosh/v2/internal/history"
	"github.com/cryptexctl/gosh/v2/internal/jobs"
	"github.com/cryptexctl/gosh/v2/internal/prompt"
	"github.com/cryptexctl/gosh/v2/internal/readline"
	"github.com/cryptexctl/gosh/v2/internal/variables"
)

// Version is reported by --version and $GOSH_VERSION.
var Version = "2.0.0"

type Shell struct {
	config   *config.Config
	vars     *variables.Manager
	builtins *builtin.Manager
	jobs     *jobs.Manager
	executor *executor.Executor
	history  *history.Manager
	prompt   *prompt.Manager

	stdin   *os.File
	stdout  *os.File
	stderr  *os.File
	log     *log.Logger
	tty     *jobs.TTY
	signals chan os.Signal

	interactive bool

	mu sync.Mutex
	// cancel stops the statement being run; nil at the prompt.
	cancel context.CancelFunc
}

func New(cfg *config.Config) *Shell {
	vars := variables.New()
	builtins := builtin.NewDefault()
	jm := jobs.New(nil)

	s := &Shell{
		config:   cfg,
		vars:     vars,
		builtins: builtins,
		jobs:     jm,
		executor: executor.New(vars, builtins, jm),
		history:  history.New(cfg.HistorySize),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		log:      log.New(io.Discard, "", 0),
	}
	s.prompt = prompt.New(vars, s.executor.Dir, jm.Count)
	s.registerBuiltins()
	return s
}

// SetStdio replaces the shell's standard streams.
func (s *Shell) SetStdio(stdin, stdout, stderr *os.File) {
	s.stdin, s.stdout, s.stderr = stdin, stdout, stderr
	s.executor.SetStdio(stdin, stdout, stderr)
}

// Run runs the session the configuration describes and returns the
// shell's exit status.
func (s *Shell) Run(ctx context.Context) int {
	s.setup()
	defer s.teardown()

	switch {
	case s.config.Command != "":
		return s.runCommand(ctx, s.config.Command)
	case s.config.ScriptFile != "" && !s.config.ReadStdin:
		return s.runScript(ctx, s.config.ScriptFile)
	}
	return s.runInput(ctx)
}

func (s *Shell) setup() {
	cfg := s.config
	if cfg.Debug {
		s.log = log.New(s.stderr, "[gosh] ", log.Ltime|log.Lmicroseconds)
	}
	s.executor.SetLogger(s.log)
	s.executor.Path = cfg.DefaultPath
	s.executor.SetIFS(cfg.IFS)
	s.executor.SetNoMatch(cfg.NoMatchPolicy())
	s.setOption("errexit", cfg.ErrExit)
	s.setOption("xtrace", cfg.XTrace)
	s.setOption("notify", cfg.JobNotify)

	s.interactive = cfg.Interactive ||
		cfg.Command == "" && cfg.ScriptFile == "" &&
			term.IsTerminal(int(s.stdin.Fd())) && term.IsTerminal(int(s.stderr.Fd()))
	if !cfg.Colors {
		color.NoColor = true
	}

	s.initVariables()
	if s.interactive {
		s.enableJobControl()
	}
}

func (s *Shell) setOption(name string, on bool) {
	if err := s.executor.SetOption(name, on); err != nil {
		s.log.Printf("option %s: %v", name, err)
	}
}

func (s *Shell) initVariables() {
	set := func(name, value string) {
		if err := s.vars.Set(name, value); err != nil {
			s.log.Printf("set %s: %v", name, err)
		}
	}
	ifUnset := func(name, value string) {
		if !s.vars.IsSet(name) {
			set(name, value)
		}
	}

	set("PWD", s.executor.Dir())
	level, _ := strconv.Atoi(s.vars.Get("SHLVL"))
	set("SHLVL", strconv.Itoa(level+1))
	if err := s.vars.Export("SHLVL", nil); err != nil {
		s.log.Printf("export SHLVL: %v", err)
	}
	set("GOSH_VERSION", Version)
	if exe, err := os.Executable(); err == nil {
		set("SHELL", exe)
	}
	if host, err := os.Hostname(); err == nil {
		ifUnset("HOSTNAME", host)
	}
	ifUnset("PATH", s.config.DefaultPath)
	ifUnset("PS1", s.config.PS1)
	ifUnset("PS2", s.config.PS2)
	ifUnset("PS4", s.config.PS4)
}

// errorf reports a shell-level problem to the user.
func (s *Shell) errorf(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprint(s.stderr, "gosh: ")
	fmt.Fprintf(s.stderr, format+"\n", args...)
}

func (s *Shell) teardown() {
	if s.tty == nil {
		return
	}
	s.jobs.HangUp()
	if err := s.tty.Restore(); err != nil {
		s.log.Printf("restore terminal: %v", err)
	}
	s.stopSignals()
}

// runCommand runs the -c string. Operands after it become $0 and the
// positional parameters.
func (s *Shell) runCommand(ctx context.Context, src string) int {
	if args := s.config.ScriptArgs; len(args) > 0 {
		s.vars.Arg0 = args[0]
		s.vars.SetArgs(args[1:])
	}
	return s.runReader(ctx, readline.NewPlain(strings.NewReader(src), s.stderr, false))
}

func (s *Shell) runScript(ctx context.Context, path string) int {
	f, err := os.Open(path)
	if err != nil {
		s.errorf("%s: %v", path, unwrapPath(err))
		return 127
	}
	defer f.Close()

	s.vars.Arg0 = path
	s.vars.SetArgs(s.config.ScriptArgs)
	return s.runReader(ctx, readline.NewPlain(f, s.stderr, false))
}

// runInput reads statements from standard input, with line editing and
// prompts when interactive.
func (s *Shell) runInput(ctx context.Context) int {
	if args := s.config.ScriptArgs; len(args) > 0 {
		s.vars.SetArgs(args)
	}
	if !s.interactive {
		return s.runReader(ctx, readline.NewPlain(s.stdin, s.stderr, false))
	}

	completer := &readline.Completer{
		Commands: s.commandNames,
		Dir:      s.executor.Dir,
		Path:     func() string { return s.vars.Get("PATH") },
	}
	r, err := readline.New(s.stdin, s.stderr, completer, s.config.HistorySize, true)
	if err != nil {
		s.errorf("line editing unavailable: %v", err)
		r = readline.NewPlain(s.stdin, s.stderr, true)
	}
	defer r.Close()

	s.sourceRC(ctx)
	return s.runReader(ctx, r)
}

// sourceRC runs ~/.goshrc in an interactive shell unless GOSH_NORC is set.
func (s *Shell) sourceRC(ctx context.Context) {
	home := s.vars.Get("HOME")
	if home == "" || os.Getenv("GOSH_NORC") != "" {
		return
	}
	rc := filepath.Join(home, ".goshrc")
	if _, err := os.Stat(rc); err != nil {
		return
	}
	status, err := s.executor.RunString(ctx, ". "+builtin.Quote(rc))
	if err != nil {
		s.errorf("%s: %v", rc, err)
	}
	s.log.Printf("sourced %s: status %d", rc, status)
}

func (s *Shell) commandNames() []string {
	return append(s.builtins.List(), s.executor.Functions()...)
}

func unwrapPath(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}
