// Package readline supplies the shell's input lines: an editing line
// reader with history and completion on a terminal, plain buffered reads
// otherwise.
package readline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"golang.org/x/term"
)

// ErrInterrupt is returned when the user pressed ^C at the prompt.
var ErrInterrupt = errors.New("interrupt")

// Reader is a source of input lines.
type Reader interface {
	// ReadLine shows prompt and returns the next line without its newline.
	// It returns io.EOF at the end of input.
	ReadLine(prompt string) (string, error)
	// AddHistory records an accepted line for recall.
	AddHistory(line string)
	Close() error
}

// New returns an editing reader when in and out are terminals and a plain
// one otherwise. Prompts go to out only when showPrompts is set.
func New(in *os.File, out io.Writer, completer *Completer, historySize int, showPrompts bool) (Reader, error) {
	outFile, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) || !term.IsTerminal(int(outFile.Fd())) {
		return NewPlain(in, out, showPrompts), nil
	}

	cfg := &readline.Config{
		Stdout:                 out,
		Stderr:                 out,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
		InterruptPrompt:        "^C",
	}
	if completer != nil {
		cfg.AutoComplete = completer
	}
	if err := cfg.Init(); err != nil {
		return nil, err
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}
	return &Terminal{rl: rl}, nil
}

// Terminal edits lines on a terminal.
type Terminal struct {
	rl *readline.Instance
}

func (t *Terminal) ReadLine(prompt string) (string, error) {
	t.rl.SetPrompt(prompt)
	line, err := t.rl.Readline()
	if err == readline.ErrInterrupt {
		return "", ErrInterrupt
	}
	return line, err
}

func (t *Terminal) AddHistory(line string) {
	_ = t.rl.SaveHistory(line)
}

func (t *Terminal) Close() error {
	return t.rl.Close()
}

// Plain reads lines from a pipe, file or a terminal it does not edit.
type Plain struct {
	in          *bufio.Reader
	out         io.Writer
	showPrompts bool
}

func NewPlain(in io.Reader, out io.Writer, showPrompts bool) *Plain {
	return &Plain{in: bufio.NewReader(in), out: out, showPrompts: showPrompts}
}

func (p *Plain) ReadLine(prompt string) (string, error) {
	if p.showPrompts {
		fmt.Fprint(p.out, prompt)
	}
	line, err := p.in.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return strings.TrimSuffix(line, "\n"), err
}

func (p *Plain) AddHistory(string) {}

func (p *Plain) Close() error {
	return nil
}
