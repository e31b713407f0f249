// Package expand turns parsed words into argument strings. Expansion runs
// in a fixed order: brace, tilde, parameter/arithmetic/command
// substitution, field splitting and finally pathname generation.
package expand

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/cryptexctl/gosh/v2/internal/arith"
	"github.com/cryptexctl/gosh/v2/internal/ast"
	"github.com/cryptexctl/gosh/v2/internal/variables"
)

// NoMatch selects what happens to a glob pattern that matches no path.
type NoMatch int

const (
	// NoMatchLiteral passes the pattern through unchanged.
	NoMatchLiteral NoMatch = iota
	// NoMatchFail aborts the command with an ExpansionError.
	NoMatchFail
	// NoMatchNull removes the word.
	NoMatchNull
)

func (n NoMatch) String() string {
	switch n {
	case NoMatchFail:
		return "fail"
	case NoMatchNull:
		return "null"
	default:
		return "literal"
	}
}

func ParseNoMatch(s string) (NoMatch, error) {
	switch s {
	case "", "literal":
		return NoMatchLiteral, nil
	case "fail":
		return NoMatchFail, nil
	case "null":
		return NoMatchNull, nil
	}
	return NoMatchLiteral, fmt.Errorf("unknown nomatch policy %q", s)
}

// DefaultIFS is used when neither $IFS nor the configuration set one.
const DefaultIFS = " \t\n"

// SubstFunc runs the body of a command substitution in a forked context
// and returns its standard output and exit status.
type SubstFunc func(ctx context.Context, script *ast.Script) (string, int, error)

type Expander struct {
	Vars *variables.Manager
	// FS is searched by pathname expansion.
	FS afero.Fs
	// Dir returns the directory relative globs are resolved against.
	Dir   func() string
	Subst SubstFunc

	NoMatch NoMatch
	// IFS applies when $IFS is unset.
	IFS string

	// Warn reports non-fatal problems to the user.
	Warn func(msg string)
	Log  *log.Logger

	substStatus int
	substRan    bool
}

func New(vars *variables.Manager) *Expander {
	return &Expander{
		Vars: vars,
		FS:   afero.NewOsFs(),
		IFS:  DefaultIFS,
		Log:  log.New(io.Discard, "", 0),
	}
}

// SubstStatus returns the exit status of the last command substitution
// since the previous call, if one ran.
func (e *Expander) SubstStatus() (int, bool) {
	status, ran := e.substStatus, e.substRan
	e.substStatus, e.substRan = 0, false
	return status, ran
}

func (e *Expander) dir() string {
	if e.Dir != nil {
		return e.Dir()
	}
	wd, _ := os.Getwd()
	return wd
}

func (e *Expander) ifs() string {
	if v, ok := e.Vars.Lookup("IFS"); ok {
		return v.Scalar()
	}
	return e.IFS
}

func (e *Expander) noGlob() bool {
	return strings.ContainsRune(e.Vars.Flags, 'f')
}

func (e *Expander) noUnset() bool {
	return strings.ContainsRune(e.Vars.Flags, 'u')
}

func (e *Expander) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if e.Warn != nil {
		e.Warn(msg)
		return
	}
	e.Log.Print(msg)
}

// Fields expands words into the final argument list. Each word may yield
// zero or more fields.
func (e *Expander) Fields(ctx context.Context, words []*ast.Word) ([]string, error) {
	var out []string
	for _, word := range words {
		words, err := Braces(word)
		if err != nil {
			return nil, err
		}
		for _, w := range words {
			b := &builder{split: true, ifs: e.ifs()}
			if err := e.expand(ctx, w, b); err != nil {
				return nil, err
			}
			for _, f := range b.finish() {
				fields, err := e.generate(f)
				if err != nil {
					return nil, err
				}
				out = append(out, fields...)
			}
		}
	}
	return out, nil
}

// Literal expands w to a single string without brace expansion, field
// splitting or pathname generation. Assignment values, redirection targets,
// case words and here-documents are expanded this way.
func (e *Expander) Literal(ctx context.Context, w *ast.Word) (string, error) {
	if w == nil {
		return "", nil
	}
	b := &builder{ifs: e.ifs()}
	if err := e.expand(ctx, w, b); err != nil {
		return "", err
	}
	fields := b.finish()
	s := make([]string, len(fields))
	for i, f := range fields {
		s[i] = f.text()
	}
	return strings.Join(s, " "), nil
}

// Pattern expands w into a shell pattern. Quoted and escaped text matches
// itself.
func (e *Expander) Pattern(ctx context.Context, w *ast.Word) (string, error) {
	if w == nil {
		return "", nil
	}
	b := &builder{ifs: e.ifs()}
	if err := e.expand(ctx, w, b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, f := range b.finish() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.pattern())
	}
	return sb.String(), nil
}

// Arith expands w and evaluates the result as an arithmetic expression.
func (e *Expander) Arith(ctx context.Context, w *ast.Word) (int64, error) {
	expr, err := e.Literal(ctx, w)
	if err != nil {
		return 0, err
	}
	n, err := arith.Eval(expr, e.Vars)
	if err != nil {
		return 0, &ExpansionError{Err: err}
	}
	return n, nil
}

func (e *Expander) expand(ctx context.Context, w *ast.Word, b *builder) error {
	parts := w.Parts
	if len(parts) > 0 && parts[0].Type == ast.PartLiteral && strings.HasPrefix(parts[0].Value, "~") {
		if home, rest, ok := e.tilde(parts[0].Value, len(parts) > 1); ok {
			b.add(home, true)
			if rest != "" {
				e.literal(rest, b)
			}
			parts = parts[1:]
		}
	}
	return e.parts(ctx, parts, b, false)
}

// tilde resolves a leading ~, ~user, ~+ or ~- prefix of lit. The prefix
// ends at the first slash; when lit has none and more parts follow, the
// prefix is not a plain name and nothing is expanded.
func (e *Expander) tilde(lit string, more bool) (home, rest string, ok bool) {
	name := lit[1:]
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name, rest = name[:i], name[i:]
	} else if more {
		return "", "", false
	}
	switch name {
	case "":
		if v, set := e.Vars.Lookup("HOME"); set {
			return v.Scalar(), rest, true
		}
		u, err := user.Current()
		if err != nil {
			return "", "", false
		}
		return u.HomeDir, rest, true
	case "+":
		return e.Vars.Get("PWD"), rest, true
	case "-":
		return e.Vars.Get("OLDPWD"), rest, true
	}
	if strings.ContainsAny(name, "\\$`'\"") {
		return "", "", false
	}
	u, err := user.Lookup(name)
	if err != nil {
		return "", "", false
	}
	return u.HomeDir, rest, true
}

func (e *Expander) parts(ctx context.Context, parts []*ast.WordPart, b *builder, quoted bool) error {
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch p.Type {
		case ast.PartLiteral:
			if quoted {
				b.add(unescapeDouble(p.Value), true)
			} else {
				e.literal(p.Value, b)
			}
		case ast.PartSingleQuoted:
			b.add(p.Value, true)
		case ast.PartDoubleQuoted:
			if !emptyList(p.Parts, e) {
				b.add("", true)
			}
			if err := e.parts(ctx, p.Parts, b, true); err != nil {
				return err
			}
		case ast.PartParam:
			r, err := e.param(ctx, p.Param)
			if err != nil {
				return err
			}
			b.result(r, quoted)
		case ast.PartCommand:
			out, err := e.command(ctx, p.Script)
			if err != nil {
				return err
			}
			b.value(out, quoted)
		case ast.PartArith:
			n, err := e.Arith(ctx, p.Expr)
			if err != nil {
				return err
			}
			b.value(strconv.FormatInt(n, 10), quoted)
		}
	}
	return nil
}

// emptyList reports whether parts is a lone "$@" or "${a[@]}" with no
// elements, which expands to no field at all.
func emptyList(parts []*ast.WordPart, e *Expander) bool {
	if len(parts) != 1 || parts[0].Type != ast.PartParam {
		return false
	}
	p := parts[0].Param
	if p.Length || p.Op != ast.ParamNone {
		return false
	}
	if p.Name == "@" {
		return len(e.Vars.Args()) == 0
	}
	if all, star := p.AllElements(); all && !star {
		return len(e.Vars.GetArray(p.Name)) == 0
	}
	return false
}

// literal adds unquoted source text. Backslash escapes become quoted
// fragments so they survive splitting and globbing.
func (e *Expander) literal(s string, b *builder) {
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			continue
		}
		if i > start {
			b.add(s[start:i], false)
		}
		b.add(s[i+1:i+2], true)
		i++
		start = i + 1
	}
	if start < len(s) {
		b.add(s[start:], false)
	}
}

func unescapeDouble(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte("$`\"\\", s[i+1]) >= 0 {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func (e *Expander) command(ctx context.Context, script *ast.Script) (string, error) {
	if e.Subst == nil || script == nil {
		return "", nil
	}
	out, status, err := e.Subst(ctx, script)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	e.substStatus, e.substRan = status, true
	switch {
	case err != nil:
		e.warn("command substitution: %v", err)
	case status == 126 || status == 127:
		e.warn("command substitution: exit status %d", status)
	default:
		e.Log.Printf("command substitution exited %d", status)
	}
	return strings.TrimRight(out, "\n"), nil
}

// generate performs pathname expansion on one field.
func (e *Expander) generate(f field) ([]string, error) {
	if e.noGlob() || !f.hasMeta() {
		return []string{f.text()}, nil
	}
	pat := f.pattern()
	matches, err := e.glob(pat)
	if err != nil {
		return nil, &ExpansionError{Msg: pat, Err: err}
	}
	if len(matches) > 0 {
		return matches, nil
	}
	switch e.NoMatch {
	case NoMatchFail:
		return nil, &ExpansionError{Msg: "no match: " + f.text()}
	case NoMatchNull:
		return nil, nil
	default:
		return []string{f.text()}, nil
	}
}
