package expand

import (
	"context"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cryptexctl/gosh/v2/internal/ast"
)

// paramResult is the value of a parameter expansion. List results ($@, $*,
// ${a[@]}) keep their elements apart so quoting can decide how they join.
type paramResult struct {
	values []string
	list   bool
	star   bool
}

func single(s string) paramResult {
	return paramResult{values: []string{s}}
}

func (r paramResult) joined() string {
	return strings.Join(r.values, " ")
}

func (e *Expander) param(ctx context.Context, p *ast.ParamExp) (paramResult, error) {
	r, set, err := e.lookup(ctx, p)
	if err != nil {
		return r, err
	}

	if p.Length {
		if r.list {
			return single(strconv.Itoa(len(r.values))), nil
		}
		if !set && e.noUnset() {
			return r, unbound(p.Name)
		}
		return single(strconv.Itoa(utf8.RuneCountInString(r.values[0]))), nil
	}

	empty := r.joined() == ""
	missing := !set || p.Colon && empty
	switch p.Op {
	case ast.ParamDefault:
		if missing {
			return e.word(ctx, p.Arg)
		}
		return r, nil
	case ast.ParamAssign:
		if !missing {
			return r, nil
		}
		v, err := e.Literal(ctx, p.Arg)
		if err != nil {
			return r, err
		}
		if err := e.assign(ctx, p, v); err != nil {
			return r, err
		}
		return single(v), nil
	case ast.ParamAlternate:
		if missing {
			return single(""), nil
		}
		return e.word(ctx, p.Arg)
	case ast.ParamError:
		if !missing {
			return r, nil
		}
		msg, err := e.Literal(ctx, p.Arg)
		if err != nil {
			return r, err
		}
		if msg == "" {
			msg = "parameter null or not set"
		}
		return r, &ExpansionError{Msg: p.Name + ": " + msg}
	}

	if !set && e.noUnset() && p.Name != "@" && p.Name != "*" {
		return r, unbound(p.Name)
	}

	switch p.Op {
	case ast.ParamTrimPrefix, ast.ParamTrimLongPrefix, ast.ParamTrimSuffix, ast.ParamTrimLongSuffix:
		pat, err := e.Pattern(ctx, p.Arg)
		if err != nil {
			return r, err
		}
		suffix := p.Op == ast.ParamTrimSuffix || p.Op == ast.ParamTrimLongSuffix
		long := p.Op == ast.ParamTrimLongPrefix || p.Op == ast.ParamTrimLongSuffix
		return r.each(func(s string) string { return trim(s, pat, suffix, long) }), nil
	case ast.ParamReplace, ast.ParamReplaceAll:
		return e.replace(ctx, p, r)
	case ast.ParamUpper, ast.ParamUpperFirst, ast.ParamLower, ast.ParamLowerFirst:
		pat := "?"
		if p.Arg != nil && len(p.Arg.Parts) > 0 {
			var err error
			if pat, err = e.Pattern(ctx, p.Arg); err != nil {
				return r, err
			}
		}
		return r.each(func(s string) string { return convertCase(s, pat, p.Op) }), nil
	case ast.ParamSlice:
		return e.slice(ctx, p, r)
	}
	return r, nil
}

func unbound(name string) error {
	return &ExpansionError{Msg: name + ": unbound variable"}
}

// lookup resolves the parameter itself, before any operator applies.
func (e *Expander) lookup(ctx context.Context, p *ast.ParamExp) (paramResult, bool, error) {
	switch p.Name {
	case "@", "*":
		args := e.Vars.Args()
		return paramResult{values: args, list: true, star: p.Name == "*"}, len(args) > 0, nil
	}
	if p.Index != nil {
		if all, star := p.AllElements(); all {
			values := e.Vars.GetArray(p.Name)
			return paramResult{values: values, list: true, star: star}, len(values) > 0, nil
		}
		idx, err := e.Arith(ctx, p.Index)
		if err != nil {
			return paramResult{}, false, err
		}
		v, ok := e.Vars.Element(p.Name, int(idx))
		return single(v), ok, nil
	}
	return single(e.Vars.Get(p.Name)), e.Vars.IsSet(p.Name), nil
}

func (e *Expander) assign(ctx context.Context, p *ast.ParamExp, v string) error {
	if _, special := e.Vars.Special(p.Name); special {
		return &ExpansionError{Msg: "$" + p.Name + ": cannot assign in this way"}
	}
	if p.Index != nil {
		idx, err := e.Arith(ctx, p.Index)
		if err != nil {
			return err
		}
		return e.Vars.SetElement(p.Name, int(idx), v)
	}
	if err := e.Vars.Set(p.Name, v); err != nil {
		return &ExpansionError{Err: err}
	}
	return nil
}

// word expands an operator argument. The result is split like any other
// unquoted substitution by the caller.
func (e *Expander) word(ctx context.Context, w *ast.Word) (paramResult, error) {
	s, err := e.Literal(ctx, w)
	if err != nil {
		return paramResult{}, err
	}
	return single(s), nil
}

func (r paramResult) each(fn func(string) string) paramResult {
	out := make([]string, len(r.values))
	for i, v := range r.values {
		out[i] = fn(v)
	}
	r.values = out
	return r
}

// trim removes the shortest or longest prefix or suffix of s matching pat.
func trim(s, pat string, suffix, long bool) string {
	bounds := runeBounds(s)
	if suffix {
		for k := range bounds {
			i := bounds[k]
			if !long {
				i = bounds[len(bounds)-1-k]
			}
			if Match(pat, s[i:]) {
				return s[:i]
			}
		}
		return s
	}
	for k := range bounds {
		i := bounds[k]
		if long {
			i = bounds[len(bounds)-1-k]
		}
		if Match(pat, s[:i]) {
			return s[i:]
		}
	}
	return s
}

// runeBounds returns every rune boundary of s, including 0 and len(s).
func runeBounds(s string) []int {
	bounds := make([]int, 0, len(s)+1)
	for i := range s {
		bounds = append(bounds, i)
	}
	return append(bounds, len(s))
}

func (e *Expander) replace(ctx context.Context, p *ast.ParamExp, r paramResult) (paramResult, error) {
	arg := p.Arg
	var anchor byte
	if arg != nil && len(arg.Parts) > 0 && arg.Parts[0].Type == ast.PartLiteral {
		if v := arg.Parts[0].Value; v != "" && (v[0] == '#' || v[0] == '%') {
			anchor = v[0]
			parts := append([]*ast.WordPart{{Type: ast.PartLiteral, Value: v[1:]}}, arg.Parts[1:]...)
			arg = &ast.Word{Parts: parts, Pos: arg.Pos}
		}
	}
	pat, err := e.Pattern(ctx, arg)
	if err != nil {
		return r, err
	}
	repl, err := e.Literal(ctx, p.Repl)
	if err != nil {
		return r, err
	}
	all := p.Op == ast.ParamReplaceAll
	return r.each(func(s string) string { return replace(s, pat, repl, anchor, all) }), nil
}

// replace substitutes the longest match of pat in s. anchor '#' pins the
// match to the start and '%' to the end.
func replace(s, pat, repl string, anchor byte, all bool) string {
	if pat == "" && anchor == 0 {
		return s
	}
	bounds := runeBounds(s)
	var sb strings.Builder
	last := 0
	for si := 0; si < len(bounds); si++ {
		start := bounds[si]
		if start < last {
			continue
		}
		if anchor == '#' && start > 0 {
			break
		}
		end := -1
		for ei := len(bounds) - 1; ei >= si; ei-- {
			if anchor == '%' && ei != len(bounds)-1 {
				continue
			}
			if Match(pat, s[start:bounds[ei]]) {
				end = bounds[ei]
				break
			}
		}
		if end < 0 {
			continue
		}
		sb.WriteString(s[last:start])
		sb.WriteString(repl)
		last = end
		if !all {
			break
		}
		if end == start {
			// An empty match must not stall the scan.
			if si+1 < len(bounds) {
				sb.WriteString(s[start:bounds[si+1]])
				last = bounds[si+1]
			}
		}
	}
	sb.WriteString(s[last:])
	return sb.String()
}

func convertCase(s, pat string, op ast.ParamOp) string {
	conv := unicode.ToUpper
	if op == ast.ParamLower || op == ast.ParamLowerFirst {
		conv = unicode.ToLower
	}
	first := op == ast.ParamUpperFirst || op == ast.ParamLowerFirst
	var sb strings.Builder
	for i, c := range s {
		if (!first || i == 0) && Match(pat, string(c)) {
			c = conv(c)
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

func (e *Expander) slice(ctx context.Context, p *ast.ParamExp, r paramResult) (paramResult, error) {
	off, err := e.Arith(ctx, p.Offset)
	if err != nil {
		return r, err
	}
	if r.list {
		values := r.values
		if p.Name == "@" || p.Name == "*" {
			values = append([]string{e.Vars.Arg0}, values...)
		}
		from, to, err := e.bounds(ctx, p, off, len(values))
		if err != nil {
			return r, err
		}
		r.values = values[from:to]
		return r, nil
	}
	runes := []rune(r.values[0])
	from, to, err := e.bounds(ctx, p, off, len(runes))
	if err != nil {
		return r, err
	}
	return single(string(runes[from:to])), nil
}

// bounds converts an offset and optional length into a slice range over n
// items. Negative values count from the end.
func (e *Expander) bounds(ctx context.Context, p *ast.ParamExp, off int64, n int) (int, int, error) {
	from := int(off)
	if from < 0 {
		from += n
	}
	if from < 0 || from > n {
		return 0, 0, nil
	}
	to := n
	if p.Count != nil {
		count, err := e.Arith(ctx, p.Count)
		if err != nil {
			return 0, 0, err
		}
		if count < 0 {
			to = n + int(count)
			if to < from {
				return 0, 0, &ExpansionError{Msg: strconv.FormatInt(count, 10) + ": substring expression < 0"}
			}
		} else if int(count) < n-from {
			to = from + int(count)
		}
	}
	return from, to, nil
}
