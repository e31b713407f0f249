// Package arith evaluates shell arithmetic: 64-bit signed integers with C
// operator precedence, assignment operators and lazy && || ?:.
package arith

import (
	"fmt"
	"strconv"
	"strings"
)

// Vars is the variable store seen by an expression. Unset variables read
// as the empty string.
type Vars interface {
	Get(name string) string
	Set(name, value string) error
}

type Error struct {
	Expr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", strings.TrimSpace(e.Expr), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const maxDepth = 64

var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
	"**": 11,
}

type evaluator struct {
	vars  Vars
	depth int
}

// Eval evaluates expr. Empty input evaluates to 0.
func Eval(expr string, vars Vars) (int64, error) {
	e := &evaluator{vars: vars}
	v, err := e.eval(expr)
	if err != nil {
		return 0, &Error{Expr: expr, Err: err}
	}
	return v, nil
}

func (e *evaluator) eval(expr string) (int64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, nil
	}
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxDepth {
		return 0, fmt.Errorf("expression recursion level exceeded")
	}
	tree, err := parser.ParseString("", expr)
	if err != nil {
		return 0, err
	}
	return e.comma(tree)
}

func (e *evaluator) comma(c *Comma) (v int64, err error) {
	for _, x := range c.Exprs {
		if v, err = e.expr(x); err != nil {
			return 0, err
		}
	}
	return v, nil
}

func (e *evaluator) expr(x *Expr) (int64, error) {
	if x.Assign != nil {
		return e.assign(x.Assign)
	}
	return e.ternary(x.Cond)
}

func (e *evaluator) assign(a *Assignment) (int64, error) {
	rhs, err := e.expr(a.Value)
	if err != nil {
		return 0, err
	}
	v := rhs
	if a.Op != "=" {
		cur, err := e.lookup(a.Name)
		if err != nil {
			return 0, err
		}
		if v, err = binary(strings.TrimSuffix(a.Op, "="), cur, rhs); err != nil {
			return 0, err
		}
	}
	return v, e.store(a.Name, v)
}

func (e *evaluator) ternary(t *Ternary) (int64, error) {
	cond, err := e.binary(t.Cond)
	if err != nil || t.Then == nil {
		return cond, err
	}
	if cond != 0 {
		return e.expr(t.Then)
	}
	return e.expr(t.Else)
}

// node is a binary operator tree built from the flat operand list.
type node struct {
	op          string
	left, right *node
	leaf        *Unary
}

func (b *Binary) tree() *node {
	i := 0
	var climb func(lhs *node, min int) *node
	climb = func(lhs *node, min int) *node {
		for i < len(b.Tail) && precedence[b.Tail[i].Op] >= min {
			op := b.Tail[i].Op
			rhs := &node{leaf: b.Tail[i].Operand}
			i++
			for i < len(b.Tail) {
				next := precedence[b.Tail[i].Op]
				if next > precedence[op] || (next == precedence[op] && op == "**") {
					rhs = climb(rhs, next)
					continue
				}
				break
			}
			lhs = &node{op: op, left: lhs, right: rhs}
		}
		return lhs
	}
	return climb(&node{leaf: b.Head}, 0)
}

func (e *evaluator) binary(b *Binary) (int64, error) {
	return e.node(b.tree())
}

func (e *evaluator) node(n *node) (int64, error) {
	if n.leaf != nil {
		return e.unary(n.leaf)
	}
	l, err := e.node(n.left)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "&&":
		if l == 0 {
			return 0, nil
		}
	case "||":
		if l != 0 {
			return 1, nil
		}
	}
	r, err := e.node(n.right)
	if err != nil {
		return 0, err
	}
	return binary(n.op, l, r)
}

func binary(op string, l, r int64) (int64, error) {
	switch op {
	case "&&", "||":
		return boolInt(r != 0), nil
	case "|":
		return l | r, nil
	case "^":
		return l ^ r, nil
	case "&":
		return l & r, nil
	case "==":
		return boolInt(l == r), nil
	case "!=":
		return boolInt(l != r), nil
	case "<":
		return boolInt(l < r), nil
	case "<=":
		return boolInt(l <= r), nil
	case ">":
		return boolInt(l > r), nil
	case ">=":
		return boolInt(l >= r), nil
	case "<<":
		return l << uint64(r&63), nil
	case ">>":
		return l >> uint64(r&63), nil
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/", "%":
		if r == 0 {
			return 0, fmt.Errorf("division by 0")
		}
		if op == "/" {
			return l / r, nil
		}
		return l % r, nil
	case "**":
		if r < 0 {
			return 0, fmt.Errorf("exponent less than 0")
		}
		v := int64(1)
		for ; r > 0; r-- {
			v *= l
		}
		return v, nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

func (e *evaluator) unary(u *Unary) (int64, error) {
	switch {
	case u.PreIncr != nil:
		v, err := e.lookup(u.PreIncr.Name)
		if err != nil {
			return 0, err
		}
		v += step(u.PreIncr.Op)
		return v, e.store(u.PreIncr.Name, v)
	case u.Operand != nil:
		v, err := e.unary(u.Operand)
		if err != nil {
			return 0, err
		}
		switch u.Op {
		case "!":
			return boolInt(v == 0), nil
		case "~":
			return ^v, nil
		case "-":
			return -v, nil
		}
		return v, nil
	}
	return e.postfix(u.Postfix)
}

func (e *evaluator) postfix(p *Postfix) (int64, error) {
	if p.Op == "" {
		return e.primary(p.Primary)
	}
	if p.Primary.Var == nil {
		return 0, fmt.Errorf("%s requires a variable", p.Op)
	}
	name := *p.Primary.Var
	v, err := e.lookup(name)
	if err != nil {
		return 0, err
	}
	return v, e.store(name, v+step(p.Op))
}

func (e *evaluator) primary(p *Primary) (int64, error) {
	switch {
	case p.Number != nil:
		return parseNumber(*p.Number)
	case p.Var != nil:
		return e.lookup(*p.Var)
	}
	return e.comma(p.Sub)
}

// lookup reads a variable. Values that are not plain numbers are
// evaluated as expressions in turn.
func (e *evaluator) lookup(name string) (int64, error) {
	s := strings.TrimSpace(e.vars.Get(name))
	if s == "" {
		return 0, nil
	}
	if v, err := parseNumber(s); err == nil {
		return v, nil
	}
	return e.eval(s)
}

func (e *evaluator) store(name string, v int64) error {
	return e.vars.Set(name, strconv.FormatInt(v, 10))
}

func parseNumber(s string) (int64, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	var v int64
	var err error
	if i := strings.IndexByte(s, '#'); i >= 0 {
		v, err = parseBase(s[:i], s[i+1:])
	} else {
		v, err = strconv.ParseInt(s, 0, 64)
		if err != nil {
			err = fmt.Errorf("%s: value too great for base", s)
		}
	}
	if neg {
		v = -v
	}
	return v, err
}

// parseBase parses BASE#DIGITS for bases 2 through 64. Digits above 9 are
// a-z, then A-Z, then @ and _; up to base 36 letters are case-insensitive.
func parseBase(baseText, digits string) (int64, error) {
	base, err := strconv.Atoi(baseText)
	if err != nil || base < 2 || base > 64 || digits == "" {
		return 0, fmt.Errorf("%s#%s: invalid arithmetic base", baseText, digits)
	}
	var v int64
	for _, c := range digits {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'z':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'Z':
			d = int(c-'A') + 10
			if base > 36 {
				d += 26
			}
		case c == '@':
			d = 62
		case c == '_':
			d = 63
		default:
			d = base
		}
		if d >= base {
			return 0, fmt.Errorf("%s#%s: value too great for base", baseText, digits)
		}
		v = v*int64(base) + int64(d)
	}
	return v, nil
}

func step(op string) int64 {
	if op == "--" {
		return -1
	}
	return 1
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
