package builtin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// test evaluates a conditional expression: 0 true, 1 false, 2 on a
// syntax error.
func test(c *Context, args []string) int {
	name := args[0]
	args = args[1:]
	if name == "[" {
		if len(args) == 0 || args[len(args)-1] != "]" {
			fmt.Fprintln(c.Stderr, "[: missing `]'")
			return 2
		}
		args = args[:len(args)-1]
	}

	t := &tester{args: args, dir: c.Shell.Dir()}
	ok, err := t.eval()
	if err == nil && t.pos < len(t.args) {
		err = fmt.Errorf("%s: unexpected argument", t.args[t.pos])
	}
	if err != nil {
		fmt.Fprintf(c.Stderr, "%s: %v\n", name, err)
		return 2
	}
	if ok {
		return 0
	}
	return 1
}

type tester struct {
	args []string
	pos  int
	dir  string
}

func (t *tester) peek() (string, bool) {
	if t.pos >= len(t.args) {
		return "", false
	}
	return t.args[t.pos], true
}

func (t *tester) next() (string, error) {
	s, ok := t.peek()
	if !ok {
		return "", fmt.Errorf("argument expected")
	}
	t.pos++
	return s, nil
}

func (t *tester) eval() (bool, error) {
	switch len(t.args) {
	case 0:
		return false, nil
	case 1:
		t.pos = 1
		return t.args[0] != "", nil
	}
	return t.or()
}

func (t *tester) or() (bool, error) {
	left, err := t.and()
	if err != nil {
		return false, err
	}
	for {
		if s, ok := t.peek(); !ok || s != "-o" {
			return left, nil
		}
		t.pos++
		right, err := t.and()
		if err != nil {
			return false, err
		}
		left = left || right
	}
}

func (t *tester) and() (bool, error) {
	left, err := t.not()
	if err != nil {
		return false, err
	}
	for {
		if s, ok := t.peek(); !ok || s != "-a" {
			return left, nil
		}
		t.pos++
		right, err := t.not()
		if err != nil {
			return false, err
		}
		left = left && right
	}
}

func (t *tester) not() (bool, error) {
	if s, ok := t.peek(); ok && s == "!" && t.pos+1 < len(t.args) {
		t.pos++
		v, err := t.not()
		return !v, err
	}
	return t.primary()
}

func (t *tester) primary() (bool, error) {
	s, err := t.next()
	if err != nil {
		return false, err
	}

	if s == "(" && t.pos < len(t.args) {
		v, err := t.or()
		if err != nil {
			return false, err
		}
		if closing, _ := t.next(); closing != ")" {
			return false, fmt.Errorf("`)' expected")
		}
		return v, nil
	}

	if op, ok := t.peek(); ok && binaryOp(op) && t.pos+1 < len(t.args) {
		t.pos++
		right, _ := t.next()
		return t.binary(s, op, right)
	}

	if len(s) == 2 && s[0] == '-' && strings.IndexByte("bcdefghLknprSstuwxzOG", s[1]) >= 0 {
		if _, ok := t.peek(); ok {
			operand, _ := t.next()
			return t.unary(s[1], operand)
		}
	}
	return s != "", nil
}

func binaryOp(op string) bool {
	switch op {
	case "=", "==", "!=", "<", ">", "-eq", "-ne", "-lt", "-le", "-gt", "-ge", "-nt", "-ot", "-ef":
		return true
	}
	return false
}

func (t *tester) path(p string) string {
	if p == "" || p[0] == '/' {
		return p
	}
	return t.dir + "/" + p
}

func (t *tester) unary(op byte, operand string) (bool, error) {
	switch op {
	case 'z':
		return operand == "", nil
	case 'n':
		return operand != "", nil
	case 't':
		fd, err := strconv.Atoi(operand)
		if err != nil {
			return false, fmt.Errorf("%s: integer expression expected", operand)
		}
		_, err = unix.IoctlGetTermios(fd, unix.TCGETS)
		return err == nil, nil
	case 'r', 'w', 'x':
		mode := map[byte]uint32{'r': unix.R_OK, 'w': unix.W_OK, 'x': unix.X_OK}[op]
		return unix.Access(t.path(operand), mode) == nil, nil
	case 'h', 'L':
		info, err := os.Lstat(t.path(operand))
		return err == nil && info.Mode()&os.ModeSymlink != 0, nil
	}

	info, err := os.Stat(t.path(operand))
	if err != nil {
		return false, nil
	}
	mode := info.Mode()
	switch op {
	case 'e':
		return true, nil
	case 'f':
		return mode.IsRegular(), nil
	case 'd':
		return mode.IsDir(), nil
	case 's':
		return info.Size() > 0, nil
	case 'b':
		return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0, nil
	case 'c':
		return mode&os.ModeCharDevice != 0, nil
	case 'p':
		return mode&os.ModeNamedPipe != 0, nil
	case 'S':
		return mode&os.ModeSocket != 0, nil
	case 'u':
		return mode&os.ModeSetuid != 0, nil
	case 'g':
		return mode&os.ModeSetgid != 0, nil
	case 'k':
		return mode&os.ModeSticky != 0, nil
	case 'O', 'G':
		st, ok := info.Sys().(*unix.Stat_t)
		if !ok {
			return false, nil
		}
		if op == 'O' {
			return int(st.Uid) == os.Geteuid(), nil
		}
		return int(st.Gid) == os.Getegid(), nil
	}
	return false, fmt.Errorf("-%c: unary operator expected", op)
}

func (t *tester) binary(left, op, right string) (bool, error) {
	switch op {
	case "=", "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	case "-nt", "-ot", "-ef":
		a, errA := os.Stat(t.path(left))
		b, errB := os.Stat(t.path(right))
		switch op {
		case "-nt":
			return errA == nil && (errB != nil || a.ModTime().After(b.ModTime())), nil
		case "-ot":
			return errB == nil && (errA != nil || a.ModTime().Before(b.ModTime())), nil
		default:
			return errA == nil && errB == nil && os.SameFile(a, b), nil
		}
	}

	l, err := strconv.ParseInt(strings.TrimSpace(left), 10, 64)
	if err != nil {
		return false, fmt.Errorf("%s: integer expression expected", left)
	}
	r, err := strconv.ParseInt(strings.TrimSpace(right), 10, 64)
	if err != nil {
		return false, fmt.Errorf("%s: integer expression expected", right)
	}
	switch op {
	case "-eq":
		return l == r, nil
	case "-ne":
		return l != r, nil
	case "-lt":
		return l < r, nil
	case "-le":
		return l <= r, nil
	case "-gt":
		return l > r, nil
	default:
		return l >= r, nil
	}
}
