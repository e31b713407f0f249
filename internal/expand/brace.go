package expand

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/cryptexctl/gosh/v2/internal/ast"
)

var (
	numericRange = regexp.MustCompile(`^([-+]?\d+)\.\.([-+]?\d+)(?:\.\.([-+]?\d+))?$`)
	letterRange  = regexp.MustCompile(`^([a-zA-Z])\.\.([a-zA-Z])(?:\.\.([-+]?\d+))?$`)
)

// MaxBraceWords bounds the words one brace expansion may produce.
const MaxBraceWords = 1 << 16

// Braces performs brace expansion on the unquoted literal parts of w. A
// group must lie within one literal part. Words without a group come back
// unchanged as the only element. An expansion producing more than
// MaxBraceWords words is an ExpansionError.
func Braces(w *ast.Word) ([]*ast.Word, error) {
	out, err := braces(w, nil)
	if err != nil {
		return nil, &ExpansionError{Msg: w.String(), Err: err}
	}
	return out, nil
}

func braces(w *ast.Word, out []*ast.Word) ([]*ast.Word, error) {
	for i, part := range w.Parts {
		if part.Type != ast.PartLiteral {
			continue
		}
		start, end, alts, ok, err := findGroup(part.Value)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, alt := range alts {
			parts := make([]*ast.WordPart, 0, len(w.Parts))
			parts = append(parts, w.Parts[:i]...)
			parts = append(parts, &ast.WordPart{
				Type:  ast.PartLiteral,
				Value: part.Value[:start] + alt + part.Value[end+1:],
			})
			parts = append(parts, w.Parts[i+1:]...)
			if out, err = braces(&ast.Word{Parts: parts, Pos: w.Pos}, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if len(out) >= MaxBraceWords {
		return nil, errTooManyWords
	}
	return append(out, w), nil
}

var errTooManyWords = errors.New("brace expansion too large")

// findGroup locates the first brace group in s that expands: one with a
// top-level comma or a sequence expression.
func findGroup(s string) (start, end int, alts []string, ok bool, err error) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			close := matchBrace(s, i)
			if close < 0 {
				continue
			}
			body := s[i+1 : close]
			if parts := splitTop(body); len(parts) > 1 {
				return i, close, parts, true, nil
			}
			seq, ok, err := sequence(body)
			if err != nil {
				return 0, 0, nil, false, err
			}
			if ok {
				return i, close, seq, true, nil
			}
		}
	}
	return 0, 0, nil, false, nil
}

func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTop splits s on commas that are not inside nested braces.
func splitTop(s string) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, s[last:])
}

func sequence(body string) ([]string, bool, error) {
	if m := numericRange.FindStringSubmatch(body); m != nil {
		from, err1 := strconv.Atoi(m[1])
		to, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return nil, false, nil
		}
		values, err := steps(from, to, m[3])
		if err != nil {
			return nil, false, err
		}
		width := 0
		if padded(m[1]) || padded(m[2]) {
			width = max(len(strings.TrimLeft(m[1], "+")), len(strings.TrimLeft(m[2], "+")))
		}
		out := make([]string, len(values))
		for i, v := range values {
			if width > 0 {
				out[i] = pad(v, width)
			} else {
				out[i] = strconv.Itoa(v)
			}
		}
		return out, true, nil
	}
	if m := letterRange.FindStringSubmatch(body); m != nil {
		values, err := steps(int(m[1][0]), int(m[2][0]), m[3])
		if err != nil {
			return nil, false, err
		}
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = string(rune(v))
		}
		return out, true, nil
	}
	return nil, false, nil
}

// steps lists from..to by the increment. Its length is checked before
// anything is built.
func steps(from, to int, incr string) ([]int, error) {
	step := uint64(1)
	if incr != "" {
		if n, err := strconv.Atoi(incr); err == nil && n != 0 {
			if n < 0 {
				step = -uint64(n)
			} else {
				step = uint64(n)
			}
		}
	}
	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	span := (uint64(hi) - uint64(lo)) / step
	if span >= MaxBraceWords {
		return nil, errTooManyWords
	}

	out := make([]int, span+1)
	for i := range out {
		delta := int(uint64(i) * step)
		if from <= to {
			out[i] = from + delta
		} else {
			out[i] = from - delta
		}
	}
	return out, nil
}

func padded(s string) bool {
	s = strings.TrimLeft(s, "-+")
	return len(s) > 1 && s[0] == '0'
}

func pad(v, width int) string {
	neg := v < 0
	if neg {
		v = -v
		width--
	}
	s := strconv.Itoa(v)
	for len(s) < width {
		s = "0" + s
	}
	if neg {
		s = "-" + s
	}
	return s
}
