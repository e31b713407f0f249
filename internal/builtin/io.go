package builtin

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cryptexctl/gosh/v2/internal/expand"
)

var (
	unescapeOctal   = regexp.MustCompile(`\\0[0-7]{0,3}`)
	unescapeHex     = regexp.MustCompile(`\\x[0-9a-fA-F]{1,2}`)
	unescapeReplace = strings.NewReplacer(
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
		`\\`, `\`,
		`\b`, "\b",
		`\a`, "\a",
		`\f`, "\f",
		`\v`, "\v",
		`\e`, "\x1b",
	)
)

// unescape interprets echo -e escapes. stop reports a \c, which ends all
// output.
func unescape(s string) (out string, stop bool) {
	if i := strings.Index(s, `\c`); i >= 0 {
		s, stop = s[:i], true
	}
	s = unescapeOctal.ReplaceAllStringFunc(s, func(arg string) string {
		if len(arg) == 2 {
			return "\x00"
		}
		n, err := strconv.ParseUint(arg[2:], 8, 8)
		if err != nil {
			return arg
		}
		return string([]byte{byte(n)})
	})
	s = unescapeHex.ReplaceAllStringFunc(s, func(arg string) string {
		n, err := strconv.ParseUint(arg[2:], 16, 8)
		if err != nil {
			return arg
		}
		return string([]byte{byte(n)})
	})
	return unescapeReplace.Replace(s), stop
}

// echo accepts only the -n, -e and -E flags, and only as leading words;
// anything else is printed.
func echo(c *Context, args []string) int {
	args = args[1:]
	newline, escapes := true, false
	for len(args) > 0 && len(args[0]) > 1 && args[0][0] == '-' && strings.Trim(args[0][1:], "neE") == "" {
		for _, f := range args[0][1:] {
			switch f {
			case 'n':
				newline = false
			case 'e':
				escapes = true
			case 'E':
				escapes = false
			}
		}
		args = args[1:]
	}

	var sb strings.Builder
	for i, arg := range args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if escapes {
			out, stop := unescape(arg)
			sb.WriteString(out)
			if stop {
				newline = false
				break
			}
			continue
		}
		sb.WriteString(arg)
	}
	if newline {
		sb.WriteByte('\n')
	}
	if _, err := io.WriteString(c.Stdout, sb.String()); err != nil {
		return errorf(c, "echo", "write error: %v", err)
	}
	return 0
}

// readLine reads up to a newline one byte at a time so that nothing past
// the line is consumed from a shared descriptor. Without raw, a backslash
// escapes the next character and a backslash-newline continues the line.
func readLine(r io.Reader, raw bool) (line string, escaped []bool, err error) {
	var buf [1]byte
	var sb []byte
	esc := false
	for {
		n, rerr := r.Read(buf[:])
		if n == 0 {
			if rerr == nil {
				continue
			}
			if errors.Is(rerr, io.EOF) && len(sb) > 0 {
				return string(sb), escaped, nil
			}
			return string(sb), escaped, rerr
		}
		b := buf[0]
		switch {
		case esc:
			esc = false
			if b == '\n' {
				continue
			}
			sb = append(sb, b)
			escaped = append(escaped, true)
		case b == '\\' && !raw:
			esc = true
		case b == '\n':
			return string(sb), escaped, nil
		default:
			sb = append(sb, b)
			escaped = append(escaped, false)
		}
	}
}

func read(c *Context, args []string) int {
	cmd := &Command{Use: "read [-r] [-p prompt] [-a array] [name ...]"}
	raw := cmd.Flags().Bool('r', "do not treat backslashes as escapes")
	prompt := cmd.Flags().String('p', "", "print prompt before reading")
	array := cmd.Flags().String('a', "", "assign words to an array")

	return cmd.Run(c, args, func(names []string) int {
		vars := c.Shell.Vars()
		if *prompt != "" {
			fmt.Fprint(c.Stderr, *prompt)
		}
		line, escaped, err := readLine(c.Stdin, *raw)
		status := 0
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return errorf(c, "read", "%v", err)
			}
			status = 1
		}

		ifs := expand.DefaultIFS
		if v, ok := vars.Lookup("IFS"); ok {
			ifs = v.Scalar()
		}

		if *array != "" {
			if err := vars.SetArray(*array, splitRead(line, escaped, ifs, 0)); err != nil {
				return errorf(c, "read", "%v", err)
			}
			return status
		}
		if len(names) == 0 {
			names = []string{"REPLY"}
			ifs = ""
		}
		fields := splitRead(line, escaped, ifs, len(names))
		for i, name := range names {
			value := ""
			if i < len(fields) {
				value = fields[i]
			}
			if err := vars.Set(name, value); err != nil {
				return errorf(c, "read", "%v", err)
			}
		}
		return status
	})
}

// splitRead splits line on unescaped IFS characters into at most max
// fields; the last field keeps the rest of the line minus trailing IFS
// whitespace. max 0 means no limit.
func splitRead(line string, escaped []bool, ifs string, max int) []string {
	isSep := func(i int) bool { return !escaped[i] && strings.IndexByte(ifs, line[i]) >= 0 }
	isSpace := func(i int) bool { return isSep(i) && strings.IndexByte(" \t\n", line[i]) >= 0 }

	i := 0
	for i < len(line) && isSpace(i) {
		i++
	}
	var fields []string
	for i < len(line) {
		if max > 0 && len(fields) == max-1 {
			end := len(line)
			for end > i && isSpace(end-1) {
				end--
			}
			return append(fields, line[i:end])
		}
		start := i
		for i < len(line) && !isSep(i) {
			i++
		}
		fields = append(fields, line[start:i])
		for i < len(line) && isSpace(i) {
			i++
		}
		if i < len(line) && isSep(i) {
			i++
			for i < len(line) && isSpace(i) {
				i++
			}
		}
	}
	return fields
}
