package builtin

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/cryptexctl/gosh/v2/internal/variables"
)

// Quote renders s as a shell word that reads back as s.
func Quote(s string) string {
	if q, err := syntax.Quote(s, syntax.LangBash); err == nil {
		return q
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// splitAssign splits name=value. value is nil when there is no '='.
func splitAssign(arg string) (string, *string) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return arg, nil
	}
	return name, &value
}

func printVar(c *Context, prefix string, v *variables.Variable) {
	switch {
	case v.Array:
		var quoted []string
		for i, s := range v.Values {
			switch {
			case !v.Has(i):
			case v.Sparse():
				quoted = append(quoted, fmt.Sprintf("[%d]=%s", i, Quote(s)))
			default:
				quoted = append(quoted, Quote(s))
			}
		}
		fmt.Fprintf(c.Stdout, "%s%s=(%s)\n", prefix, v.Name, strings.Join(quoted, " "))
	case prefix != "" && v.Value == "" && !v.ReadOnly && !v.Exported:
		fmt.Fprintf(c.Stdout, "%s%s\n", prefix, v.Name)
	default:
		fmt.Fprintf(c.Stdout, "%s%s=%s\n", prefix, v.Name, Quote(v.Value))
	}
}

func export(c *Context, args []string) int {
	cmd := &Command{Use: "export [-p] [name[=value] ...]"}
	cmd.Flags().Bool('p', "print exported variables")

	return cmd.Run(c, args, func(operands []string) int {
		vars := c.Shell.Vars()
		if len(operands) == 0 {
			for _, v := range vars.All() {
				if v.Exported {
					printVar(c, "export ", v)
				}
			}
			return 0
		}
		status := 0
		for _, arg := range operands {
			name, value := splitAssign(arg)
			if err := vars.Export(name, value); err != nil {
				status = errorf(c, "export", "%v", err)
			}
		}
		return status
	})
}

func readonly(c *Context, args []string) int {
	cmd := &Command{Use: "readonly [-p] [name[=value] ...]"}
	cmd.Flags().Bool('p', "print read-only variables")

	return cmd.Run(c, args, func(operands []string) int {
		vars := c.Shell.Vars()
		if len(operands) == 0 {
			for _, v := range vars.All() {
				if v.ReadOnly {
					printVar(c, "readonly ", v)
				}
			}
			return 0
		}
		status := 0
		for _, arg := range operands {
			name, value := splitAssign(arg)
			if !variables.ValidName(name) {
				status = errorf(c, "readonly", "%s: not a valid identifier", name)
				continue
			}
			if err := vars.SetReadOnly(name, value); err != nil {
				status = errorf(c, "readonly", "%v", err)
			}
		}
		return status
	})
}

func local(c *Context, args []string) int {
	vars := c.Shell.Vars()
	status := 0
	for _, arg := range args[1:] {
		name, value := splitAssign(arg)
		if err := vars.Local(name, value); err != nil {
			status = errorf(c, "local", "%v", err)
		}
	}
	return status
}

func unset(c *Context, args []string) int {
	cmd := &Command{Use: "unset [-f] [-v] name ..."}
	functions := cmd.Flags().Bool('f', "unset functions")
	variablesOnly := cmd.Flags().Bool('v', "unset variables")

	return cmd.Run(c, args, func(operands []string) int {
		vars := c.Shell.Vars()
		status := 0
		for _, name := range operands {
			if *functions {
				c.Shell.UnsetFunction(name)
				continue
			}
			var err error
			if base, index, ok := elementRef(name); ok {
				err = vars.UnsetElement(base, index)
			} else if _, found := vars.Lookup(name); found || *variablesOnly {
				err = vars.Unset(name)
			} else {
				c.Shell.UnsetFunction(name)
			}
			if err != nil {
				status = errorf(c, "unset", "%v", err)
			}
		}
		return status
	})
}

// elementRef splits name[n].
func elementRef(s string) (string, int, bool) {
	open := strings.IndexByte(s, '[')
	if open <= 0 || !strings.HasSuffix(s, "]") {
		return "", 0, false
	}
	var index int
	if _, err := fmt.Sscan(s[open+1:len(s)-1], &index); err != nil {
		return "", 0, false
	}
	return s[:open], index, true
}

func shift(c *Context, args []string) int {
	n, err := count(args[1:], 1)
	if err != nil {
		return errorf(c, "shift", "%v", err)
	}
	if err := c.Shell.Vars().Shift(n); err != nil {
		return errorf(c, "shift", "%d: %v", n, err)
	}
	return 0
}

// optionLetters maps set's single-letter flags to option names.
var optionLetters = map[byte]string{
	'e': "errexit",
	'f': "noglob",
	'u': "nounset",
	'x': "xtrace",
	'b': "notify",
}

// set takes its options by hand: '+' turns a flag off, which getopt
// cannot express.
func set(c *Context, args []string) int {
	vars := c.Shell.Vars()
	args = args[1:]
	if len(args) == 0 {
		for _, v := range vars.All() {
			printVar(c, "", v)
		}
		return 0
	}

	for len(args) > 0 {
		arg := args[0]
		if arg == "--" {
			vars.SetArgs(args[1:])
			return 0
		}
		if len(arg) < 2 || arg[0] != '-' && arg[0] != '+' {
			break
		}
		on := arg[0] == '-'
		args = args[1:]
		for i := 1; i < len(arg); i++ {
			if arg[i] == 'o' {
				if len(args) == 0 {
					printOptions(c, on)
					continue
				}
				if err := c.Shell.SetOption(args[0], on); err != nil {
					return errorf(c, "set", "%v", err)
				}
				args = args[1:]
				continue
			}
			name, ok := optionLetters[arg[i]]
			if !ok {
				fmt.Fprintf(c.Stderr, "set: %c%c: invalid option\n", arg[0], arg[i])
				return 2
			}
			if err := c.Shell.SetOption(name, on); err != nil {
				return errorf(c, "set", "%v", err)
			}
		}
	}
	if len(args) > 0 {
		vars.SetArgs(args)
	}
	return 0
}

func printOptions(c *Context, human bool) {
	for _, name := range c.Shell.OptionNames() {
		on := c.Shell.Option(name)
		if human {
			state := "off"
			if on {
				state = "on"
			}
			fmt.Fprintf(c.Stdout, "%-15s\t%s\n", name, state)
			continue
		}
		flag := "+o"
		if on {
			flag = "-o"
		}
		fmt.Fprintf(c.Stdout, "set %s %s\n", flag, name)
	}
}
