package builtin

import (
	"fmt"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

func typeCmd(c *Context, args []string) int {
	cmd := &Command{Use: "type [-t] name ..."}
	terse := cmd.Flags().Bool('t', "print only the kind of each name")

	return cmd.Run(c, args, func(names []string) int {
		status := 0
		for _, name := range names {
			kind, path := c.Shell.LookupCommand(name)
			if kind == "" {
				if !*terse {
					errorf(c, "type", "%s: not found", name)
				}
				status = 1
				continue
			}
			if *terse {
				fmt.Fprintln(c.Stdout, kind)
				continue
			}
			switch kind {
			case "keyword":
				fmt.Fprintf(c.Stdout, "%s is a shell keyword\n", name)
			case "function":
				fmt.Fprintf(c.Stdout, "%s is a function\n", name)
			case "builtin":
				fmt.Fprintf(c.Stdout, "%s is a shell builtin\n", name)
			default:
				fmt.Fprintf(c.Stdout, "%s is %s\n", name, path)
			}
		}
		return status
	})
}

// help lists the builtins or describes the named ones. An unknown name
// gets the closest builtin names as suggestions.
func help(c *Context, args []string) int {
	m := c.Shell.Builtins()
	if len(args) < 2 {
		fmt.Fprintln(c.Stdout, "gosh - Go Shell")
		fmt.Fprintln(c.Stdout)
		fmt.Fprintln(c.Stdout, "Builtin commands:")
		for _, name := range m.List() {
			b, _ := m.Lookup(name)
			fmt.Fprintf(c.Stdout, "  %-40s %s\n", b.Use, b.Short)
		}
		fmt.Fprintln(c.Stdout)
		fmt.Fprintln(c.Stdout, "For help on external commands, use 'man <command>'")
		return 0
	}

	status := 0
	for _, name := range args[1:] {
		b, ok := m.Lookup(name)
		if !ok {
			status = errorf(c, "help", "no help topics match `%s'", name)
			if s := suggest(name, m.List()); s != "" {
				fmt.Fprintf(c.Stderr, "help: did you mean %q?\n", s)
			}
			continue
		}
		fmt.Fprintf(c.Stdout, "%s: %s\n    %s\n", b.Name, b.Use, b.Short)
	}
	return status
}

// suggest returns the closest candidate to target, or "".
func suggest(target string, candidates []string) string {
	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) == 0 {
		return ""
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return best.Target
}
