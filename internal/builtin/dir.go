package builtin

import (
	"fmt"
	"os"
	"path/filepath"
)

func cd(c *Context, args []string) int {
	cmd := &Command{Use: "cd [-L|-P] [dir]"}
	physical := cmd.Flags().Bool('P', "resolve symbolic links")
	cmd.Flags().Bool('L', "keep symbolic links")

	return cmd.Run(c, args, func(operands []string) int {
		vars := c.Shell.Vars()
		var dir string
		switch {
		case len(operands) > 1:
			return errorf(c, "cd", "too many arguments")
		case len(operands) == 0:
			dir = vars.Get("HOME")
			if dir == "" {
				return errorf(c, "cd", "HOME not set")
			}
		case operands[0] == "-":
			dir = vars.Get("OLDPWD")
			if dir == "" {
				return errorf(c, "cd", "OLDPWD not set")
			}
			fmt.Fprintln(c.Stdout, dir)
		default:
			dir = operands[0]
		}

		if !filepath.IsAbs(dir) {
			dir = filepath.Join(c.Shell.Dir(), dir)
		}
		dir = filepath.Clean(dir)
		if *physical {
			if resolved, err := filepath.EvalSymlinks(dir); err == nil {
				dir = resolved
			}
		}
		info, err := os.Stat(dir)
		if err != nil {
			return errorf(c, "cd", "%s: no such file or directory", operandOr(operands, dir))
		}
		if !info.IsDir() {
			return errorf(c, "cd", "%s: not a directory", operandOr(operands, dir))
		}

		old := c.Shell.Dir()
		if err := c.Shell.Chdir(dir); err != nil {
			return errorf(c, "cd", "%v", err)
		}
		_ = vars.Set("OLDPWD", old)
		_ = vars.Set("PWD", dir)
		return 0
	})
}

func operandOr(operands []string, def string) string {
	if len(operands) > 0 {
		return operands[0]
	}
	return def
}

func pwd(c *Context, args []string) int {
	cmd := &Command{Use: "pwd [-L|-P]"}
	physical := cmd.Flags().Bool('P', "print the physical directory")
	cmd.Flags().Bool('L', "print the logical directory")

	return cmd.Run(c, args, func([]string) int {
		dir := c.Shell.Dir()
		if *physical {
			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return errorf(c, "pwd", "%v", err)
			}
			dir = resolved
		}
		fmt.Fprintln(c.Stdout, dir)
		return 0
	})
}
