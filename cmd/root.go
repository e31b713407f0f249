// Package cmd holds the gosh command line.
package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cryptexctl/gosh/v2/internal/config"
	"github.com/cryptexctl/gosh/v2/internal/shell"
)

var (
	cfgPath     string
	command     string
	interactive bool
	readStdin   bool
	debug       bool

	// status is the exit status of the last shell run.
	status int
)

var rootCmd = &cobra.Command{
	Use:   "gosh [flags] [script [args...]]",
	Short: "Go Shell",
	Long: `gosh is an interactive shell with job control.

With -c it runs the given command string; further arguments set $0 and
the positional parameters. Otherwise it runs the named script, or reads
commands from standard input.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDefault(afero.NewOsFs(), cfgPath)
		if err != nil {
			return err
		}
		cfg.Command = command
		cfg.Interactive = interactive
		cfg.ReadStdin = readStdin
		cfg.Debug = debug
		cfg.ScriptArgs = args
		if command == "" && !readStdin && len(args) > 0 {
			cfg.ScriptFile, cfg.ScriptArgs = args[0], args[1:]
		}

		status = shell.New(cfg).Run(context.Background())
		return nil
	},
}

// Execute runs the command line and returns the process exit status.
func Execute(version, buildTime, gitCommit string) int {
	shell.Version = version
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("gosh {{.Version}} (built %s, commit %s)\nGo version: %s %s/%s\n",
		buildTime, gitCommit, runtime.Version(), runtime.GOOS, runtime.GOARCH))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "gosh: %v\n", err)
		return 2
	}
	return status
}

func init() {
	flags := rootCmd.Flags()
	flags.SetInterspersed(false)
	flags.StringVarP(&command, "command", "c", "", "run `string` as a command and exit")
	flags.BoolVarP(&interactive, "interactive", "i", false, "force an interactive shell")
	flags.BoolVarP(&readStdin, "stdin", "s", false, "read commands from standard input; operands set the positional parameters")
	flags.StringVar(&cfgPath, "config", "", "config file or directory (default: search the user config dir)")
	flags.BoolVar(&debug, "debug", false, "log shell internals to stderr")
}
