// Package cli implements the hive command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

// Exit codes returned by Execute.
const (
	ExitOK         = 0
	ExitFailed     = 1
	ExitConfigured = 2
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// app holds what every command shares: output streams and settings.
type app struct {
	stdout io.Writer
	stderr io.Writer
	v      *viper.Viper
}

// NewRootCmd builds the command tree. Settings are read from flags first,
// then HIVE_* environment variables (HIVE_LOG_LEVEL, HIVE_USERS, ...).
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, v: viper.New()}
	a.v.SetEnvPrefix("HIVE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:     "hive",
		Short:   "A swarm of virtual users for HTTP load testing",
		Version: version,
		Long: `Hive runs a population of virtual users against an HTTP service.
Each user repeatedly picks a weighted task, issues its requests and waits,
while hive ramps the population at a fixed spawn rate and aggregates
per-endpoint latency and failure statistics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.Bool("no-color", false, "disable colored output")
	_ = a.v.BindPFlags(flags)

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newValidateCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	return ExecuteContext(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteContext runs the CLI with explicit arguments and streams.
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.err)
		}
		return exitErr.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return ExitFailed
}
