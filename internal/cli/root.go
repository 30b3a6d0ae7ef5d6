// Package cli is the walletprobe command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Exit codes.
const (
	ExitPassed          = 0
	ExitThresholdFailed = 1
	ExitConfigError     = 2
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func configError(err error) error {
	return &ExitError{Code: ExitConfigError, Err: err}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "walletprobe",
		Short:   "Load generator and verifier for the wallet transfer service",
		Version: version,
		Long: `walletprobe drives a wallet/transfer service with controlled traffic
shapes (constant arrival rate, constant VUs, ramping VUs), verifies every
response and judges the run against k6-style thresholds.

Built-in profiles cover steady-state throughput, partition resiliency,
smoke, long soak and spike runs:

  walletprobe seed --secret dev-secret --count 2500
  walletprobe run --profile smoke --secret dev-secret
  walletprobe run --config baseline.yaml --json report.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newProfilesCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newSeedCommand())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return execute(context.Background(), NewRootCommand(), os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitPassed
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}

	// Flag and argument errors from cobra.
	fmt.Fprintln(stderr, "Error:", err)
	return ExitConfigError
}
