// Package cli wires the cobra command tree for the guard CLI: one
// constructor per subcommand, wired into a root via AddCommand, flags
// declared with pflag through cobra's Flags().
package cli

import (
	"github.com/spf13/cobra"
)

// ExitCoder lets a returned error carry a specific process exit code.
type ExitCoder interface {
	error
	ExitCode() int
}

type exitError struct {
	error
	code int
}

func (e *exitError) ExitCode() int { return e.code }

// ruleFailureError reports exit code 5, the rule-level failure code.
func ruleFailureError(msg string) error {
	return &exitError{error: newPlainError(msg), code: 5}
}

type plainError string

func (e plainError) Error() string { return string(e) }

func newPlainError(msg string) error { return plainError(msg) }

// NewRootCmd builds the top-level `guard` command with its validate and
// test subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "guard",
		Short:         "Evaluate policy-as-code rules against structured data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd())
	root.AddCommand(newTestCmd())
	return root
}
