// Command guard is a thin shell around the rule engine: file discovery,
// output formatting, and exit-code policy live here; parsing and
// evaluation are delegated entirely to lang/parser, loader, and eval.
package main

import (
	"fmt"
	"os"

	"github.com/aws-cloudformation/guard-lang/cmd/guard/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}
