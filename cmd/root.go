// Package cmd wires the format, mount, and scrub subcommands onto a
// single cobra root command, following the flag-bind-then-viper-load
// pattern internal/cfg defines.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "aegisfs",
	Short:         "Format, mount, and scrub AegisFS volumes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(scrubCmd)
}

// Execute runs the root command, printing any error to stderr and
// exiting with the code the failing subcommand attached (or 1 if none
// was attached, matching a generic cobra/flag-parsing failure).
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCodeOf(err))
}

// exitErr pairs an error with the process exit code it must produce,
// letting a subcommand's RunE return one value that both cobra and
// Execute can act on.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func withExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitErr{code: code, err: err}
}

func exitCodeOf(err error) int {
	var ee *exitErr
	for e := err; e != nil; {
		if x, ok := e.(*exitErr); ok {
			ee = x
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if ee != nil {
		return ee.code
	}
	return 1
}
