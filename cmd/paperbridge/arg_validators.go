package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// usageError marks errors caused by how the command was invoked.
type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func (e usageError) Unwrap() error {
	return e.err
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return usageError{err: errors.New(message)}
		}
		return nil
	}
}

func requireNoArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{err: errors.New("unexpected argument: " + args[0] + " (see '" + cmd.CommandPath() + " --help')")}
	}
	return nil
}
