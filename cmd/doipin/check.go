package main

import (
	"github.com/spf13/cobra"

	"github.com/jprybylski/doipin/internal/core"
)

func newCheckCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare every dataset with the lockfile and apply its policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitWith(core.Check(cmd.Context(), s.config(), s.lock()))
		},
	}
}

func newFetchCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [ID...]",
		Short: "Download the named datasets, or all of them, and record them in the lockfile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitWith(core.Fetch(cmd.Context(), s.config(), s.lock(), args))
		},
	}
}
