package main

import (
	"github.com/spf13/cobra"
)

func newSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run offline tank simulations",
		Long:  "Run tank level simulations with various configurations, batch-style, and write their results to disk.",
	}

	cmd.AddCommand(newSimStepCmd())

	return cmd
}
