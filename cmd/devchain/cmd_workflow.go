package main

import (
	"context"
	"fmt"

	"devchain/pkg/extension"

	"github.com/spf13/cobra"
)

func newWorkflowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Scaffold Logic App workflows from compiled contracts",
	}

	var output string
	generate := &cobra.Command{
		Use:   "generate <contract>",
		Short: "Generate workflow definitions and a manifest for a contract artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withState(cmd, func(_ context.Context, state *extension.State) error {
				files, err := state.GenerateWorkflow(args[0], output)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f.Path())
				}
				return nil
			})
		},
	}
	generate.Flags().StringVarP(&output, "output", "o", "workflows", "output directory")
	cmd.AddCommand(generate)
	return cmd
}
