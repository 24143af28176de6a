package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"devchain/pkg/debugger"
	"devchain/pkg/extension"
	"devchain/pkg/ui"

	"github.com/spf13/cobra"
)

func networkArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func newTxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Browse transactions on a network",
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent [network]",
		Short: "List the most recent transactions, newest first, labelled with contract and method",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withState(cmd, func(ctx context.Context, state *extension.State) error {
				records, err := state.RecentTransactions(ctx, networkArg(args), limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{strconv.FormatUint(r.BlockNumber, 10), r.Hash.Hex(), r.Label()})
				}
				return ui.RenderTable(cmd.OutOrStdout(), []string{"BLOCK", "HASH", "CALL"}, rows)
			})
		},
	}
	recent.Flags().IntVar(&limit, "limit", debugger.DefaultLimit, "maximum number of transactions")
	cmd.AddCommand(recent)
	return cmd
}

func newDebugCmd(a *app) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "debug [network]",
		Short: "Pick a transaction and start a truffle debug session",
		Long: `On a local network the recent transactions are offered in a picker;
on a remote network the transaction hash is entered manually.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withState(cmd, func(ctx context.Context, state *extension.State) error {
				cfg, err := state.DebugTransaction(ctx, networkArg(args))
				if err != nil {
					return err
				}
				if printOnly {
					out, err := json.MarshalIndent(cfg, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(out))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print-config", false, "print the launch configuration after the session ends")
	return cmd
}
