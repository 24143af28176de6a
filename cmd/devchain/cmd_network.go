package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"devchain/pkg/extension"
	"devchain/pkg/network"
	"devchain/pkg/truffle"
	"devchain/pkg/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newNetworkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "List, add, start and watch networks of the truffle project",
	}
	cmd.AddCommand(
		newNetworkListCmd(a),
		newNetworkAddCmd(a),
		newNetworkStartCmd(a),
		newNetworkWatchCmd(a),
	)
	return cmd
}

func loadRegistry(a *app) (*network.Registry, error) {
	cfg, _, err := truffle.Load(a.settings.ProjectDir, truffle.DefaultDirectories())
	if err != nil {
		return nil, err
	}
	return network.NewRegistry(cfg), nil
}

func renderNetworks(cmd *cobra.Command, registry *network.Registry) error {
	rows := make([][]string, 0)
	for _, name := range registry.Names() {
		entry, err := registry.Resolve(name)
		if err != nil {
			return err
		}
		endpoint, err := network.Endpoint(entry)
		if err != nil {
			endpoint = "-"
		}
		kind := "remote"
		if network.IsLocal(entry) {
			kind = "local"
		}
		rows = append(rows, []string{name, kind, entry.Options.NetworkID, endpoint})
	}
	return ui.RenderTable(cmd.OutOrStdout(), []string{"NAME", "KIND", "NETWORK ID", "ENDPOINT"}, rows)
}

func newNetworkListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List networks defined in truffle-config.js",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(a)
			if err != nil {
				return err
			}
			return renderNetworks(cmd, registry)
		},
	}
}

func newNetworkAddCmd(a *app) *cobra.Command {
	var (
		opts     truffle.NetworkOptions
		provider string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a network definition to truffle-config.js",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := truffle.FindConfigFile(a.settings.ProjectDir)
			if err != nil {
				return err
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if provider != "" {
				opts.Provider = &truffle.Provider{RawExpression: strconv.Quote(provider), ResolvedURL: provider}
			}
			out, err := truffle.InsertNetwork(string(src), truffle.NetworkEntry{Name: args[0], Options: opts})
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
				return err
			}
			a.logger.Info("network added", zap.String("network", args[0]), zap.String("file", path))
			fmt.Fprintf(cmd.OutOrStdout(), "Added network %q to %s\n", args[0], path)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Host, "host", "", "network host")
	cmd.Flags().Uint64Var(&opts.Port, "port", 0, "network port")
	cmd.Flags().StringVar(&opts.NetworkID, "network-id", "*", "network id")
	cmd.Flags().StringVar(&opts.From, "from", "", "default sender address")
	cmd.Flags().Uint64Var(&opts.Gas, "gas", 0, "gas limit")
	cmd.Flags().Uint64Var(&opts.GasPrice, "gas-price", 0, "gas price in wei")
	cmd.Flags().StringVar(&provider, "provider", "", "provider URL")
	return cmd
}

func newNetworkStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start [network]",
		Short: "Start the local simulator for a network and keep it running until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return a.withState(cmd, func(ctx context.Context, state *extension.State) error {
				h, node, err := state.StartLocalNetwork(ctx, name)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s on port %d (pid %d) for %q\n", h.Status, h.Port, h.PID, node.Label)
				if h.External {
					fmt.Fprintln(out, "An existing simulator was already listening; it will be left running.")
				}
				if diag := state.Supervisor().Diagnostics(h.Port); len(diag) > 0 {
					fmt.Fprintln(out, strings.Join(diag, "\n"))
				}

				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
				defer cancel()
				if _, err := state.StopLocalNetwork(stopCtx, h.Port); err != nil {
					return err
				}
				fmt.Fprintf(out, "Stopped simulator on port %d\n", h.Port)
				return nil
			})
		},
	}
}

func newNetworkWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload and print networks whenever truffle-config.js changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(a)
			if err != nil {
				return err
			}
			if err := renderNetworks(cmd, registry); err != nil {
				return err
			}

			ctx := cmd.Context()
			w, err := network.Watch(ctx, a.settings.ProjectDir, registry, truffle.DefaultDirectories(), a.logger,
				func(_ *truffle.Configuration, err error) {
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "configuration rejected: %v\n", err)
						return
					}
					renderNetworks(cmd, registry)
				})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return w.Close()
		},
	}
}
