package main

import (
	"context"
	"fmt"
	"strconv"

	"devchain/pkg/extension"
	"devchain/pkg/servicetree"
	"devchain/pkg/ui"

	"github.com/spf13/cobra"
)

func newServiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the persisted tree of local and Azure Blockchain Service connections",
	}
	cmd.AddCommand(
		newServiceListCmd(a),
		newServiceConnectLocalCmd(a),
		newServiceConnectAzureCmd(a),
		newServiceDisconnectCmd(a),
	)
	return cmd
}

func nodeDetails(n servicetree.Node) string {
	switch p := n.Payload.(type) {
	case servicetree.LocalProject:
		s := p.Host + ":" + strconv.Itoa(p.Port)
		if p.PID != 0 {
			s += " pid " + strconv.Itoa(p.PID)
		}
		return s
	case servicetree.AzureProject:
		return p.SubscriptionID + "/" + p.ResourceGroup + "/" + p.MemberName
	}
	return ""
}

func newServiceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the service tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withState(cmd, func(_ context.Context, state *extension.State) error {
				tree := state.Tree()
				var rows [][]string
				for _, svc := range tree.Children("") {
					rows = append(rows, []string{svc.ID, svc.Label, string(svc.Tag()), ""})
					for _, p := range tree.Children(svc.ID) {
						rows = append(rows, []string{p.ID, "  " + p.Label, string(p.Tag()), nodeDetails(p)})
					}
				}
				return ui.RenderTable(cmd.OutOrStdout(), []string{"ID", "LABEL", "KIND", "DETAILS"}, rows)
			})
		},
	}
}

func newServiceConnectLocalCmd(a *app) *cobra.Command {
	var (
		label string
		host  string
		port  int
	)
	cmd := &cobra.Command{
		Use:   "connect-local",
		Short: "Add a local project under the local service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withState(cmd, func(_ context.Context, state *extension.State) error {
				node, err := state.ConnectLocal(label, host, port)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connected %q (%s)\n", node.Label, node.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "display label (defaults to host:port)")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "simulator host")
	cmd.Flags().IntVar(&port, "port", extension.DefaultLocalPort, "simulator port")
	return cmd
}

func newServiceConnectAzureCmd(a *app) *cobra.Command {
	var (
		label   string
		project servicetree.AzureProject
	)
	cmd := &cobra.Command{
		Use:   "connect-azure",
		Short: "Add an Azure Blockchain Service member under the Azure service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withState(cmd, func(_ context.Context, state *extension.State) error {
				node, err := state.ConnectAzure(label, project)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connected %q (%s)\n", node.Label, node.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "display label (defaults to the member name)")
	cmd.Flags().StringVar(&project.SubscriptionID, "subscription", "", "Azure subscription id")
	cmd.Flags().StringVar(&project.ResourceGroup, "resource-group", "", "Azure resource group")
	cmd.Flags().StringVar(&project.MemberName, "member", "", "consortium member name")
	return cmd
}

func newServiceDisconnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <id>",
		Short: "Remove a node and its children from the service tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withState(cmd, func(ctx context.Context, state *extension.State) error {
				if err := state.Disconnect(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %s\n", args[0])
				return nil
			})
		},
	}
}
