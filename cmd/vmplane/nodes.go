package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/render"
)

// NewNodesCommand builds the node command.
func NewNodesCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "nodes",
		Aliases: []string{"node"},
		Short:   "Inspect and schedule compute nodes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List nodes",
		Args:  cobra.NoArgs,
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, _ []string) error {
			nodes, err := client.QueryNodes(cmd.Context())
			if err != nil {
				return err
			}
			return printTable(cmd, nodes, []string{"name", "address", "enabled", "cores", "memory", "guests"}, func(t *render.Table) {
				for _, n := range nodes {
					t.Append(n.Name, n.Address, yesNo(n.Enabled), itoa(n.Cores), utoa(n.Memory), itoa(n.Guests))
				}
			})
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "enable <node>",
		Short: "Allow new guests on a node",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if err := client.EnableNode(cmd.Context(), args[0]); err != nil {
				return err
			}
			return done(cmd, "node "+args[0]+" enabled")
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disable <node>",
		Short: "Stop placing guests on a node",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if err := client.DisableNode(cmd.Context(), args[0]); err != nil {
				return err
			}
			return done(cmd, "node "+args[0]+" disabled")
		}),
	})

	return cmd
}
