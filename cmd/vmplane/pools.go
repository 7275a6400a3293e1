package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/render"
)

// NewPoolsCommand builds the storage and network pool command.
func NewPoolsCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Manage storage and network pools",
	}
	cmd.AddCommand(newStoragePoolsCommand(loader))
	cmd.AddCommand(newNetworkPoolsCommand(loader))
	return cmd
}

func newStoragePoolsCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Manage storage pools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List storage pools",
		Args:  cobra.NoArgs,
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, _ []string) error {
			pools, err := client.QueryStoragePools(cmd.Context())
			if err != nil {
				return err
			}
			return printTable(cmd, pools, []string{"name", "type", "target", "capacity", "allocated", "enabled"}, func(t *render.Table) {
				for _, p := range pools {
					t.Append(p.Name, p.Type, p.Target, utoa(p.Capacity), utoa(p.Allocated), yesNo(p.Enabled))
				}
			})
		}),
	})

	var cfg vmplane.StoragePoolConfig
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a storage pool",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			cfg.Name = args[0]
			if err := client.CreateStoragePool(cmd.Context(), cfg); err != nil {
				return err
			}
			return done(cmd, "storage pool "+cfg.Name+" created")
		}),
	}
	create.Flags().StringVar(&cfg.Type, "type", "local", "pool type (local, nfs, ceph)")
	create.Flags().StringVar(&cfg.Host, "host", "", "remote storage host")
	create.Flags().StringVar(&cfg.Target, "target", "", "path or export on the storage host")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an unused storage pool",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if err := client.DeleteStoragePool(cmd.Context(), args[0]); err != nil {
				return err
			}
			return done(cmd, "storage pool "+args[0]+" deleted")
		}),
	})

	return cmd
}

func newNetworkPoolsCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Manage network address pools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List network pools",
		Args:  cobra.NoArgs,
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, _ []string) error {
			pools, err := client.QueryNetworkPools(cmd.Context())
			if err != nil {
				return err
			}
			return printTable(cmd, pools, []string{"name", "gateway", "dns", "ranges", "allocated"}, func(t *render.Table) {
				for _, p := range pools {
					ranges := make([]string, 0, len(p.Ranges))
					for _, r := range p.Ranges {
						ranges = append(ranges, r.Start+"-"+r.End)
					}
					t.Append(p.Name, p.Gateway, joined(p.DNS), joined(ranges), itoa(p.Allocated))
				}
			})
		}),
	})

	var cfg vmplane.NetworkPoolConfig
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a network pool",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			cfg.Name = args[0]
			if err := client.CreateNetworkPool(cmd.Context(), cfg); err != nil {
				return err
			}
			return done(cmd, "network pool "+cfg.Name+" created")
		}),
	}
	create.Flags().StringVar(&cfg.Gateway, "gateway", "", "gateway address")
	create.Flags().StringSliceVar(&cfg.DNS, "dns", nil, "DNS servers")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an unused network pool",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if err := client.DeleteNetworkPool(cmd.Context(), args[0]); err != nil {
				return err
			}
			return done(cmd, "network pool "+args[0]+" deleted")
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add-range <pool> <start-end>",
		Short: "Add an address range to a network pool",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			r, err := parseRange(args[1])
			if err != nil {
				return err
			}
			if err := client.AddAddressRange(cmd.Context(), args[0], r); err != nil {
				return err
			}
			return done(cmd, "range "+args[1]+" added to "+args[0])
		}),
	})

	return cmd
}

func parseRange(s string) (vmplane.AddressRange, error) {
	start, end, ok := strings.Cut(s, "-")
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if !ok || start == "" || end == "" {
		return vmplane.AddressRange{}, fmt.Errorf("range %q must look like 10.0.0.10-10.0.0.50", s)
	}
	return vmplane.AddressRange{Start: start, End: end}, nil
}
