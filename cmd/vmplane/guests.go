package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/render"
)

// NewGuestsCommand builds the guest management command.
func NewGuestsCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "guests",
		Aliases: []string{"guest"},
		Short:   "Manage guests",
	}
	cmd.PersistentFlags().Bool("no-wait", false, "print the task id instead of waiting for completion")

	cmd.AddCommand(newGuestsListCommand(loader))
	cmd.AddCommand(newGuestsGetCommand(loader))
	cmd.AddCommand(newGuestsCreateCommand(loader))
	cmd.AddCommand(newGuestsTaskCommand(loader, "delete", "Delete a stopped guest",
		(*vmplane.Client).TryDeleteGuest, (*vmplane.Client).DeleteGuest, "deleted"))
	cmd.AddCommand(newGuestsTaskCommand(loader, "start", "Start a guest",
		(*vmplane.Client).TryStartGuest, (*vmplane.Client).StartGuest, "started"))
	cmd.AddCommand(newGuestsTaskCommand(loader, "restart", "Restart a running guest",
		(*vmplane.Client).TryRestartGuest, (*vmplane.Client).RestartGuest, "restarted"))
	cmd.AddCommand(newGuestsStopCommand(loader))
	cmd.AddCommand(newGuestsRenameCommand(loader))
	cmd.AddCommand(newGuestsResizeCommand(loader))

	return cmd
}

func noWait(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("no-wait")
	return v
}

func newGuestsListCommand(loader *vmplane.Loader) *cobra.Command {
	var filter vmplane.GuestFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List guests",
		Args:  cobra.NoArgs,
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, _ []string) error {
			guests, err := client.QueryGuests(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printTable(cmd, guests, []string{"id", "name", "state", "node", "cores", "memory", "addresses"}, func(t *render.Table) {
				for _, g := range guests {
					t.Append(g.ID, g.Name, string(g.State), g.Node, itoa(g.Cores), utoa(g.Memory), joined(g.Addresses))
				}
			})
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&filter.Node, "node", "", "only guests on this node")
	flags.StringVar(&filter.Pool, "pool", "", "only guests in this storage pool")
	flags.IntVar(&filter.Offset, "offset", 0, "skip this many guests")
	flags.IntVar(&filter.Limit, "limit", 0, "return at most this many guests (0 is unlimited)")

	return cmd
}

func newGuestsGetCommand(loader *vmplane.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "get <guest>",
		Short: "Show one guest",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			g, err := client.GetGuest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd, g)
			}
			pairs := [][2]string{
				{"id", g.ID},
				{"name", g.Name},
				{"state", string(g.State)},
				{"node", g.Node},
				{"cores", itoa(g.Cores)},
				{"memory", utoa(g.Memory) + " MiB"},
				{"addresses", joined(g.Addresses)},
				{"created", g.CreatedTime},
			}
			for _, vol := range g.Volumes {
				pairs = append(pairs, [2]string{"volume " + vol.ID, fmt.Sprintf("%d MiB %s", vol.Size, vol.Pool)})
			}
			return render.KeyValues(cmd.OutOrStdout(), pairs...)
		}),
	}
}

func newGuestsCreateCommand(loader *vmplane.Loader) *cobra.Command {
	var spec vmplane.GuestSpec
	var disks []uint

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a guest",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			spec.Name = args[0]
			spec.Disks = spec.Disks[:0]
			for _, d := range disks {
				spec.Disks = append(spec.Disks, uint64(d))
			}
			if noWait(cmd) {
				task, err := client.TryCreateGuest(cmd.Context(), spec)
				if err != nil {
					return err
				}
				return printTask(cmd, "task", task)
			}
			id, err := client.CreateGuest(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return printTask(cmd, "guest", id)
		}),
	}

	flags := cmd.Flags()
	flags.IntVar(&spec.Cores, "cores", 1, "virtual cores")
	flags.Uint64Var(&spec.Memory, "memory", 1024, "memory in MiB")
	flags.UintSliceVar(&disks, "disk", nil, "disk size in MiB (repeatable)")
	flags.StringVar(&spec.Template, "template", "", "image template")
	flags.StringVar(&spec.StoragePool, "storage-pool", "", "storage pool for disks")
	flags.StringVar(&spec.NetworkPool, "network-pool", "", "network pool for addresses")

	return cmd
}

// newGuestsTaskCommand builds a single-guest command backed by a task.
func newGuestsTaskCommand(
	loader *vmplane.Loader,
	use, short string,
	try func(*vmplane.Client, context.Context, string) (string, error),
	wait func(*vmplane.Client, context.Context, string) error,
	doneMsg string,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <guest>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if noWait(cmd) {
				task, err := try(client, cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printTask(cmd, "task", task)
			}
			if err := wait(client, cmd.Context(), args[0]); err != nil {
				return err
			}
			return done(cmd, "guest "+args[0]+" "+doneMsg)
		}),
	}
}

func newGuestsStopCommand(loader *vmplane.Loader) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stop <guest>",
		Short: "Stop a guest",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if noWait(cmd) {
				task, err := client.TryStopGuest(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				return printTask(cmd, "task", task)
			}
			if err := client.StopGuest(cmd.Context(), args[0], force); err != nil {
				return err
			}
			return done(cmd, "guest "+args[0]+" stopped")
		}),
	}

	cmd.Flags().BoolVar(&force, "force", false, "power off instead of a clean shutdown")

	return cmd
}

func newGuestsRenameCommand(loader *vmplane.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <guest> <name>",
		Short: "Rename a guest",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			name := strings.TrimSpace(args[1])
			if name == "" {
				return fmt.Errorf("name is required")
			}
			if err := client.ModifyGuestName(cmd.Context(), args[0], name); err != nil {
				return err
			}
			return done(cmd, "guest "+args[0]+" renamed")
		}),
	}
}

func newGuestsResizeCommand(loader *vmplane.Loader) *cobra.Command {
	var cores int
	var memory uint64

	cmd := &cobra.Command{
		Use:   "resize <guest>",
		Short: "Change cores or memory of a stopped guest",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("cores") && !flags.Changed("memory") {
				return fmt.Errorf("--cores or --memory is required")
			}
			ctx := cmd.Context()
			var tasks []string
			if flags.Changed("cores") {
				if noWait(cmd) {
					task, err := client.TryModifyGuestCores(ctx, args[0], cores)
					if err != nil {
						return err
					}
					tasks = append(tasks, task)
				} else if err := client.ModifyGuestCores(ctx, args[0], cores); err != nil {
					return err
				}
			}
			if flags.Changed("memory") {
				if noWait(cmd) {
					task, err := client.TryModifyGuestMemory(ctx, args[0], memory)
					if err != nil {
						return err
					}
					tasks = append(tasks, task)
				} else if err := client.ModifyGuestMemory(ctx, args[0], memory); err != nil {
					return err
				}
			}
			if noWait(cmd) {
				if wantJSON(cmd) {
					return printJSON(cmd, map[string][]string{"tasks": tasks})
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tasks, "\n"))
				return err
			}
			return done(cmd, "guest "+args[0]+" resized")
		}),
	}

	cmd.Flags().IntVar(&cores, "cores", 0, "virtual cores")
	cmd.Flags().Uint64Var(&memory, "memory", 0, "memory in MiB")

	return cmd
}
