package main

import (
	"context"

	"github.com/spf13/cobra"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/render"
)

// NewSnapshotsCommand builds the snapshot management command.
func NewSnapshotsCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"snapshot"},
		Short:   "Manage guest snapshots",
	}
	cmd.PersistentFlags().Bool("no-wait", false, "print the task id instead of waiting for completion")

	cmd.AddCommand(&cobra.Command{
		Use:   "list <guest>",
		Short: "List snapshots of a guest",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			snaps, err := client.QuerySnapshots(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTable(cmd, snaps, []string{"id", "name", "created", "current", "description"}, func(t *render.Table) {
				for _, s := range snaps {
					t.Append(s.ID, s.Name, s.CreatedTime, yesNo(s.Current), s.Description)
				}
			})
		}),
	})

	var description string
	create := &cobra.Command{
		Use:   "create <guest> <name>",
		Short: "Snapshot a guest",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			spec := vmplane.SnapshotSpec{Guest: args[0], Name: args[1], Description: description}
			if noWait(cmd) {
				task, err := client.TryCreateSnapshot(cmd.Context(), spec)
				if err != nil {
					return err
				}
				return printTask(cmd, "task", task)
			}
			id, err := client.CreateSnapshot(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return printTask(cmd, "snapshot", id)
		}),
	}
	create.Flags().StringVarP(&description, "description", "d", "", "snapshot description")
	cmd.AddCommand(create)

	cmd.AddCommand(newSnapshotTaskCommand(loader, "restore", "Restore a stopped guest to a snapshot",
		(*vmplane.Client).TryRestoreSnapshot, (*vmplane.Client).RestoreSnapshot, "restored"))
	cmd.AddCommand(newSnapshotTaskCommand(loader, "delete", "Delete a snapshot",
		(*vmplane.Client).TryDeleteSnapshot, (*vmplane.Client).DeleteSnapshot, "deleted"))

	return cmd
}

// NewVolumesCommand builds the volume management command.
func NewVolumesCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "volumes",
		Aliases: []string{"volume"},
		Short:   "Manage guest volumes",
	}
	cmd.PersistentFlags().Bool("no-wait", false, "print the task id instead of waiting for completion")

	cmd.AddCommand(&cobra.Command{
		Use:   "list <guest>",
		Short: "List volumes attached to a guest",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			g, err := client.GetGuest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTable(cmd, g.Volumes, []string{"id", "size", "pool"}, func(t *render.Table) {
				for _, v := range g.Volumes {
					t.Append(v.ID, utoa(v.Size), v.Pool)
				}
			})
		}),
	})

	var spec vmplane.VolumeSpec
	create := &cobra.Command{
		Use:   "create <guest>",
		Short: "Attach a new volume to a guest",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			spec.Guest = args[0]
			if noWait(cmd) {
				task, err := client.TryCreateVolume(cmd.Context(), spec)
				if err != nil {
					return err
				}
				return printTask(cmd, "task", task)
			}
			id, err := client.CreateVolume(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return printTask(cmd, "volume", id)
		}),
	}
	create.Flags().Uint64Var(&spec.Size, "size", 10240, "size in MiB")
	create.Flags().StringVar(&spec.Pool, "pool", "", "storage pool")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <guest> <volume>",
		Short: "Detach and delete a volume",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if noWait(cmd) {
				task, err := client.TryDeleteVolume(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(cmd, "task", task)
			}
			if err := client.DeleteVolume(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return done(cmd, "volume "+args[1]+" deleted")
		}),
	})

	return cmd
}

func newSnapshotTaskCommand(
	loader *vmplane.Loader,
	use, short string,
	try func(*vmplane.Client, context.Context, string, string) (string, error),
	wait func(*vmplane.Client, context.Context, string, string) error,
	doneMsg string,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <guest> <snapshot>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if noWait(cmd) {
				task, err := try(client, cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(cmd, "task", task)
			}
			if err := wait(client, cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return done(cmd, "snapshot "+args[1]+" "+doneMsg)
		}),
	}
}
