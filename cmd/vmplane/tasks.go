package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/render"
)

// NewTasksCommand builds the task command.
func NewTasksCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Inspect asynchronous tasks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <task>",
		Short: "Show the current state of a task",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			task, err := client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTaskState(cmd, task)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "wait <task>",
		Short: "Wait for a task to complete",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			task, err := client.WaitTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTaskState(cmd, task)
		}),
	})

	return cmd
}

func printTaskState(cmd *cobra.Command, task vmplane.Task) error {
	if wantJSON(cmd) {
		return printJSON(cmd, task)
	}
	pairs := [][2]string{
		{"id", task.ID},
		{"type", string(task.Type)},
		{"status", string(task.Status)},
		{"progress", itoa(task.Progress) + "%"},
	}
	for _, kv := range [][2]string{
		{"guest", task.Guest},
		{"snapshot", task.Snapshot},
		{"volume", task.Volume},
		{"node", task.Node},
		{"error", task.Error},
	} {
		if kv[1] != "" {
			pairs = append(pairs, kv)
		}
	}
	return render.KeyValues(cmd.OutOrStdout(), pairs...)
}
