package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/vmplane"
)

// NewRootCommand builds the root CLI command.
func NewRootCommand(loader *vmplane.Loader) *cobra.Command {
	var configFile string
	var bindErr error

	cmd := &cobra.Command{
		Use:           "vmplane",
		Short:         "Manage guests, storage and users on a virtualization control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				loader.SetConfigFile(configFile)
			}
			return bindErr
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.StringP("endpoint", "e", vmplane.DefaultClientEndpoint, "control plane API base URL")
	flags.StringP("user", "u", "", "user name")
	flags.String("device", "", "device name sent on login (default host name)")
	flags.String("auth-file", vmplane.DefaultAuthPath(), "token store path")
	flags.String("identity", vmplane.DefaultIdentityPath(), "age identity sealing the token store (empty stores plaintext)")
	flags.String("tls-dir", vmplane.DefaultTLSDir(), "directory holding a local CA to trust")
	flags.Duration("task-timeout", vmplane.DefaultTaskTimeout, "how long to wait for a task")
	flags.Duration("task-interval", vmplane.DefaultTaskInterval, "pause between task polls")
	flags.Bool("json", false, "print JSON instead of tables")

	v := loader.Viper()
	bind := func(key, name string) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			bindErr = err
		}
	}
	bind("client.endpoint", "endpoint")
	bind("client.user", "user")
	bind("client.device", "device")
	bind("client.auth_file", "auth-file")
	bind("client.identity", "identity")
	bind("client.tls_dir", "tls-dir")
	bind("tasks.timeout", "task-timeout")
	bind("tasks.interval", "task-interval")

	cmd.AddCommand(NewLoginCommand(loader))
	cmd.AddCommand(NewLoginKeyCommand(loader))
	cmd.AddCommand(NewLogoutCommand(loader))
	cmd.AddCommand(NewWhoamiCommand(loader))
	cmd.AddCommand(NewGuestsCommand(loader))
	cmd.AddCommand(NewSnapshotsCommand(loader))
	cmd.AddCommand(NewVolumesCommand(loader))
	cmd.AddCommand(NewPoolsCommand(loader))
	cmd.AddCommand(NewNodesCommand(loader))
	cmd.AddCommand(NewUsersCommand(loader))
	cmd.AddCommand(NewTasksCommand(loader))
	cmd.AddCommand(NewKeysCommand(loader))
	cmd.AddCommand(NewMonitorCommand(loader))
	cmd.AddCommand(NewSimulateCommand(loader))
	cmd.AddCommand(NewTLSCommand())
	cmd.AddCommand(NewBootstrapCommand())

	return cmd
}
