package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/vmplane"
)

// NewSimulateCommand builds the command running the in-process control
// plane.
func NewSimulateCommand(loader *vmplane.Loader) *cobra.Command {
	var bindErr error
	var adminUser string
	var adminSecretStdin bool

	v := loader.Viper()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated control plane for development and tests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bindErr != nil {
				return bindErr
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var adminSecret string
			if adminUser != "" {
				if adminSecretStdin {
					adminSecret, err = readLine(cmd)
				} else {
					adminSecret, err = promptPassword(cmd, "Admin secret: ")
				}
				if err != nil {
					return err
				}
			}

			logger := pslog.Ctx(ctx).With("component", "simulate")
			return vmplane.Simulate(ctx, vmplane.SimulateOptions{
				Config:      cfg,
				Logger:      logger,
				AdminUser:   adminUser,
				AdminSecret: adminSecret,
			})
		},
	}

	flags := cmd.Flags()
	flags.String("listen", vmplane.DefaultListenAddr, "listen address")
	flags.String("base", vmplane.DefaultBasePath, "base path prefix for all HTTP routes")
	flags.String("users-file", vmplane.DefaultUsersPath(), "path to users file")
	flags.Duration("access-ttl", vmplane.DefaultAccessTTL, "access token lifetime")
	flags.Duration("refresh-ttl", vmplane.DefaultRefreshTTL, "refresh token lifetime")
	flags.Int("task-polls", vmplane.DefaultTaskPolls, "polls before a task completes")
	flags.String("published-url", "", "externally reachable base URL for monitor channels")
	flags.String("tls-mode", vmplane.DefaultTLSMode, "tls mode: off, auto, bundle, or acme")
	flags.StringArray("tls-bundle", nil, "path to PEM bundle file (repeatable)")
	flags.String("cert-dir", vmplane.DefaultTLSDir(), "directory for the local CA and server certificate")
	flags.String("tls-cache-dir", vmplane.DefaultTLSCacheDir(), "tls cache directory for acme")
	flags.StringSlice("tls-host", nil, "extra host name for the server certificate (repeatable)")
	flags.StringVar(&adminUser, "admin-user", "", "create this admin user when the users file is empty")
	flags.BoolVar(&adminSecretStdin, "admin-secret-stdin", false, "read the admin secret from stdin")

	bind := func(key, name string) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			bindErr = err
		}
	}

	bind("simulator.listen", "listen")
	bind("simulator.base", "base")
	bind("simulator.users_file", "users-file")
	bind("simulator.access_ttl", "access-ttl")
	bind("simulator.refresh_ttl", "refresh-ttl")
	bind("simulator.task_polls", "task-polls")
	bind("simulator.published_url", "published-url")
	bind("simulator.tls.mode", "tls-mode")
	bind("simulator.tls.bundle", "tls-bundle")
	bind("simulator.tls.dir", "cert-dir")
	bind("simulator.tls.cache_dir", "tls-cache-dir")
	bind("simulator.tls.hosts", "tls-host")

	return cmd
}
