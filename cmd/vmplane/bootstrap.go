package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/vmplane"
)

// NewBootstrapCommand builds the bootstrap command.
func NewBootstrapCommand() *cobra.Command {
	var endpoint string
	var path string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Write a default config, token store identity and local TLS assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := pslog.Ctx(cmd.Context()).With("component", "bootstrap")
			cfg := vmplane.DefaultConfig()
			if endpoint != "" {
				cfg.Client.Endpoint = endpoint
			}
			written, err := vmplane.Bootstrap(cmd.Context(), vmplane.BootstrapOptions{
				Config: cfg,
				Path:   path,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), written)
			return err
		},
	}

	cmd.Flags().StringVar(&endpoint, "client-endpoint", "", "endpoint written to the new config")
	cmd.Flags().StringVar(&path, "path", vmplane.DefaultConfigPath(), "config file to create")

	return cmd
}
