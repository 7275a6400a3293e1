package main

import (
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/vmplane"
)

// NewTLSCommand builds the TLS management command.
func NewTLSCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tls",
		Short: "Manage the local CA used by the simulator",
	}

	var dir string
	cmd.PersistentFlags().StringVar(&dir, "dir", vmplane.DefaultTLSDir(), "tls directory")

	var hosts []string
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a CA (unless present) and a server certificate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := pslog.Ctx(cmd.Context()).With("component", "tls")
			return vmplane.TLSNew(cmd.Context(), dir, hosts, logger)
		},
	}
	newCmd.Flags().StringSliceVar(&hosts, "host", nil, "extra host name or IP for the server certificate (repeatable)")
	cmd.AddCommand(newCmd)

	var out string
	exportCmd := &cobra.Command{
		Use:   "export-ca",
		Short: "Print the CA certificate so clients can trust it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return vmplane.TLSExportCA(dir, cmd.OutOrStdout())
			}
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if err := vmplane.TLSExportCA(dir, f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	exportCmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	cmd.AddCommand(exportCmd)

	return cmd
}
