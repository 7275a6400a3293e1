package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/monitor"
)

// NewMonitorCommand builds the guest console command.
func NewMonitorCommand(loader *vmplane.Loader) *cobra.Command {
	var listen string
	var show bool

	cmd := &cobra.Command{
		Use:   "monitor <guest>",
		Short: "Open a guest console channel",
		Long: `Open a guest console channel. With --listen, local connections are
bridged to a fresh channel each, so a VNC viewer can be pointed at the
listen address. Without it, stdin and stdout are bridged to one channel.`,
		Args: cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			guest := args[0]
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := pslog.Ctx(ctx).With("component", "monitor", "guest", guest)

			if show {
				ch, err := client.RequestMonitor(ctx, guest)
				if err != nil {
					return err
				}
				return printJSON(cmd, ch)
			}
			if listen != "" {
				ln, err := net.Listen("tcp", listen)
				if err != nil {
					return err
				}
				logger.Info("monitor listening", "listen", ln.Addr().String())
				return monitor.Serve(ctx, ln, func(ctx context.Context) (net.Conn, error) {
					return client.OpenMonitor(ctx, guest)
				}, logger)
			}

			conn, err := client.OpenMonitor(ctx, guest)
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()
			return monitor.Pipe(conn, stdio{Reader: cmd.InOrStdin(), Writer: cmd.OutOrStdout()})
		}),
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "bridge local TCP connections on this address")
	cmd.Flags().BoolVar(&show, "show", false, "print the channel descriptor instead of connecting")
	cmd.Flags().Bool("raw", false, "dial without the Hello/Welcome exchange, secret in the URL query")
	bindErr := loader.Viper().BindPFlag("client.raw_monitor", cmd.Flags().Lookup("raw"))
	cmd.PreRunE = func(*cobra.Command, []string) error { return bindErr }

	return cmd
}

type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

