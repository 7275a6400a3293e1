package vmplane

import (
	"context"
	"io"

	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/tlsmgr"
)

// TLSNew creates the local CA, if missing, and a server certificate for
// hosts in dir.
func TLSNew(ctx context.Context, dir string, hosts []string, logger pslog.Logger) error {
	return tlsmgr.GenerateLocal(ctx, dir, hosts, logger)
}

// TLSExportCA writes the local CA certificate to w so other machines can
// trust the simulator.
func TLSExportCA(dir string, w io.Writer) error {
	return tlsmgr.ExportCA(dir, w)
}
