package vmplane

import (
	"context"
	"net"

	"pkt.systems/vmplane/internal/monitor"
)

// RequestMonitor asks the backend for a one-shot console channel of a
// running guest.
func (c *Client) RequestMonitor(ctx context.Context, guest string) (MonitorChannel, error) {
	return c.conn.RequestMonitor(ctx, guest)
}

// OpenMonitor requests a console channel and dials it. The returned
// connection carries raw console bytes.
func (c *Client) OpenMonitor(ctx context.Context, guest string) (net.Conn, error) {
	ch, err := c.RequestMonitor(ctx, guest)
	if err != nil {
		return nil, err
	}
	return monitor.Dial(ctx, ch, monitor.Options{
		HTTPClient: c.conn.HTTPClient(),
		Logger:     c.logger,
		Raw:        c.rawMonitor,
	})
}
