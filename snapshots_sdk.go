package vmplane

import (
	"context"

	"pkt.systems/vmplane/internal/command"
)

func (c *Client) TryCreateSnapshot(ctx context.Context, spec SnapshotSpec) (string, error) {
	return c.start(ctx, command.TagCreateSnapshot, spec)
}

// CreateSnapshot snapshots a guest and returns the snapshot id.
func (c *Client) CreateSnapshot(ctx context.Context, spec SnapshotSpec) (string, error) {
	id, err := c.TryCreateSnapshot(ctx, spec)
	return c.await(ctx, id, err, snapshotOf)
}

func (c *Client) TryRestoreSnapshot(ctx context.Context, guest, id string) (string, error) {
	return c.start(ctx, command.TagRestoreSnapshot, command.SnapshotRef{Guest: guest, ID: id})
}

// RestoreSnapshot rolls a stopped guest back to a snapshot.
func (c *Client) RestoreSnapshot(ctx context.Context, guest, id string) error {
	task, err := c.TryRestoreSnapshot(ctx, guest, id)
	_, err = c.await(ctx, task, err, nil)
	return err
}

func (c *Client) TryDeleteSnapshot(ctx context.Context, guest, id string) (string, error) {
	return c.start(ctx, command.TagDeleteSnapshot, command.SnapshotRef{Guest: guest, ID: id})
}

func (c *Client) DeleteSnapshot(ctx context.Context, guest, id string) error {
	task, err := c.TryDeleteSnapshot(ctx, guest, id)
	_, err = c.await(ctx, task, err, nil)
	return err
}

// QuerySnapshots lists the snapshots of a guest.
func (c *Client) QuerySnapshots(ctx context.Context, guest string) ([]Snapshot, error) {
	data, err := c.query(ctx, command.TagQuerySnapshots, command.GuestRef{ID: guest})
	if err != nil {
		return nil, err
	}
	return data.Snapshots, nil
}
