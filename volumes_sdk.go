package vmplane

import (
	"context"

	"pkt.systems/vmplane/internal/command"
)

func (c *Client) TryCreateVolume(ctx context.Context, spec VolumeSpec) (string, error) {
	return c.start(ctx, command.TagCreateVolume, spec)
}

// CreateVolume attaches a new volume to a guest and returns its id.
func (c *Client) CreateVolume(ctx context.Context, spec VolumeSpec) (string, error) {
	id, err := c.TryCreateVolume(ctx, spec)
	return c.await(ctx, id, err, volumeOf)
}

func (c *Client) TryDeleteVolume(ctx context.Context, guest, id string) (string, error) {
	return c.start(ctx, command.TagDeleteVolume, command.VolumeRef{Guest: guest, ID: id})
}

func (c *Client) DeleteVolume(ctx context.Context, guest, id string) error {
	task, err := c.TryDeleteVolume(ctx, guest, id)
	_, err = c.await(ctx, task, err, nil)
	return err
}
