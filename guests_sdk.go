package vmplane

import (
	"context"

	"pkt.systems/vmplane/internal/command"
)

// TryCreateGuest submits a guest creation and returns the task id.
func (c *Client) TryCreateGuest(ctx context.Context, spec GuestSpec) (string, error) {
	return c.start(ctx, command.TagCreateGuest, spec)
}

// CreateGuest creates a guest and returns its id.
func (c *Client) CreateGuest(ctx context.Context, spec GuestSpec) (string, error) {
	id, err := c.TryCreateGuest(ctx, spec)
	return c.await(ctx, id, err, guestOf)
}

func (c *Client) TryDeleteGuest(ctx context.Context, id string) (string, error) {
	return c.start(ctx, command.TagDeleteGuest, command.GuestRef{ID: id})
}

// DeleteGuest deletes a stopped guest and its volumes.
func (c *Client) DeleteGuest(ctx context.Context, id string) error {
	task, err := c.TryDeleteGuest(ctx, id)
	_, err = c.await(ctx, task, err, nil)
	return err
}

func (c *Client) TryStartGuest(ctx context.Context, id string) (string, error) {
	return c.start(ctx, command.TagStartGuest, command.GuestRef{ID: id})
}

func (c *Client) StartGuest(ctx context.Context, id string) error {
	task, err := c.TryStartGuest(ctx, id)
	_, err = c.await(ctx, task, err, nil)
	return err
}

// TryStopGuest submits a stop. force powers the guest off.
func (c *Client) TryStopGuest(ctx context.Context, id string, force bool) (string, error) {
	return c.start(ctx, command.TagStopGuest, command.StopGuest{ID: id, Force: force})
}

func (c *Client) StopGuest(ctx context.Context, id string, force bool) error {
	task, err := c.TryStopGuest(ctx, id, force)
	_, err = c.await(ctx, task, err, nil)
	return err
}

func (c *Client) TryRestartGuest(ctx context.Context, id string) (string, error) {
	return c.start(ctx, command.TagRestartGuest, command.GuestRef{ID: id})
}

func (c *Client) RestartGuest(ctx context.Context, id string) error {
	task, err := c.TryRestartGuest(ctx, id)
	_, err = c.await(ctx, task, err, nil)
	return err
}

// QueryGuests lists guests matching filter.
func (c *Client) QueryGuests(ctx context.Context, filter GuestFilter) ([]Guest, error) {
	data, err := c.query(ctx, command.TagQueryGuests, filter)
	if err != nil {
		return nil, err
	}
	return data.Guests, nil
}

// GetGuest returns one guest.
func (c *Client) GetGuest(ctx context.Context, id string) (Guest, error) {
	data, err := c.query(ctx, command.TagGetGuest, command.GuestRef{ID: id})
	if err != nil {
		return Guest{}, err
	}
	if data.Guest == nil {
		return Guest{}, ErrNoResponseData
	}
	return *data.Guest, nil
}

// ModifyGuestName renames a guest. It takes effect immediately.
func (c *Client) ModifyGuestName(ctx context.Context, id, name string) error {
	return c.send(ctx, command.TagModifyGuestName, command.ModifyGuestName{ID: id, Name: name})
}

func (c *Client) TryModifyGuestCores(ctx context.Context, id string, cores int) (string, error) {
	return c.start(ctx, command.TagModifyGuestCores, command.ModifyGuestCores{ID: id, Cores: cores})
}

func (c *Client) ModifyGuestCores(ctx context.Context, id string, cores int) error {
	task, err := c.TryModifyGuestCores(ctx, id, cores)
	_, err = c.await(ctx, task, err, nil)
	return err
}

// TryModifyGuestMemory submits a memory change in MiB. The guest must be
// stopped when the task runs.
func (c *Client) TryModifyGuestMemory(ctx context.Context, id string, memory uint64) (string, error) {
	return c.start(ctx, command.TagModifyGuestMemory, command.ModifyGuestMemory{ID: id, Memory: memory})
}

func (c *Client) ModifyGuestMemory(ctx context.Context, id string, memory uint64) error {
	task, err := c.TryModifyGuestMemory(ctx, id, memory)
	_, err = c.await(ctx, task, err, nil)
	return err
}
