package vmplane

import (
	"context"

	"pkt.systems/vmplane/internal/command"
)

func (c *Client) CreateStoragePool(ctx context.Context, cfg StoragePoolConfig) error {
	return c.send(ctx, command.TagCreateStoragePool, cfg)
}

// DeleteStoragePool removes a pool that no volume uses.
func (c *Client) DeleteStoragePool(ctx context.Context, name string) error {
	return c.send(ctx, command.TagDeleteStoragePool, command.NameRef{Name: name})
}

func (c *Client) QueryStoragePools(ctx context.Context) ([]StoragePool, error) {
	data, err := c.query(ctx, command.TagQueryStoragePools, nil)
	if err != nil {
		return nil, err
	}
	return data.StoragePools, nil
}

func (c *Client) CreateNetworkPool(ctx context.Context, cfg NetworkPoolConfig) error {
	return c.send(ctx, command.TagCreateNetworkPool, cfg)
}

func (c *Client) DeleteNetworkPool(ctx context.Context, name string) error {
	return c.send(ctx, command.TagDeleteNetworkPool, command.NameRef{Name: name})
}

func (c *Client) QueryNetworkPools(ctx context.Context) ([]NetworkPool, error) {
	data, err := c.query(ctx, command.TagQueryNetworkPools, nil)
	if err != nil {
		return nil, err
	}
	return data.NetworkPools, nil
}

// AddAddressRange appends an inclusive IPv4 range to a network pool.
// Ranges within a pool may not overlap.
func (c *Client) AddAddressRange(ctx context.Context, pool string, r AddressRange) error {
	return c.send(ctx, command.TagAddAddressRange, command.AddAddressRange{Pool: pool, Range: r})
}
