package vmplane

import (
	"context"

	"pkt.systems/vmplane/internal/command"
)

func (c *Client) QueryNodes(ctx context.Context) ([]Node, error) {
	data, err := c.query(ctx, command.TagQueryNodes, nil)
	if err != nil {
		return nil, err
	}
	return data.Nodes, nil
}

// EnableNode makes a node eligible for guest placement.
func (c *Client) EnableNode(ctx context.Context, name string) error {
	return c.send(ctx, command.TagEnableNode, command.NameRef{Name: name})
}

func (c *Client) DisableNode(ctx context.Context, name string) error {
	return c.send(ctx, command.TagDisableNode, command.NameRef{Name: name})
}
