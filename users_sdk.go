package vmplane

import (
	"context"

	"pkt.systems/vmplane/internal/command"
)

// CreateUser creates an account. Requires the admin role.
func (c *Client) CreateUser(ctx context.Context, name, secret string, roles ...string) error {
	return c.send(ctx, command.TagCreateUser, command.CreateUser{
		User:   command.User{Name: name, Roles: roles},
		Secret: secret,
	})
}

// DeleteUser removes an account and revokes its tokens.
func (c *Client) DeleteUser(ctx context.Context, name string) error {
	return c.send(ctx, command.TagDeleteUser, command.NameRef{Name: name})
}

func (c *Client) QueryUsers(ctx context.Context) ([]User, error) {
	data, err := c.query(ctx, command.TagQueryUsers, nil)
	if err != nil {
		return nil, err
	}
	return data.Users, nil
}

// ChangeUserSecret replaces the secret of name. Users may change their
// own secret; changing another user's requires the admin role.
func (c *Client) ChangeUserSecret(ctx context.Context, name, secret string) error {
	return c.send(ctx, command.TagChangeUserSecret, command.ChangeUserSecret{Name: name, Secret: secret})
}
