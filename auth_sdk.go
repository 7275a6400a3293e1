package vmplane

import (
	"context"
	"time"

	"pkt.systems/vmplane/internal/authstore"
	"pkt.systems/vmplane/internal/session"
)

const (
	MethodNone     = session.MethodNone
	MethodPassword = session.MethodPassword
	MethodToken    = session.MethodToken
)

// LoginPassword authenticates with a user secret and starts renewal.
// A rejected secret yields ErrUnauthenticated.
func (c *Client) LoginPassword(ctx context.Context, user, password string) (Bundle, error) {
	return c.conn.AuthenticateByPassword(ctx, user, password)
}

// LoginToken authenticates with a base64 key token and starts renewal.
func (c *Client) LoginToken(ctx context.Context, token string) (Bundle, error) {
	return c.conn.AuthenticateByToken(ctx, token)
}

// LoginKey authenticates with a decoded key and starts renewal.
func (c *Client) LoginKey(ctx context.Context, key KeyDescriptor) (Bundle, error) {
	return c.conn.AuthenticateByKey(ctx, key)
}

// LoadTokens installs a bundle obtained elsewhere. The client does not
// renew it.
func (c *Client) LoadTokens(ctx context.Context, bundle Bundle) error {
	return c.conn.LoadTokens(ctx, bundle)
}

// Restore installs the bundle held by the token store for this session
// key. ErrUnauthenticated means there is none.
func (c *Client) Restore(ctx context.Context) (Bundle, error) {
	return c.conn.Restore(ctx)
}

// Logout drops local session state and the stored bundle.
func (c *Client) Logout(ctx context.Context) {
	c.conn.Logout(ctx)
}

// LogoutDevice revokes this device's tokens on the backend, then logs
// out locally.
func (c *Client) LogoutDevice(ctx context.Context) error {
	return c.conn.LogoutDevice(ctx)
}

// NewAccessKey generates an Ed25519 key for user. Register the public
// half with the backend and hand the token to the key holder.
func NewAccessKey(user string) (KeyDescriptor, string, error) {
	key, err := session.NewKey(user, time.Now())
	if err != nil {
		return KeyDescriptor{}, "", err
	}
	token, err := session.EncodeKeyToken(key)
	if err != nil {
		return KeyDescriptor{}, "", err
	}
	return key, token, nil
}

// EncodeKeyToken returns the base64 JSON form of key.
func EncodeKeyToken(key KeyDescriptor) (string, error) {
	return session.EncodeKeyToken(key)
}

// DecodeKeyToken parses a key token.
func DecodeKeyToken(token string) (KeyDescriptor, error) {
	return session.DecodeKeyToken(token)
}

// NewMemoryTokenStore returns an in-process token store.
func NewMemoryTokenStore() *authstore.MemoryStore {
	return authstore.NewMemoryStore()
}

// OpenFileTokenStore returns a file token store at path. When identity
// is non-empty the file is sealed with the age identity stored there,
// which is generated on first use.
func OpenFileTokenStore(path, identity string) (*authstore.FileStore, error) {
	if identity == "" {
		return authstore.NewFileStore(path), nil
	}
	id, err := authstore.LoadOrGenerateIdentity(identity)
	if err != nil {
		return nil, err
	}
	return authstore.NewFileStore(path, authstore.WithIdentity(id)), nil
}
