package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pkt.systems/vmplane/internal/command"
	"pkt.systems/vmplane/internal/transport"
)

// Do sends req and returns the decoded response. A backend error string
// is returned as a *CommandError.
func (c *Connector) Do(ctx context.Context, req command.Request) (command.Response, error) {
	env, err := c.post(ctx, transport.PathCommands, req)
	if err != nil {
		return command.Response{}, err
	}
	resp := command.Response{ID: env.ID, Error: env.Error}
	if env.HasData() {
		var data command.Data
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return command.Response{}, fmt.Errorf("decode %s response: %w", req.Type, err)
		}
		resp.Data = &data
	}
	if resp.Error != "" {
		return resp, &CommandError{Type: req.Type, Message: resp.Error}
	}
	return resp, nil
}

// RequestCommand sends req and returns its data payload. A response
// without data yields ErrNoResponseData.
func (c *Connector) RequestCommand(ctx context.Context, req command.Request) (*command.Data, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, ErrNoResponseData
	}
	return resp.Data, nil
}

// SendCommand sends req for its side effect only.
func (c *Connector) SendCommand(ctx context.Context, req command.Request) error {
	_, err := c.Do(ctx, req)
	return err
}

// RequestMonitor asks for the monitor channel of a guest.
func (c *Connector) RequestMonitor(ctx context.Context, guestID string) (command.MonitorChannel, error) {
	env, err := c.post(ctx, transport.PathMonitor, command.MonitorRequest{ID: guestID})
	if err != nil {
		return command.MonitorChannel{}, err
	}
	if env.Error != "" {
		return command.MonitorChannel{}, &CommandError{Message: env.Error}
	}
	if !env.HasData() {
		return command.MonitorChannel{}, ErrNoResponseData
	}
	var ch command.MonitorChannel
	if err := json.Unmarshal(env.Data, &ch); err != nil {
		return command.MonitorChannel{}, fmt.Errorf("decode monitor channel: %w", err)
	}
	return ch, nil
}

// post sends an authenticated request. On 401 it runs the resend
// protocol once: adopt a newer bundle from the store or renew, then
// resend. A second 401 expires the session and yields
// ErrAuthorizationFailed.
func (c *Connector) post(ctx context.Context, path string, body any) (transport.Envelope, error) {
	creds := c.credentials()
	env, err := c.client.Post(ctx, path, creds, body)
	if !errors.Is(err, transport.ErrUnauthenticated) {
		return env, err
	}
	if err := c.recoverSession(ctx, creds.AccessToken); err != nil {
		c.logger.Debug("session recovery failed", "path", path)
		return transport.Envelope{}, ErrAuthorizationFailed
	}
	env, err = c.client.Post(ctx, path, c.credentials(), body)
	if errors.Is(err, transport.ErrUnauthenticated) {
		c.expire()
		return transport.Envelope{}, ErrAuthorizationFailed
	}
	return env, err
}

// recoverSession makes a fresh bundle current after stale was rejected.
// Concurrent callers rejected with the same token share one renewal.
func (c *Connector) recoverSession(ctx context.Context, stale string) error {
	c.recoverMu.Lock()
	defer c.recoverMu.Unlock()

	c.mu.Lock()
	current := c.tokens.AccessToken
	authenticated := c.authenticated
	c.mu.Unlock()
	if authenticated && current != stale {
		return nil
	}
	if c.resync(ctx, stale) {
		return nil
	}
	if err := c.refresh(ctx); err != nil {
		c.expire()
		return err
	}
	return nil
}

func logoutCommand(user, device string) command.Request {
	return command.New(command.TagLogoutDevice, command.LogoutDevice{User: user, Device: device})
}
