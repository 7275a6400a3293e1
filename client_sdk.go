// Package vmplane is a typed client for a virtualization control plane.
//
// A Client owns one authenticated session. Mutating operations come in
// two forms: TryX submits the command and returns the backend task id,
// X submits it and waits for the task to complete. Waiting panics with
// a *TaskTimeout when the task outlives the configured timeout; every
// other failure is returned.
package vmplane

import (
	"context"
	"net/http"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/authstore"
	"pkt.systems/vmplane/internal/clock"
	"pkt.systems/vmplane/internal/command"
	"pkt.systems/vmplane/internal/session"
	"pkt.systems/vmplane/internal/transport"
)

type (
	// Bundle is the token set issued by one authentication.
	Bundle = authstore.Bundle
	// TokenStore persists bundles per session key.
	TokenStore = authstore.Store
	// Observer receives session notifications.
	Observer = session.Observer
	// ObserverFuncs adapts optional functions to Observer.
	ObserverFuncs = session.ObserverFuncs
	// KeyDescriptor is a private access key.
	KeyDescriptor = session.KeyDescriptor
	// Method is how a session authenticated.
	Method = session.Method
	// Clock is the time source used for renewal and task polling.
	Clock = clock.Clock
)

type (
	Task              = command.Task
	TaskStatus        = command.TaskStatus
	Guest             = command.Guest
	GuestSpec         = command.GuestSpec
	GuestFilter       = command.GuestFilter
	Snapshot          = command.Snapshot
	SnapshotSpec      = command.SnapshotSpec
	Volume            = command.Volume
	VolumeSpec        = command.VolumeSpec
	StoragePool       = command.StoragePool
	StoragePoolConfig = command.StoragePoolConfig
	NetworkPool       = command.NetworkPool
	NetworkPoolConfig = command.NetworkPoolConfig
	AddressRange      = command.AddressRange
	Node              = command.Node
	User              = command.User
	MonitorChannel    = command.MonitorChannel
)

// ClientOptions configures NewClient.
type ClientOptions struct {
	// Endpoint is the API base URL, e.g. https://cp.example.com/api/v1/.
	Endpoint string
	// Device identifies this client. Defaults to the host name.
	Device string
	// SessionKey selects the bundle in Store. Defaults to the endpoint.
	SessionKey string
	Store      TokenStore
	Observer   Observer
	Logger     pslog.Logger
	Clock      Clock
	// HTTPClient overrides the default client, which trusts the system
	// roots plus the local CA in TLSDir.
	HTTPClient *http.Client
	TLSDir     string

	// TaskTimeout and TaskInterval bound the waiting forms of mutating
	// operations. Zero selects the defaults.
	TaskTimeout  time.Duration
	TaskInterval time.Duration

	// RawMonitor dials console channels without the Hello/Welcome
	// exchange, passing the secret in the URL query.
	RawMonitor bool
}

// Client is a session against the control plane plus the typed
// operation catalog.
type Client struct {
	conn       *session.Connector
	logger     pslog.Logger
	timeout    time.Duration
	interval   time.Duration
	rawMonitor bool
}

// NewClient builds an unauthenticated client.
func NewClient(opts ClientOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	hc := opts.HTTPClient
	if hc == nil {
		tlsDir := opts.TLSDir
		if tlsDir == "" {
			tlsDir = DefaultTLSDir()
		}
		var err error
		if hc, err = transport.NewHTTPClient(tlsDir); err != nil {
			return nil, err
		}
	}
	conn, err := session.New(session.Options{
		Endpoint:   opts.Endpoint,
		Device:     opts.Device,
		SessionKey: opts.SessionKey,
		Store:      opts.Store,
		Observer:   opts.Observer,
		Logger:     logger,
		Clock:      opts.Clock,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:       conn,
		logger:     logger,
		timeout:    opts.TaskTimeout,
		interval:   opts.TaskInterval,
		rawMonitor: opts.RawMonitor,
	}, nil
}

// ID returns the stable connection id.
func (c *Client) ID() string { return c.conn.ID() }

// Device returns the device name sent on login.
func (c *Client) Device() string { return c.conn.Device() }

// Endpoint returns the normalized API base URL.
func (c *Client) Endpoint() string { return c.conn.Endpoint() }

// SessionKey returns the key the bundle is stored under.
func (c *Client) SessionKey() string { return c.conn.SessionKey() }

// Authenticated reports whether a valid bundle is installed.
func (c *Client) Authenticated() bool { return c.conn.Authenticated() }

// User returns the authenticated user, if any.
func (c *Client) User() string { return c.conn.User() }

// Roles returns the roles of the current bundle.
func (c *Client) Roles() []string { return c.conn.Roles() }

// Tokens returns the current bundle.
func (c *Client) Tokens() Bundle { return c.conn.Tokens() }

// Method returns how the session authenticated.
func (c *Client) Method() Method { return c.conn.Method() }

// ScheduledRefresh returns the renewal interval, or zero when this
// client does not renew.
func (c *Client) ScheduledRefresh() time.Duration { return c.conn.ScheduledRefresh() }

// Close stops background renewal.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) start(ctx context.Context, tag command.Tag, payload any) (string, error) {
	return c.conn.StartTask(ctx, command.New(tag, payload))
}

func (c *Client) query(ctx context.Context, tag command.Tag, payload any) (*command.Data, error) {
	return c.conn.RequestCommand(ctx, command.New(tag, payload))
}

func (c *Client) send(ctx context.Context, tag command.Tag, payload any) error {
	return c.conn.SendCommand(ctx, command.New(tag, payload))
}
