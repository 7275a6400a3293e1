// Package session implements the authenticated connection to the
// control plane: password and key login, token validation and renewal,
// 401 recovery with a single resend, and task polling.
//
// A Connector is safe for concurrent use. Only a Connector that performed
// a login schedules periodic renewal; one restored with LoadTokens relies
// on whichever session logged in to keep the shared TokenStore fresh.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/authstore"
	"pkt.systems/vmplane/internal/clock"
	"pkt.systems/vmplane/internal/signature"
	"pkt.systems/vmplane/internal/transport"
)

// Method is the authentication method of a session.
type Method int

const (
	MethodNone Method = iota
	MethodPassword
	MethodToken
)

func (m Method) String() string {
	switch m {
	case MethodPassword:
		return "password"
	case MethodToken:
		return "token"
	default:
		return "none"
	}
}

// Options configures a Connector.
type Options struct {
	// Endpoint is the API base URL, e.g. http://127.0.0.1:8080/api/v1/.
	Endpoint string
	// Device identifies this client to the backend. Defaults to the host name.
	Device string
	// SessionKey selects the bundle in Store. Defaults to the normalized endpoint.
	SessionKey string
	// Store persists bundles. Defaults to an in-memory store.
	Store authstore.Store

	Observer   Observer
	Logger     pslog.Logger
	Clock      clock.Clock
	HTTPClient *http.Client
}

// Connector is one logical session against the backend.
type Connector struct {
	id       string
	device   string
	key      string
	client   *transport.Client
	store    authstore.Store
	observer Observer
	logger   pslog.Logger
	clock    clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	// recoverMu serializes the resend protocol.
	recoverMu sync.Mutex
	// stateMu orders installs against Logout so a renewal that lands
	// late cannot resurrect a cleared session or its stored bundle.
	stateMu sync.Mutex

	mu            sync.Mutex
	method        Method
	user          string
	accessKey     KeyDescriptor
	tokens        authstore.Bundle
	authenticated bool
	refresher     *refresher
	// rejected is the access token dropped by the last expiry. It is
	// never adopted from the store again.
	rejected string
}

// New returns an unauthenticated Connector.
func New(opts Options) (*Connector, error) {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	client, err := transport.New(opts.Endpoint,
		transport.WithHTTPClient(opts.HTTPClient),
		transport.WithLogger(logger.With("component", "transport")),
	)
	if err != nil {
		return nil, err
	}
	device := strings.TrimSpace(opts.Device)
	if device == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			device = host
		} else {
			device = "vmplane"
		}
	}
	key := opts.SessionKey
	if key == "" {
		key = client.BaseURL()
	}
	store := opts.Store
	if store == nil {
		store = authstore.NewMemoryStore()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		id:       id,
		device:   device,
		key:      key,
		client:   client,
		store:    store,
		observer: observer,
		logger:   logger.With("component", "session", "connection", id),
		clock:    clk,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// ID returns the connection identifier.
func (c *Connector) ID() string { return c.id }

// Device returns the device name sent with authentication requests.
func (c *Connector) Device() string { return c.device }

// SessionKey returns the key under which bundles are stored.
func (c *Connector) SessionKey() string { return c.key }

// Endpoint returns the normalized API base URL.
func (c *Connector) Endpoint() string { return c.client.BaseURL() }

// HTTPClient returns the HTTP client used for API calls.
func (c *Connector) HTTPClient() *http.Client { return c.client.HTTPClient() }

// Clock returns the session clock.
func (c *Connector) Clock() clock.Clock { return c.clock }

// Authenticated reports whether a valid bundle is installed.
func (c *Connector) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Tokens returns the installed bundle, or a zero Bundle.
func (c *Connector) Tokens() authstore.Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// User returns the authenticated user.
func (c *Connector) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Roles returns the roles granted to the session.
func (c *Connector) Roles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tokens.Roles...)
}

// Method returns how the session authenticated.
func (c *Connector) Method() Method {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.method
}

type secretRequest struct {
	User   string `json:"user"`
	Device string `json:"device"`
	Secret string `json:"secret"`
}

type tokenRequest struct {
	User               string `json:"user"`
	Device             string `json:"device"`
	Serial             string `json:"serial"`
	Nonce              string `json:"nonce"`
	Timestamp          string `json:"timestamp"`
	SignatureAlgorithm string `json:"signature_algorithm"`
	Signature          string `json:"signature"`
}

type refreshRequest struct {
	User   string `json:"user"`
	Device string `json:"device"`
	Token  string `json:"token"`
}

// AuthenticateByPassword logs in with a user secret. The outcomes are
// the installed bundle, ErrUnauthenticated for rejected credentials, or
// a transport or *ValidationError.
func (c *Connector) AuthenticateByPassword(ctx context.Context, user, password string) (authstore.Bundle, error) {
	if strings.TrimSpace(user) == "" {
		return authstore.Bundle{}, fmt.Errorf("user is required")
	}
	env, err := c.client.Post(ctx, transport.PathAuthSecret, transport.Credentials{}, secretRequest{
		User:   user,
		Device: c.device,
		Secret: password,
	})
	bundle, err := c.acceptLogin(env, err)
	if err != nil {
		return authstore.Bundle{}, err
	}
	c.mu.Lock()
	c.method = MethodPassword
	c.accessKey = KeyDescriptor{}
	c.mu.Unlock()
	c.logger.Info("authenticated", "user", bundle.User, "method", MethodPassword.String())
	return bundle, nil
}

// AuthenticateByToken logs in with a base64 key token produced by
// EncodeKeyToken.
func (c *Connector) AuthenticateByToken(ctx context.Context, token string) (authstore.Bundle, error) {
	key, err := DecodeKeyToken(token)
	if err != nil {
		return authstore.Bundle{}, err
	}
	return c.AuthenticateByKey(ctx, key)
}

// AuthenticateByKey logs in by signing a fresh payload with key.
func (c *Connector) AuthenticateByKey(ctx context.Context, key KeyDescriptor) (authstore.Bundle, error) {
	if key.ID == "" {
		return authstore.Bundle{}, fmt.Errorf("%w: missing id", ErrInvalidTokenFormat)
	}
	payload, err := signature.NewAuthPayload(c.clock.Now(), key.ID, key.Serial, c.device)
	if err != nil {
		return authstore.Bundle{}, err
	}
	sig, err := signature.Sign(payload.Canonical(), key.PrivateKey, key.Algorithm)
	if err != nil {
		return authstore.Bundle{}, err
	}
	env, err := c.client.Post(ctx, transport.PathAuthToken, transport.Credentials{}, tokenRequest{
		User:               payload.User,
		Device:             payload.Device,
		Serial:             payload.Serial,
		Nonce:              payload.Nonce,
		Timestamp:          payload.Timestamp,
		SignatureAlgorithm: key.Algorithm,
		Signature:          sig,
	})
	bundle, err := c.acceptLogin(env, err)
	if err != nil {
		return authstore.Bundle{}, err
	}
	c.mu.Lock()
	c.method = MethodToken
	c.accessKey = key
	c.mu.Unlock()
	c.logger.Info("authenticated", "user", bundle.User, "method", MethodToken.String(), "serial", key.Serial)
	return bundle, nil
}

// acceptLogin validates and installs a login response, then starts the
// refresh ticker.
func (c *Connector) acceptLogin(env transport.Envelope, err error) (authstore.Bundle, error) {
	bundle, err := decodeBundle(env, err)
	if err != nil {
		return authstore.Bundle{}, err
	}
	if err := c.validate(bundle); err != nil {
		return authstore.Bundle{}, err
	}
	c.install(bundle, true)
	c.startRefresh(bundle)
	return bundle, nil
}

// LoadTokens installs an externally obtained bundle without scheduling
// renewal.
func (c *Connector) LoadTokens(ctx context.Context, bundle authstore.Bundle) error {
	if err := c.validate(bundle); err != nil {
		return err
	}
	c.install(bundle, false)
	if err := c.store.Save(ctx, c.key, bundle); err != nil {
		c.logger.Warn("token store save failed", "error", err)
	}
	return nil
}

// Restore installs the bundle currently held by the store. It returns
// ErrUnauthenticated when the store holds nothing.
func (c *Connector) Restore(ctx context.Context) (authstore.Bundle, error) {
	bundle, err := c.store.Load(ctx, c.key)
	if err != nil {
		return authstore.Bundle{}, fmt.Errorf("load tokens: %w", err)
	}
	if bundle.IsZero() {
		return authstore.Bundle{}, ErrUnauthenticated
	}
	if err := c.validate(bundle); err != nil {
		return authstore.Bundle{}, err
	}
	c.install(bundle, false)
	return bundle, nil
}

// Logout tears down local session state without contacting the backend.
// The stored bundle is removed.
func (c *Connector) Logout(ctx context.Context) {
	c.stateMu.Lock()
	c.mu.Lock()
	was := c.authenticated
	user := c.user
	c.authenticated = false
	c.tokens = authstore.Bundle{}
	c.method = MethodNone
	c.accessKey = KeyDescriptor{}
	r := c.refresher
	c.refresher = nil
	c.mu.Unlock()

	if r != nil {
		r.Stop()
	}
	c.forget(ctx)
	c.stateMu.Unlock()
	if was {
		c.logger.Info("logged out", "user", user)
		c.notifyState(false)
	}
}

// LogoutDevice revokes this device's tokens on the backend and then
// tears down local state regardless of the outcome.
func (c *Connector) LogoutDevice(ctx context.Context) error {
	err := c.SendCommand(ctx, logoutCommand(c.User(), c.device))
	c.Logout(ctx)
	return err
}

// Close stops background renewal and releases resources. Session state is
// left untouched.
func (c *Connector) Close() error {
	c.stopRefresh()
	c.cancel()
	return nil
}

func (c *Connector) validate(bundle authstore.Bundle) error {
	if err := authstore.Validate(bundle, c.clock.Now()); err != nil {
		var verr *authstore.ValidationError
		if errors.As(err, &verr) {
			c.logger.Warn("token bundle rejected", "user", verr.User, "field", verr.Field, "expiry", verr.Expiry, "reason", verr.Reason)
		}
		return err
	}
	return nil
}

// install replaces the session bundle and notifies collaborators. When
// persist is set the bundle is also written to the store.
func (c *Connector) install(bundle authstore.Bundle, persist bool) {
	c.installIf(bundle, persist, "")
}

// installIf installs bundle only while the session still holds the
// refresh token expect. An empty expect installs unconditionally.
func (c *Connector) installIf(bundle authstore.Bundle, persist bool, expect string) bool {
	c.stateMu.Lock()
	c.mu.Lock()
	if expect != "" && c.tokens.RefreshToken != expect {
		c.mu.Unlock()
		c.stateMu.Unlock()
		return false
	}
	was := c.authenticated
	c.tokens = bundle
	c.user = bundle.User
	c.authenticated = true
	c.rejected = ""
	c.mu.Unlock()

	if persist {
		if err := c.store.Save(c.ctx, c.key, bundle); err != nil {
			c.logger.Warn("token store save failed", "error", err)
		}
	}
	c.stateMu.Unlock()

	c.observer.TokensChanged(bundle)
	if !was {
		c.notifyState(true)
	}
	return true
}

// expire is the expiry transition. It is a no-op when the session is
// already unauthenticated.
func (c *Connector) expire() {
	c.mu.Lock()
	if !c.authenticated {
		c.mu.Unlock()
		return
	}
	user := c.user
	c.authenticated = false
	c.rejected = c.tokens.AccessToken
	c.tokens = authstore.Bundle{}
	r := c.refresher
	c.refresher = nil
	c.mu.Unlock()

	if r != nil {
		r.Stop()
	}
	c.logger.Info("session expired", "user", user)
	c.notifyState(false)
	c.observer.AuthExpired()
}

func (c *Connector) notifyState(authenticated bool) {
	if n, ok := c.store.(authstore.AuthStateNotifier); ok {
		n.AuthStateChanged(c.key, authenticated)
	}
	c.observer.StateChanged(authenticated)
}

type deleter interface {
	Delete(ctx context.Context, key string) error
}

func (c *Connector) forget(ctx context.Context) {
	var err error
	if d, ok := c.store.(deleter); ok {
		err = d.Delete(ctx, c.key)
	} else {
		err = c.store.Save(ctx, c.key, authstore.Bundle{})
	}
	if err != nil {
		c.logger.Warn("token store clear failed", "error", err)
	}
}

func (c *Connector) credentials() transport.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return transport.Credentials{
		AccessToken: c.tokens.AccessToken,
		CSRFToken:   c.tokens.CSRFToken,
	}
}

// decodeBundle unwraps an auth endpoint envelope. A backend error string
// is treated as a credential rejection.
func decodeBundle(env transport.Envelope, err error) (authstore.Bundle, error) {
	if err != nil {
		return authstore.Bundle{}, err
	}
	if env.Error != "" {
		return authstore.Bundle{}, fmt.Errorf("%w: %s", ErrUnauthenticated, env.Error)
	}
	if !env.HasData() {
		return authstore.Bundle{}, ErrNoResponseData
	}
	var bundle authstore.Bundle
	if err := json.Unmarshal(env.Data, &bundle); err != nil {
		return authstore.Bundle{}, fmt.Errorf("decode token bundle: %w", err)
	}
	return bundle, nil
}
