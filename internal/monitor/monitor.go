// Package monitor connects to a guest console through the websocket
// channel returned by the monitor endpoint.
//
// The monitor endpoint only hands out the channel descriptor; what the
// console server expects on the socket is its own convention. Dial
// speaks the Hello/Welcome exchange served by the simulator: the client
// sends a Hello carrying the channel secret as a JSON text message and
// expects a Welcome, after which traffic is binary and exposed as a
// net.Conn. Set Options.Raw for consoles that take binary frames from
// the first message; the secret is then sent as a query parameter.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/command"
)

const handshakeTimeout = 10 * time.Second

// Hello is the first message sent by a client.
type Hello struct {
	Secret   string `json:"secret"`
	Protocol string `json:"protocol"`
}

// Welcome is the server reply to Hello.
type Welcome struct {
	Status   string `json:"status"`
	Protocol string `json:"protocol,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StatusOK marks an accepted Hello.
const StatusOK = "ok"

// ErrRejected is returned when the server refuses the channel secret.
var ErrRejected = errors.New("monitor channel rejected")

// Options configures Dial.
type Options struct {
	HTTPClient *http.Client
	Header     http.Header
	Logger     pslog.Logger
	// Raw skips the Hello/Welcome exchange and passes the secret as the
	// SecretParam query parameter instead.
	Raw bool
}

// SecretParam carries the channel secret on raw channels.
const SecretParam = "secret"

// Dial opens the channel and completes the handshake. The published URL
// is preferred when present.
func Dial(ctx context.Context, ch command.MonitorChannel, opts Options) (net.Conn, error) {
	target := ch.URL
	if ch.PublishedURL != "" {
		target = ch.PublishedURL
	}
	wsURL, err := WebsocketURL(target)
	if err != nil {
		return nil, err
	}
	if opts.Raw && ch.Secret != "" {
		wsURL, err = withSecret(wsURL, ch.Secret)
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	logger = logger.With("component", "monitor", "protocol", ch.Protocol)

	client := opts.HTTPClient
	if client != nil && client.Timeout > 0 {
		// coder/websocket refuses clients with a timeout on long-lived conns.
		c := *client
		c.Timeout = 0
		client = &c
	}
	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: client,
		HTTPHeader: opts.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial monitor: %w", err)
	}
	if opts.Raw {
		logger.Debug("monitor channel open", "raw", true)
		return websocket.NetConn(context.WithoutCancel(ctx), ws, websocket.MessageBinary), nil
	}
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := wsjson.Write(hctx, ws, Hello{Secret: ch.Secret, Protocol: ch.Protocol}); err != nil {
		_ = ws.Close(websocket.StatusInternalError, "hello failed")
		return nil, fmt.Errorf("monitor hello: %w", err)
	}
	var welcome Welcome
	if err := wsjson.Read(hctx, ws, &welcome); err != nil {
		_ = ws.Close(websocket.StatusInternalError, "welcome failed")
		return nil, fmt.Errorf("monitor welcome: %w", err)
	}
	if welcome.Status != StatusOK {
		_ = ws.Close(websocket.StatusPolicyViolation, "rejected")
		if welcome.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, welcome.Error)
		}
		return nil, ErrRejected
	}
	logger.Debug("monitor channel open")
	return websocket.NetConn(context.WithoutCancel(ctx), ws, websocket.MessageBinary), nil
}

// WebsocketURL maps http and https URLs to ws and wss.
func WebsocketURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(parsed.Scheme) {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported monitor url scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

func withSecret(raw, secret string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	q.Set(SecretParam, secret)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// Pipe copies between a and b until either side closes, then closes
// both.
func Pipe(a, b io.ReadWriteCloser) error {
	var once sync.Once
	closeBoth := func() {
		_ = a.Close()
		_ = b.Close()
	}
	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(a, b)
		once.Do(closeBoth)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(b, a)
		once.Do(closeBoth)
		errc <- err
	}()
	err := <-errc
	<-errc
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Serve accepts connections on ln and bridges each to a fresh channel
// from dial until ctx is done.
func Serve(ctx context.Context, ln net.Listener, dial func(context.Context) (net.Conn, error), logger pslog.Logger) error {
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		local, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			remote, err := dial(ctx)
			if err != nil {
				logger.Warn("monitor dial failed", "error", err)
				_ = local.Close()
				return
			}
			logger.Info("monitor client connected", "remote", local.RemoteAddr().String())
			if err := Pipe(local, remote); err != nil {
				logger.Debug("monitor bridge closed", "error", err)
			}
		}()
	}
}
