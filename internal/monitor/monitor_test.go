package monitor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/vmplane/internal/command"
)

func echoServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx := r.Context()
		var hello Hello
		if err := wsjson.Read(ctx, conn, &hello); err != nil {
			return
		}
		if hello.Secret != secret {
			_ = wsjson.Write(ctx, conn, Welcome{Status: "denied", Error: "bad secret"})
			return
		}
		if err := wsjson.Write(ctx, conn, Welcome{Status: StatusOK, Protocol: hello.Protocol}); err != nil {
			return
		}
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialEcho(t *testing.T) {
	srv := echoServer(t, "s3cret")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, command.MonitorChannel{Protocol: "vnc", Secret: "s3cret", URL: srv.URL}, Options{})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestDialPrefersPublishedURL(t *testing.T) {
	srv := echoServer(t, "x")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, command.MonitorChannel{Secret: "x", URL: "ws://127.0.0.1:1/unreachable", PublishedURL: srv.URL}, Options{})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestDialRejectedSecret(t *testing.T) {
	srv := echoServer(t, "right")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, command.MonitorChannel{Secret: "wrong", URL: srv.URL}, Options{})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "bad secret")
}

func TestServeBridgesTCP(t *testing.T) {
	srv := echoServer(t, "s")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- Serve(ctx, ln, func(ctx context.Context) (net.Conn, error) {
			return Dial(ctx, command.MonitorChannel{Secret: "s", URL: srv.URL}, Options{})
		}, nil)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	_ = client.Close()

	cancel()
	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve did not stop")
	}
}

func TestWebsocketURL(t *testing.T) {
	got, err := WebsocketURL("https://example.com/api/v1/monitor/ws/g1")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/api/v1/monitor/ws/g1", got)

	got, err = WebsocketURL("ws://h:1/x")
	require.NoError(t, err)
	assert.Equal(t, "ws://h:1/x", got)

	_, err = WebsocketURL("ftp://h/x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRejected))
}

func TestDialRawSendsSecretInQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get(SecretParam) != "s3cret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, command.MonitorChannel{Protocol: "vnc", Secret: "s3cret", URL: srv.URL + "/console?node=n1"}, Options{Raw: true})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("raw!"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "raw!", string(buf))

	_, err = Dial(ctx, command.MonitorChannel{Secret: "wrong", URL: srv.URL}, Options{Raw: true})
	require.Error(t, err)
}
