package vmplane

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateServesTLSWithLocalCA(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultConfig()
	cfg.Simulator.TLS.Mode = "auto"
	cfg.Simulator.UsersFile = filepath.Join(home, "users.json")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- Simulate(ctx, SimulateOptions{
			Config:      cfg,
			Logger:      quietLogger(),
			AdminUser:   testAdmin,
			AdminSecret: testSecret,
			Listener:    ln,
		})
	}()

	endpoint := "https://" + ln.Addr().String() + DefaultBasePath + "/"
	var c *Client
	require.Eventually(t, func() bool {
		candidate, err := NewClient(ClientOptions{
			Endpoint: endpoint,
			TLSDir:   cfg.Simulator.TLS.Dir,
			Logger:   quietLogger(),
		})
		if err != nil {
			return false
		}
		if _, err := candidate.LoginPassword(t.Context(), testAdmin, testSecret); err != nil {
			_ = candidate.Close()
			return false
		}
		c = candidate
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer c.Close()

	nodes, err := c.QueryNodes(t.Context())
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	_, err = os.Stat(cfg.Simulator.UsersFile)
	require.NoError(t, err, "admin user should be persisted")

	var ca bytes.Buffer
	require.NoError(t, TLSExportCA(cfg.Simulator.TLS.Dir, &ca))
	assert.Contains(t, ca.String(), "BEGIN CERTIFICATE")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("simulator did not stop")
	}
}

func TestBootstrapWritesConfigOnce(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultConfig()
	cfg.Client.User = "alice"
	path, err := Bootstrap(t.Context(), BootstrapOptions{Config: cfg, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigPath(), path)

	_, err = os.Stat(filepath.Join(cfg.Simulator.TLS.Dir, "ca.pem"))
	require.NoError(t, err)
	_, err = os.Stat(cfg.Client.Identity)
	require.NoError(t, err)

	_, err = Bootstrap(t.Context(), BootstrapOptions{Config: cfg, Logger: quietLogger()})
	require.Error(t, err)

	loader := NewLoader()
	loader.SetConfigFile(path)
	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Client.User)
	assert.Equal(t, DefaultTaskTimeout, loaded.Tasks.Timeout)
	assert.Equal(t, cfg.Simulator.TLS.Dir, loaded.Simulator.TLS.Dir)
}
