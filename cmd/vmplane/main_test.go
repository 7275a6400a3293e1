package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/pslog"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/simulator"
)

func testLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, DisableTimestamp: true, NoColor: true})
}

type cli struct {
	endpoint string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	sim, err := simulator.New(simulator.Options{Logger: testLogger(), TaskPolls: 1})
	require.NoError(t, err)
	require.NoError(t, sim.Bootstrap("admin", "s3cret"))
	ts := httptest.NewServer(sim.Handler())
	t.Cleanup(ts.Close)
	return &cli{endpoint: ts.URL + sim.BasePath()}
}

func (c *cli) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(vmplane.NewLoader())
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"-e", c.endpoint, "--device", "ci", "--task-interval", "10ms"}, args...))
	root.SetContext(pslog.ContextWithLogger(context.Background(), testLogger()))
	err := root.Execute()
	return out.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, "", args...)
	require.NoError(t, err, "vmplane %s", strings.Join(args, " "))
	return out
}

func TestCommandsRequireLogin(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "nodes", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vmplane login")
}

func TestLoginAndManageGuests(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "s3cret\n", "login", "-u", "admin", "--password-stdin")
	require.NoError(t, err)

	out := c.mustRun(t, "whoami")
	assert.Contains(t, out, "admin")
	assert.Contains(t, out, "ci")

	out = c.mustRun(t, "nodes", "list")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "node-1")

	id := strings.TrimSpace(c.mustRun(t, "guests", "create", "web", "--cores", "2", "--memory", "2048"))
	require.NotEmpty(t, id)

	out = c.mustRun(t, "guests", "list")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "web")

	c.mustRun(t, "guests", "start", id)
	out = c.mustRun(t, "guests", "get", id)
	assert.Contains(t, out, "running")

	task := strings.TrimSpace(c.mustRun(t, "guests", "stop", id, "--no-wait"))
	require.NotEmpty(t, task)
	out = c.mustRun(t, "tasks", "wait", task)
	assert.Contains(t, out, "completed")

	c.mustRun(t, "guests", "resize", id, "--cores", "4")
	out = c.mustRun(t, "guests", "get", id)
	assert.Contains(t, out, "4")

	snap := strings.TrimSpace(c.mustRun(t, "snapshots", "create", id, "clean"))
	out = c.mustRun(t, "snapshots", "list", id)
	assert.Contains(t, out, snap)

	c.mustRun(t, "guests", "delete", id)
	_, err = c.run(t, "", "guests", "get", id)
	require.Error(t, err)
}

func TestUsersAddPrintsGeneratedSecret(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "s3cret\n", "login", "-u", "admin", "--password-stdin")
	require.NoError(t, err)

	out := c.mustRun(t, "users", "add", "bob", "--role", "operator")
	require.Contains(t, out, "secret: ")
	secret := strings.TrimSpace(out[strings.Index(out, "secret: ")+len("secret: "):])

	out = c.mustRun(t, "users", "list")
	assert.Contains(t, out, "bob")

	c.mustRun(t, "logout")
	_, err = c.run(t, secret+"\n", "login", "-u", "bob", "--password-stdin")
	require.NoError(t, err)
	_, err = c.run(t, "", "users", "add", "carol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestLogoutForgetsTokens(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "s3cret\n", "login", "-u", "admin", "--password-stdin")
	require.NoError(t, err)
	c.mustRun(t, "logout", "--revoke")
	_, err = c.run(t, "", "whoami")
	require.Error(t, err)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "nope\n", "login", "-u", "admin", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestParseRange(t *testing.T) {
	r, err := parseRange("10.0.0.10-10.0.0.20")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", r.Start)
	assert.Equal(t, "10.0.0.20", r.End)

	_, err = parseRange("10.0.0.10")
	assert.Error(t, err)
}
