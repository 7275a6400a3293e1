package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/authstore"
	"pkt.systems/vmplane/internal/command"
	"pkt.systems/vmplane/internal/monitor"
	"pkt.systems/vmplane/internal/session"
)

const (
	adminUser   = "admin"
	adminSecret = "admin-secret"
)

func quietLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, DisableTimestamp: true, NoColor: true})
}

func newSimulator(t *testing.T) (*Server, string) {
	t.Helper()
	sim, err := New(Options{Logger: quietLogger(), TaskPolls: 2})
	require.NoError(t, err)
	require.NoError(t, sim.Bootstrap(adminUser, adminSecret))
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)
	return sim, srv.URL + DefaultBasePath + "/"
}

func connect(t *testing.T, endpoint, device string) *session.Connector {
	t.Helper()
	conn, err := session.New(session.Options{
		Endpoint: endpoint,
		Device:   device,
		Store:    authstore.NewMemoryStore(),
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func login(t *testing.T, endpoint, device, user, secret string) *session.Connector {
	t.Helper()
	conn := connect(t, endpoint, device)
	_, err := conn.AuthenticateByPassword(context.Background(), user, secret)
	require.NoError(t, err)
	return conn
}

func execute(t *testing.T, conn *session.Connector, tag command.Tag, payload any) (command.Task, error) {
	t.Helper()
	return conn.ExecuteTask(context.Background(), command.New(tag, payload), 5*time.Second, 5*time.Millisecond)
}

func rawPost(t *testing.T, url string, headers map[string]string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestPasswordLoginIssuesCompleteBundle(t *testing.T) {
	sim, endpoint := newSimulator(t)
	conn := login(t, endpoint, "laptop", adminUser, adminSecret)

	tokens := conn.Tokens()
	require.NoError(t, authstore.Validate(tokens, time.Now()))
	assert.Equal(t, adminUser, tokens.User)
	assert.Equal(t, sim.Issuer().PublicKey(), tokens.PublicKey)
	assert.True(t, tokens.HasRole(RoleAdmin))
	assert.Greater(t, conn.ScheduledRefresh(), time.Duration(0))
}

func TestPasswordLoginRejectsWrongSecret(t *testing.T) {
	_, endpoint := newSimulator(t)
	conn := connect(t, endpoint, "laptop")

	_, err := conn.AuthenticateByPassword(context.Background(), adminUser, "nope")
	require.ErrorIs(t, err, session.ErrUnauthenticated)
	assert.False(t, conn.Authenticated())
}

func TestTokenLoginWithRegisteredKey(t *testing.T) {
	sim, endpoint := newSimulator(t)
	key, err := session.NewKey(adminUser, time.Now())
	require.NoError(t, err)
	require.NoError(t, RegisterKey(sim.Users(), adminUser, key.Serial, key.PublicKey))
	token, err := session.EncodeKeyToken(key)
	require.NoError(t, err)

	conn := connect(t, endpoint, "ci")
	bundle, err := conn.AuthenticateByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, adminUser, bundle.User)
	assert.Equal(t, session.MethodToken, conn.Method())

	other, err := session.NewKey(adminUser, time.Now())
	require.NoError(t, err)
	_, err = connect(t, endpoint, "ci").AuthenticateByKey(context.Background(), other)
	require.ErrorIs(t, err, session.ErrUnauthenticated)
}

func TestCommandsRequireCSRFHeader(t *testing.T) {
	_, endpoint := newSimulator(t)
	conn := login(t, endpoint, "laptop", adminUser, adminSecret)
	tokens := conn.Tokens()
	body := command.New(command.TagQueryNodes, nil)

	resp := rawPost(t, endpoint+"commands/", map[string]string{"Authorization": "Bearer " + tokens.AccessToken}, body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = rawPost(t, endpoint+"commands/", map[string]string{
		"Authorization": "Bearer " + tokens.AccessToken,
		"X-CSRF-Token":  tokens.CSRFToken,
	}, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshRotatesToken(t *testing.T) {
	_, endpoint := newSimulator(t)
	conn := login(t, endpoint, "laptop", adminUser, adminSecret)
	old := conn.Tokens()
	req := map[string]string{"user": adminUser, "device": "laptop", "token": old.RefreshToken}

	resp := rawPost(t, endpoint+"auth/refresh", nil, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env struct {
		Data authstore.Bundle `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.NotEqual(t, old.RefreshToken, env.Data.RefreshToken)
	assert.NotEqual(t, old.AccessToken, env.Data.AccessToken)

	resp = rawPost(t, endpoint+"auth/refresh", nil, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshIsBoundToDevice(t *testing.T) {
	_, endpoint := newSimulator(t)
	conn := login(t, endpoint, "laptop", adminUser, adminSecret)
	resp := rawPost(t, endpoint+"auth/refresh", nil, map[string]string{
		"user": adminUser, "device": "phone", "token": conn.Tokens().RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutDeviceRevokesTokens(t *testing.T) {
	_, endpoint := newSimulator(t)
	conn := login(t, endpoint, "laptop", adminUser, adminSecret)
	tokens := conn.Tokens()
	other := login(t, endpoint, "desktop", adminUser, adminSecret)

	require.NoError(t, conn.LogoutDevice(context.Background()))
	assert.False(t, conn.Authenticated())

	resp := rawPost(t, endpoint+"commands/", map[string]string{
		"Authorization": "Bearer " + tokens.AccessToken,
		"X-CSRF-Token":  tokens.CSRFToken,
	}, command.New(command.TagQueryNodes, nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err := other.RequestCommand(context.Background(), command.New(command.TagQueryNodes, nil))
	require.NoError(t, err)
}

func TestGuestLifecycleAndMonitor(t *testing.T) {
	_, endpoint := newSimulator(t)
	conn := login(t, endpoint, "laptop", adminUser, adminSecret)
	ctx := context.Background()

	task, err := execute(t, conn, command.TagCreateGuest, command.GuestSpec{Name: "web", Cores: 2, Memory: 2048, Disks: []uint64{10240}})
	require.NoError(t, err)
	require.NotEmpty(t, task.Guest)
	assert.Equal(t, 100, task.Progress)

	data, err := conn.RequestCommand(ctx, command.New(command.TagGetGuest, command.GuestRef{ID: task.Guest}))
	require.NoError(t, err)
	require.NotNil(t, data.Guest)
	assert.Equal(t, command.GuestStopped, data.Guest.State)
	assert.Equal(t, []string{"192.168.100.10"}, data.Guest.Addresses)
	require.Len(t, data.Guest.Volumes, 1)

	_, err = conn.RequestMonitor(ctx, task.Guest)
	var cerr *session.CommandError
	require.ErrorAs(t, err, &cerr)

	_, err = execute(t, conn, command.TagStartGuest, command.GuestRef{ID: task.Guest})
	require.NoError(t, err)

	ch, err := conn.RequestMonitor(ctx, task.Guest)
	require.NoError(t, err)
	assert.Equal(t, "vnc", ch.Protocol)

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	mc, err := monitor.Dial(dctx, ch, monitor.Options{Logger: quietLogger()})
	require.NoError(t, err)
	_, err = mc.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(mc, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	_ = mc.Close()

	_, err = monitor.Dial(dctx, ch, monitor.Options{Logger: quietLogger()})
	require.ErrorIs(t, err, monitor.ErrRejected)

	ch, err = conn.RequestMonitor(ctx, task.Guest)
	require.NoError(t, err)
	rc, err := monitor.Dial(dctx, ch, monitor.Options{Logger: quietLogger(), Raw: true})
	require.NoError(t, err)
	_, err = rc.Write([]byte("pong"))
	require.NoError(t, err)
	_, err = io.ReadFull(rc, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))
	_ = rc.Close()
	_, err = monitor.Dial(dctx, ch, monitor.Options{Logger: quietLogger(), Raw: true})
	require.Error(t, err)

	_, err = execute(t, conn, command.TagDeleteGuest, command.GuestRef{ID: task.Guest})
	var terr *session.TaskError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Message, "running")

	_, err = execute(t, conn, command.TagStopGuest, command.StopGuest{ID: task.Guest})
	require.NoError(t, err)
	_, err = execute(t, conn, command.TagDeleteGuest, command.GuestRef{ID: task.Guest})
	require.NoError(t, err)

	data, err = conn.RequestCommand(ctx, command.New(command.TagQueryNetworkPools, nil))
	require.NoError(t, err)
	require.Len(t, data.NetworkPools, 1)
	assert.Zero(t, data.NetworkPools[0].Allocated)
}

func TestSnapshotsAndVolumes(t *testing.T) {
	_, endpoint := newSimulator(t)
	conn := login(t, endpoint, "laptop", adminUser, adminSecret)
	ctx := context.Background()

	guest, err := execute(t, conn, command.TagCreateGuest, command.GuestSpec{Name: "db", Cores: 4, Memory: 8192})
	require.NoError(t, err)

	first, err := execute(t, conn, command.TagCreateSnapshot, command.SnapshotSpec{Guest: guest.Guest, Name: "before"})
	require.NoError(t, err)
	_, err = execute(t, conn, command.TagCreateSnapshot, command.SnapshotSpec{Guest: guest.Guest, Name: "after"})
	require.NoError(t, err)
	_, err = execute(t, conn, command.TagRestoreSnapshot, command.SnapshotRef{Guest: guest.Guest, ID: first.Snapshot})
	require.NoError(t, err)

	data, err := conn.RequestCommand(ctx, command.New(command.TagQuerySnapshots, command.GuestRef{ID: guest.Guest}))
	require.NoError(t, err)
	require.Len(t, data.Snapshots, 2)
	assert.True(t, data.Snapshots[0].Current)
	assert.False(t, data.Snapshots[1].Current)

	vol, err := execute(t, conn, command.TagCreateVolume, command.VolumeSpec{Guest: guest.Guest, Size: 512})
	require.NoError(t, err)
	require.NotEmpty(t, vol.Volume)

	data, err = conn.RequestCommand(ctx, command.New(command.TagQueryStoragePools, nil))
	require.NoError(t, err)
	require.Len(t, data.StoragePools, 1)
	assert.Equal(t, uint64(512), data.StoragePools[0].Allocated)

	_, err = execute(t, conn, command.TagDeleteVolume, command.VolumeRef{Guest: guest.Guest, ID: vol.Volume})
	require.NoError(t, err)
}

func TestNonAdminIsForbidden(t *testing.T) {
	_, endpoint := newSimulator(t)
	admin := login(t, endpoint, "laptop", adminUser, adminSecret)
	ctx := context.Background()

	_, err := admin.RequestCommand(ctx, command.New(command.TagCreateUser, command.CreateUser{
		User:   command.User{Name: "bob"},
		Secret: "bob-secret",
	}))
	require.NoError(t, err)

	bob := login(t, endpoint, "phone", "bob", "bob-secret")
	_, err = bob.RequestCommand(ctx, command.New(command.TagCreateStoragePool, command.StoragePoolConfig{Name: "fast"}))
	var cerr *session.CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrForbidden.Error(), cerr.Message)

	require.NoError(t, bob.SendCommand(ctx, command.New(command.TagChangeUserSecret, command.ChangeUserSecret{Name: "bob", Secret: "new"})))
	_, err = connect(t, endpoint, "phone").AuthenticateByPassword(ctx, "bob", "new")
	require.NoError(t, err)

	require.NoError(t, admin.SendCommand(ctx, command.New(command.TagDeleteUser, command.NameRef{Name: "bob"})))
	_, err = bob.RequestCommand(ctx, command.New(command.TagQueryNodes, nil))
	require.ErrorIs(t, err, session.ErrAuthorizationFailed)
}

func TestUnknownCommandIsEnvelopeError(t *testing.T) {
	_, endpoint := newSimulator(t)
	conn := login(t, endpoint, "laptop", adminUser, adminSecret)
	_, err := conn.RequestCommand(context.Background(), command.New(command.Tag("rebootCluster"), nil))
	var cerr *session.CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "unsupported")
}
