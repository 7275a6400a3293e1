package vmplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/vmplane/internal/command"
)

// cannedPlane answers task polls with task and every other command with
// the task id.
func cannedPlane(t *testing.T, task Task) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/commands/", func(w http.ResponseWriter, r *http.Request) {
		var req command.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var resp command.Response
		switch req.Type {
		case command.TagGetTask:
			resp.Data = &command.Data{Task: &task}
		default:
			resp.ID = task.ID
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientOptions{
		Endpoint:     srv.URL + "/api/v1/",
		Device:       "test-device",
		Logger:       quietLogger(),
		TLSDir:       t.TempDir(),
		TaskTimeout:  5 * time.Second,
		TaskInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	now := time.Now().UTC()
	require.NoError(t, c.LoadTokens(context.Background(), Bundle{
		AccessToken:      "access",
		RefreshToken:     "refresh",
		CSRFToken:        "csrf",
		PublicKey:        "pub",
		Algorithm:        "ed25519",
		AccessExpiredAt:  now.Add(15 * time.Minute).Format(time.RFC3339),
		RefreshExpiredAt: now.Add(time.Hour).Format(time.RFC3339),
		User:             "alice",
	}))
	return c
}

func TestCompletedTaskWithoutResultReference(t *testing.T) {
	ctx := context.Background()
	c := cannedPlane(t, Task{ID: "task-1", Type: command.TagCreateGuest, Status: TaskCompleted, Progress: 100})

	_, err := c.CreateGuest(ctx, GuestSpec{Name: "web", Cores: 1, Memory: 512})
	require.ErrorIs(t, err, ErrMissingResult)

	_, err = c.CreateSnapshot(ctx, SnapshotSpec{Guest: "g1", Name: "s"})
	require.ErrorIs(t, err, ErrMissingResult)

	_, err = c.CreateVolume(ctx, VolumeSpec{Guest: "g1", Size: 1024})
	require.ErrorIs(t, err, ErrMissingResult)
}

func TestCompletedTaskResultReferenceIsReturned(t *testing.T) {
	c := cannedPlane(t, Task{ID: "task-1", Type: command.TagCreateGuest, Status: TaskCompleted, Guest: "g-42"})

	id, err := c.CreateGuest(context.Background(), GuestSpec{Name: "web", Cores: 1, Memory: 512})
	require.NoError(t, err)
	assert.Equal(t, "g-42", id)
}

func TestOperationsWithoutResultIgnoreReferences(t *testing.T) {
	c := cannedPlane(t, Task{ID: "task-1", Type: command.TagStartGuest, Status: TaskCompleted})
	require.NoError(t, c.StartGuest(context.Background(), "g1"))
}
