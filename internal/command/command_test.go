package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "create_guest", SnakeCase("createGuest"))
	assert.Equal(t, "query_storage_pools", SnakeCase("queryStoragePools"))
	assert.Equal(t, "get_task", TagGetTask.Field())
	assert.Equal(t, "nodes", SnakeCase("nodes"))
}

func TestRequestMarshal(t *testing.T) {
	data, err := json.Marshal(New(TagModifyGuestName, ModifyGuestName{ID: "g1", Name: "web"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"modifyGuestName","modify_guest_name":{"id":"g1","name":"web"}}`, string(data))

	data, err = json.Marshal(New(TagQueryNodes, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"queryNodes","query_nodes":{}}`, string(data))

	_, err = json.Marshal(Request{})
	require.Error(t, err)
}

func TestRequestRoundTripDecode(t *testing.T) {
	data, err := json.Marshal(New(TagCreateGuest, GuestSpec{Name: "db", Cores: 2, Memory: 2048}))
	require.NoError(t, err)

	var req Request
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, TagCreateGuest, req.Type)

	var spec GuestSpec
	require.NoError(t, req.Decode(&spec))
	assert.Equal(t, "db", spec.Name)
	assert.Equal(t, 2, spec.Cores)
	assert.Equal(t, uint64(2048), spec.Memory)
}

func TestRequestUnmarshalRequiresType(t *testing.T) {
	var req Request
	require.Error(t, json.Unmarshal([]byte(`{"get_task":{"id":"x"}}`), &req))
}

func TestGuestFlattensFieldGroups(t *testing.T) {
	g := Guest{
		ID:          "g1",
		GuestSpec:   GuestSpec{Name: "web", Cores: 4, Memory: 4096},
		GuestStatus: GuestStatus{State: GuestRunning, Node: "n1"},
	}
	data, err := json.Marshal(g)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "web", flat["name"])
	assert.Equal(t, "running", flat["state"])
	assert.Equal(t, "n1", flat["node"])
	assert.NotContains(t, flat, "GuestSpec")
}

func TestAsyncTags(t *testing.T) {
	assert.True(t, TagCreateGuest.Async())
	assert.True(t, TagDeleteVolume.Async())
	assert.False(t, TagQueryGuests.Async())
	assert.False(t, TagEnableNode.Async())
}
