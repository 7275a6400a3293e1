// Package command defines the tagged command union posted to the
// control plane and the response shapes it returns.
//
// A request is encoded as {"type": <tag>, <snake_tag>: {...}}, for
// example {"type":"createGuest","create_guest":{...}}.
package command

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Tag names a backend operation.
type Tag string

const (
	TagCreateGuest       Tag = "createGuest"
	TagDeleteGuest       Tag = "deleteGuest"
	TagStartGuest        Tag = "startGuest"
	TagStopGuest         Tag = "stopGuest"
	TagRestartGuest      Tag = "restartGuest"
	TagQueryGuests       Tag = "queryGuests"
	TagGetGuest          Tag = "getGuest"
	TagModifyGuestName   Tag = "modifyGuestName"
	TagModifyGuestCores  Tag = "modifyGuestCores"
	TagModifyGuestMemory Tag = "modifyGuestMemory"

	TagCreateSnapshot  Tag = "createSnapshot"
	TagRestoreSnapshot Tag = "restoreSnapshot"
	TagDeleteSnapshot  Tag = "deleteSnapshot"
	TagQuerySnapshots  Tag = "querySnapshots"

	TagCreateVolume Tag = "createVolume"
	TagDeleteVolume Tag = "deleteVolume"

	TagCreateStoragePool Tag = "createStoragePool"
	TagDeleteStoragePool Tag = "deleteStoragePool"
	TagQueryStoragePools Tag = "queryStoragePools"

	TagCreateNetworkPool Tag = "createNetworkPool"
	TagDeleteNetworkPool Tag = "deleteNetworkPool"
	TagQueryNetworkPools Tag = "queryNetworkPools"
	TagAddAddressRange   Tag = "addAddressRange"

	TagQueryNodes  Tag = "queryNodes"
	TagEnableNode  Tag = "enableNode"
	TagDisableNode Tag = "disableNode"

	TagCreateUser       Tag = "createUser"
	TagDeleteUser       Tag = "deleteUser"
	TagQueryUsers       Tag = "queryUsers"
	TagChangeUserSecret Tag = "changeUserSecret"

	TagGetTask      Tag = "getTask"
	TagLogoutDevice Tag = "logoutDevice"
)

var asyncTags = map[Tag]bool{
	TagCreateGuest:       true,
	TagDeleteGuest:       true,
	TagStartGuest:        true,
	TagStopGuest:         true,
	TagRestartGuest:      true,
	TagModifyGuestCores:  true,
	TagModifyGuestMemory: true,
	TagCreateSnapshot:    true,
	TagRestoreSnapshot:   true,
	TagDeleteSnapshot:    true,
	TagCreateVolume:      true,
	TagDeleteVolume:      true,
}

// Async reports whether the backend answers t with a task id.
func (t Tag) Async() bool { return asyncTags[t] }

// Field returns the snake_case payload field name for t.
func (t Tag) Field() string { return SnakeCase(string(t)) }

// Request is one tagged command.
type Request struct {
	Type    Tag
	Payload any
}

// New returns a Request for tag carrying payload.
func New(tag Tag, payload any) Request {
	return Request{Type: tag, Payload: payload}
}

// MarshalJSON encodes the request as {"type":tag, snake_tag:payload}.
// A nil payload is sent as an empty object.
func (r Request) MarshalJSON() ([]byte, error) {
	if r.Type == "" {
		return nil, fmt.Errorf("command type is required")
	}
	var payload any = struct{}{}
	if r.Payload != nil {
		payload = r.Payload
	}
	return json.Marshal(map[string]any{
		"type":         r.Type,
		r.Type.Field(): payload,
	})
}

// UnmarshalJSON decodes a tagged request. Payload is left as a
// json.RawMessage for the receiver to decode.
func (r *Request) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	rawType, ok := fields["type"]
	if !ok {
		return fmt.Errorf("command type is required")
	}
	var tag Tag
	if err := json.Unmarshal(rawType, &tag); err != nil {
		return fmt.Errorf("decode command type: %w", err)
	}
	r.Type = tag
	if payload, ok := fields[tag.Field()]; ok {
		r.Payload = payload
	} else {
		r.Payload = json.RawMessage("{}")
	}
	return nil
}

// Decode unmarshals the raw payload of a decoded request into v.
func (r Request) Decode(v any) error {
	raw, ok := r.Payload.(json.RawMessage)
	if !ok {
		data, err := json.Marshal(r.Payload)
		if err != nil {
			return err
		}
		raw = data
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.Type, err)
	}
	return nil
}

// Response is the reply to a command.
type Response struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
	Data  *Data  `json:"data,omitempty"`
}

// Data carries the result shapes. Only the field matching the command
// is populated.
type Data struct {
	Task         *Task         `json:"task,omitempty"`
	Guest        *Guest        `json:"guest,omitempty"`
	Guests       []Guest       `json:"guests,omitempty"`
	Snapshots    []Snapshot    `json:"snapshots,omitempty"`
	StoragePools []StoragePool `json:"storage_pools,omitempty"`
	NetworkPools []NetworkPool `json:"network_pools,omitempty"`
	Nodes        []Node        `json:"nodes,omitempty"`
	Users        []User        `json:"users,omitempty"`
}

// SnakeCase converts a lowerCamel identifier to snake_case.
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
