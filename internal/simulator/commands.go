package simulator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"pkt.systems/vmplane/internal/command"
)

// ErrForbidden is returned when the caller lacks the admin role.
var ErrForbidden = errors.New("permission denied")

type commandHandler func(s *Server, caller *Claims, req command.Request) (command.Response, error)

var commandHandlers = map[command.Tag]commandHandler{
	command.TagCreateGuest:       (*Server).createGuest,
	command.TagDeleteGuest:       guestTask((*Inventory).DeleteGuest),
	command.TagStartGuest:        guestTask((*Inventory).StartGuest),
	command.TagStopGuest:         (*Server).stopGuest,
	command.TagRestartGuest:      guestTask((*Inventory).RestartGuest),
	command.TagQueryGuests:       (*Server).queryGuests,
	command.TagGetGuest:          (*Server).getGuest,
	command.TagModifyGuestName:   (*Server).modifyGuestName,
	command.TagModifyGuestCores:  (*Server).modifyGuestCores,
	command.TagModifyGuestMemory: (*Server).modifyGuestMemory,

	command.TagCreateSnapshot:  (*Server).createSnapshot,
	command.TagRestoreSnapshot: snapshotTask((*Inventory).RestoreSnapshot),
	command.TagDeleteSnapshot:  snapshotTask((*Inventory).DeleteSnapshot),
	command.TagQuerySnapshots:  (*Server).querySnapshots,

	command.TagCreateVolume: (*Server).createVolume,
	command.TagDeleteVolume: (*Server).deleteVolume,

	command.TagCreateStoragePool: admin((*Server).createStoragePool),
	command.TagDeleteStoragePool: admin((*Server).deleteStoragePool),
	command.TagQueryStoragePools: (*Server).queryStoragePools,

	command.TagCreateNetworkPool: admin((*Server).createNetworkPool),
	command.TagDeleteNetworkPool: admin((*Server).deleteNetworkPool),
	command.TagQueryNetworkPools: (*Server).queryNetworkPools,
	command.TagAddAddressRange:   admin((*Server).addAddressRange),

	command.TagQueryNodes:  (*Server).queryNodes,
	command.TagEnableNode:  admin(nodeToggle(true)),
	command.TagDisableNode: admin(nodeToggle(false)),

	command.TagCreateUser:       admin((*Server).createUser),
	command.TagDeleteUser:       admin((*Server).deleteUser),
	command.TagQueryUsers:       admin((*Server).queryUsers),
	command.TagChangeUserSecret: (*Server).changeUserSecret,

	command.TagGetTask:      (*Server).getTask,
	command.TagLogoutDevice: (*Server).logoutDevice,
}

// dispatch runs one command. Handler errors become the envelope error.
func (s *Server) dispatch(caller *Claims, req command.Request) command.Response {
	handler, ok := commandHandlers[req.Type]
	if !ok {
		return command.Response{Error: fmt.Sprintf("unsupported command %q", req.Type)}
	}
	resp, err := handler(s, caller, req)
	if err != nil {
		return command.Response{Error: err.Error()}
	}
	return resp
}

func isAdmin(caller *Claims) bool {
	return slices.Contains(caller.Roles, RoleAdmin)
}

func admin(next commandHandler) commandHandler {
	return func(s *Server, caller *Claims, req command.Request) (command.Response, error) {
		if !isAdmin(caller) {
			return command.Response{}, ErrForbidden
		}
		return next(s, caller, req)
	}
}

func data(d command.Data) (command.Response, error) {
	return command.Response{Data: &d}, nil
}

func (s *Server) submit(tag command.Tag, ref command.Task, apply func() error) (command.Response, error) {
	task := s.tasks.Submit(tag, ref, apply)
	s.logger.Debug("task submitted", "task", task.ID, "type", tag)
	return command.Response{ID: task.ID}, nil
}

func guestTask(op func(*Inventory, string) error) commandHandler {
	return func(s *Server, _ *Claims, req command.Request) (command.Response, error) {
		var ref command.GuestRef
		if err := req.Decode(&ref); err != nil {
			return command.Response{}, err
		}
		if ref.ID == "" {
			return command.Response{}, errors.New("guest id is required")
		}
		return s.submit(req.Type, command.Task{Guest: ref.ID}, func() error {
			return op(s.inventory, ref.ID)
		})
	}
}

func snapshotTask(op func(*Inventory, command.SnapshotRef) error) commandHandler {
	return func(s *Server, _ *Claims, req command.Request) (command.Response, error) {
		var ref command.SnapshotRef
		if err := req.Decode(&ref); err != nil {
			return command.Response{}, err
		}
		return s.submit(req.Type, command.Task{Guest: ref.Guest, Snapshot: ref.ID}, func() error {
			return op(s.inventory, ref)
		})
	}
}

func (s *Server) createGuest(_ *Claims, req command.Request) (command.Response, error) {
	var spec command.GuestSpec
	if err := req.Decode(&spec); err != nil {
		return command.Response{}, err
	}
	id := uuid.NewString()
	return s.submit(req.Type, command.Task{Guest: id}, func() error {
		return s.inventory.CreateGuest(id, spec)
	})
}

func (s *Server) stopGuest(_ *Claims, req command.Request) (command.Response, error) {
	var stop command.StopGuest
	if err := req.Decode(&stop); err != nil {
		return command.Response{}, err
	}
	return s.submit(req.Type, command.Task{Guest: stop.ID}, func() error {
		return s.inventory.StopGuest(stop.ID, stop.Force)
	})
}

func (s *Server) queryGuests(_ *Claims, req command.Request) (command.Response, error) {
	var filter command.GuestFilter
	if err := req.Decode(&filter); err != nil {
		return command.Response{}, err
	}
	return data(command.Data{Guests: s.inventory.Guests(filter)})
}

func (s *Server) getGuest(_ *Claims, req command.Request) (command.Response, error) {
	var ref command.GuestRef
	if err := req.Decode(&ref); err != nil {
		return command.Response{}, err
	}
	guest, err := s.inventory.Guest(ref.ID)
	if err != nil {
		return command.Response{}, err
	}
	return data(command.Data{Guest: &guest})
}

func (s *Server) modifyGuestName(_ *Claims, req command.Request) (command.Response, error) {
	var mod command.ModifyGuestName
	if err := req.Decode(&mod); err != nil {
		return command.Response{}, err
	}
	guest, err := s.inventory.RenameGuest(mod.ID, mod.Name)
	if err != nil {
		return command.Response{}, err
	}
	return data(command.Data{Guest: &guest})
}

func (s *Server) modifyGuestCores(_ *Claims, req command.Request) (command.Response, error) {
	var mod command.ModifyGuestCores
	if err := req.Decode(&mod); err != nil {
		return command.Response{}, err
	}
	return s.submit(req.Type, command.Task{Guest: mod.ID}, func() error {
		return s.inventory.SetGuestCores(mod.ID, mod.Cores)
	})
}

func (s *Server) modifyGuestMemory(_ *Claims, req command.Request) (command.Response, error) {
	var mod command.ModifyGuestMemory
	if err := req.Decode(&mod); err != nil {
		return command.Response{}, err
	}
	return s.submit(req.Type, command.Task{Guest: mod.ID}, func() error {
		return s.inventory.SetGuestMemory(mod.ID, mod.Memory)
	})
}

func (s *Server) createSnapshot(_ *Claims, req command.Request) (command.Response, error) {
	var spec command.SnapshotSpec
	if err := req.Decode(&spec); err != nil {
		return command.Response{}, err
	}
	id := uuid.NewString()
	return s.submit(req.Type, command.Task{Guest: spec.Guest, Snapshot: id}, func() error {
		return s.inventory.CreateSnapshot(id, spec)
	})
}

func (s *Server) querySnapshots(_ *Claims, req command.Request) (command.Response, error) {
	var ref command.GuestRef
	if err := req.Decode(&ref); err != nil {
		return command.Response{}, err
	}
	snaps, err := s.inventory.Snapshots(ref.ID)
	if err != nil {
		return command.Response{}, err
	}
	return data(command.Data{Snapshots: snaps})
}

func (s *Server) createVolume(_ *Claims, req command.Request) (command.Response, error) {
	var spec command.VolumeSpec
	if err := req.Decode(&spec); err != nil {
		return command.Response{}, err
	}
	id := uuid.NewString()
	return s.submit(req.Type, command.Task{Guest: spec.Guest, Volume: id}, func() error {
		return s.inventory.CreateVolume(id, spec)
	})
}

func (s *Server) deleteVolume(_ *Claims, req command.Request) (command.Response, error) {
	var ref command.VolumeRef
	if err := req.Decode(&ref); err != nil {
		return command.Response{}, err
	}
	return s.submit(req.Type, command.Task{Guest: ref.Guest, Volume: ref.ID}, func() error {
		return s.inventory.DeleteVolume(ref)
	})
}

func (s *Server) createStoragePool(_ *Claims, req command.Request) (command.Response, error) {
	var cfg command.StoragePoolConfig
	if err := req.Decode(&cfg); err != nil {
		return command.Response{}, err
	}
	pool, err := s.inventory.CreateStoragePool(cfg)
	if err != nil {
		return command.Response{}, err
	}
	return data(command.Data{StoragePools: []command.StoragePool{pool}})
}

func (s *Server) deleteStoragePool(_ *Claims, req command.Request) (command.Response, error) {
	var ref command.NameRef
	if err := req.Decode(&ref); err != nil {
		return command.Response{}, err
	}
	if err := s.inventory.DeleteStoragePool(ref.Name); err != nil {
		return command.Response{}, err
	}
	return data(command.Data{})
}

func (s *Server) queryStoragePools(*Claims, command.Request) (command.Response, error) {
	return data(command.Data{StoragePools: s.inventory.StoragePools()})
}

func (s *Server) createNetworkPool(_ *Claims, req command.Request) (command.Response, error) {
	var cfg command.NetworkPoolConfig
	if err := req.Decode(&cfg); err != nil {
		return command.Response{}, err
	}
	pool, err := s.inventory.CreateNetworkPool(cfg)
	if err != nil {
		return command.Response{}, err
	}
	return data(command.Data{NetworkPools: []command.NetworkPool{pool}})
}

func (s *Server) deleteNetworkPool(_ *Claims, req command.Request) (command.Response, error) {
	var ref command.NameRef
	if err := req.Decode(&ref); err != nil {
		return command.Response{}, err
	}
	if err := s.inventory.DeleteNetworkPool(ref.Name); err != nil {
		return command.Response{}, err
	}
	return data(command.Data{})
}

func (s *Server) queryNetworkPools(*Claims, command.Request) (command.Response, error) {
	return data(command.Data{NetworkPools: s.inventory.NetworkPools()})
}

func (s *Server) addAddressRange(_ *Claims, req command.Request) (command.Response, error) {
	var add command.AddAddressRange
	if err := req.Decode(&add); err != nil {
		return command.Response{}, err
	}
	pool, err := s.inventory.AddAddressRange(add.Pool, add.Range)
	if err != nil {
		return command.Response{}, err
	}
	return data(command.Data{NetworkPools: []command.NetworkPool{pool}})
}

func (s *Server) queryNodes(*Claims, command.Request) (command.Response, error) {
	return data(command.Data{Nodes: s.inventory.Nodes()})
}

func nodeToggle(enabled bool) commandHandler {
	return func(s *Server, _ *Claims, req command.Request) (command.Response, error) {
		var ref command.NameRef
		if err := req.Decode(&ref); err != nil {
			return command.Response{}, err
		}
		node, err := s.inventory.SetNodeEnabled(ref.Name, enabled)
		if err != nil {
			return command.Response{}, err
		}
		return data(command.Data{Nodes: []command.Node{node}})
	}
}

func (s *Server) createUser(_ *Claims, req command.Request) (command.Response, error) {
	var create command.CreateUser
	if err := req.Decode(&create); err != nil {
		return command.Response{}, err
	}
	user, err := CreateUser(s.users, create.Name, create.Secret, create.Roles, s.clock.Now())
	if err != nil {
		return command.Response{}, err
	}
	if err := s.persistUsers(); err != nil {
		return command.Response{}, err
	}
	return data(command.Data{Users: []command.User{publicUser(user)}})
}

func (s *Server) deleteUser(caller *Claims, req command.Request) (command.Response, error) {
	var ref command.NameRef
	if err := req.Decode(&ref); err != nil {
		return command.Response{}, err
	}
	if ref.Name == caller.Subject {
		return command.Response{}, errors.New("cannot delete the calling user")
	}
	if err := DeleteUser(s.users, ref.Name); err != nil {
		return command.Response{}, err
	}
	s.issuer.RevokeUser(ref.Name)
	if err := s.persistUsers(); err != nil {
		return command.Response{}, err
	}
	return data(command.Data{})
}

func (s *Server) queryUsers(*Claims, command.Request) (command.Response, error) {
	users := s.users.List()
	out := make([]command.User, 0, len(users))
	for _, u := range users {
		out = append(out, publicUser(u))
	}
	return data(command.Data{Users: out})
}

func (s *Server) changeUserSecret(caller *Claims, req command.Request) (command.Response, error) {
	var change command.ChangeUserSecret
	if err := req.Decode(&change); err != nil {
		return command.Response{}, err
	}
	if change.Name != caller.Subject && !isAdmin(caller) {
		return command.Response{}, ErrForbidden
	}
	if err := ChangeUserSecret(s.users, change.Name, change.Secret); err != nil {
		return command.Response{}, err
	}
	if err := s.persistUsers(); err != nil {
		return command.Response{}, err
	}
	return data(command.Data{})
}

func (s *Server) getTask(_ *Claims, req command.Request) (command.Response, error) {
	var ref command.TaskRef
	if err := req.Decode(&ref); err != nil {
		return command.Response{}, err
	}
	task, err := s.tasks.Poll(ref.ID)
	if err != nil {
		return command.Response{}, err
	}
	return data(command.Data{Task: &task})
}

func (s *Server) logoutDevice(caller *Claims, req command.Request) (command.Response, error) {
	var logout command.LogoutDevice
	if err := req.Decode(&logout); err != nil {
		return command.Response{}, err
	}
	if logout.User == "" {
		logout.User = caller.Subject
	}
	if logout.Device == "" {
		logout.Device = caller.Device
	}
	if logout.User != caller.Subject && !isAdmin(caller) {
		return command.Response{}, ErrForbidden
	}
	n := s.issuer.RevokeDevice(logout.User, logout.Device)
	s.logger.Info("device logged out", "user", logout.User, "device", logout.Device, "revoked", n)
	return data(command.Data{})
}

func publicUser(u User) command.User {
	return command.User{Name: u.Name, Roles: slices.Clone(u.Roles)}
}
