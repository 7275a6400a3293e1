package command

// TaskStatus is the lifecycle state of a backend task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
)

// Task is an asynchronous unit of backend work.
type Task struct {
	ID       string     `json:"id"`
	Type     Tag        `json:"type"`
	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
	Error    string     `json:"error,omitempty"`
	Guest    string     `json:"guest,omitempty"`
	Volume   string     `json:"volume,omitempty"`
	Snapshot string     `json:"snapshot,omitempty"`
	Node     string     `json:"node,omitempty"`
}

// Completed reports whether the task reached its terminal state.
func (t Task) Completed() bool { return t.Status == TaskCompleted }

// GuestSpec is the configurable part of a guest.
type GuestSpec struct {
	Name        string   `json:"name"`
	Cores       int      `json:"cores"`
	Memory      uint64   `json:"memory"`
	Disks       []uint64 `json:"disks,omitempty"`
	Template    string   `json:"template,omitempty"`
	StoragePool string   `json:"storage_pool,omitempty"`
	NetworkPool string   `json:"network_pool,omitempty"`
}

// GuestState is a guest's runtime state.
type GuestState string

const (
	GuestStopped GuestState = "stopped"
	GuestRunning GuestState = "running"
)

// GuestStatus is the observed part of a guest.
type GuestStatus struct {
	State       GuestState `json:"state"`
	Node        string     `json:"node,omitempty"`
	Addresses   []string   `json:"addresses,omitempty"`
	CreatedTime string     `json:"created_time,omitempty"`
}

// Guest is a virtual machine.
type Guest struct {
	ID string `json:"id"`
	GuestSpec
	GuestStatus
	Volumes []Volume `json:"volumes,omitempty"`
}

// GuestRef addresses one guest.
type GuestRef struct {
	ID string `json:"id"`
}

// StopGuest stops a guest, optionally forcing power off.
type StopGuest struct {
	ID    string `json:"id"`
	Force bool   `json:"force,omitempty"`
}

// GuestFilter narrows queryGuests.
type GuestFilter struct {
	Node   string `json:"node,omitempty"`
	Pool   string `json:"pool,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ModifyGuestName renames a guest.
type ModifyGuestName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModifyGuestCores changes a guest's core count.
type ModifyGuestCores struct {
	ID    string `json:"id"`
	Cores int    `json:"cores"`
}

// ModifyGuestMemory changes a guest's memory in MiB.
type ModifyGuestMemory struct {
	ID     string `json:"id"`
	Memory uint64 `json:"memory"`
}

// SnapshotSpec describes a snapshot to create.
type SnapshotSpec struct {
	Guest       string `json:"guest"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Snapshot is a point-in-time guest image.
type Snapshot struct {
	ID string `json:"id"`
	SnapshotSpec
	CreatedTime string `json:"created_time,omitempty"`
	Current     bool   `json:"current,omitempty"`
}

// SnapshotRef addresses a snapshot of a guest.
type SnapshotRef struct {
	Guest string `json:"guest"`
	ID    string `json:"id"`
}

// VolumeSpec describes a volume to attach.
type VolumeSpec struct {
	Guest string `json:"guest"`
	Size  uint64 `json:"size"`
	Pool  string `json:"pool,omitempty"`
}

// Volume is a disk attached to a guest.
type Volume struct {
	ID string `json:"id"`
	VolumeSpec
}

// VolumeRef addresses a volume of a guest.
type VolumeRef struct {
	Guest string `json:"guest"`
	ID    string `json:"id"`
}

// StoragePoolConfig describes a storage pool.
type StoragePoolConfig struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Host   string `json:"host,omitempty"`
	Target string `json:"target,omitempty"`
}

// StoragePool is a storage pool with usage.
type StoragePool struct {
	StoragePoolConfig
	Capacity  uint64 `json:"capacity"`
	Allocated uint64 `json:"allocated"`
	Enabled   bool   `json:"enabled"`
}

// AddressRange is an inclusive IPv4 range.
type AddressRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NetworkPoolConfig describes a network address pool.
type NetworkPoolConfig struct {
	Name    string   `json:"name"`
	Gateway string   `json:"gateway"`
	DNS     []string `json:"dns,omitempty"`
}

// NetworkPool is a network pool with its ranges and usage.
type NetworkPool struct {
	NetworkPoolConfig
	Ranges    []AddressRange `json:"ranges,omitempty"`
	Allocated int            `json:"allocated"`
}

// AddAddressRange appends a range to a network pool.
type AddAddressRange struct {
	Pool  string       `json:"pool"`
	Range AddressRange `json:"range"`
}

// NameRef addresses a pool, node or user by name.
type NameRef struct {
	Name string `json:"name"`
}

// Node is a cluster host.
type Node struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Enabled bool   `json:"enabled"`
	Cores   int    `json:"cores"`
	Memory  uint64 `json:"memory"`
	Guests  int    `json:"guests"`
}

// User is a control-plane account.
type User struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

// CreateUser creates an account with a secret.
type CreateUser struct {
	User
	Secret string `json:"secret"`
}

// ChangeUserSecret replaces an account's secret.
type ChangeUserSecret struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// TaskRef addresses a task.
type TaskRef struct {
	ID string `json:"id"`
}

// LogoutDevice revokes the tokens issued to a device.
type LogoutDevice struct {
	User   string `json:"user"`
	Device string `json:"device"`
}

// MonitorRequest asks for a guest's monitor channel.
type MonitorRequest struct {
	ID string `json:"id"`
}

// MonitorChannel describes how to reach a guest console.
type MonitorChannel struct {
	Protocol     string `json:"protocol"`
	Secret       string `json:"secret"`
	URL          string `json:"url"`
	PublishedURL string `json:"published_url,omitempty"`
}
