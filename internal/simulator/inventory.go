package simulator

import (
	"fmt"
	"net/netip"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/vmplane/internal/clock"
	"pkt.systems/vmplane/internal/command"
)

// DefaultPoolCapacity is the capacity in MiB given to storage pools.
const DefaultPoolCapacity uint64 = 1 << 20

type networkPool struct {
	pool command.NetworkPool
	used map[netip.Addr]string
}

// Inventory is the simulated cluster state. Sizes are in MiB.
type Inventory struct {
	clock clock.Clock

	mu        sync.Mutex
	guests    map[string]*command.Guest
	snapshots map[string][]command.Snapshot
	storage   map[string]*command.StoragePool
	network   map[string]*networkPool
	nodes     map[string]*command.Node
}

// NewInventory returns an empty inventory.
func NewInventory(clk clock.Clock) *Inventory {
	if clk == nil {
		clk = clock.Real()
	}
	return &Inventory{
		clock:     clk,
		guests:    make(map[string]*command.Guest),
		snapshots: make(map[string][]command.Snapshot),
		storage:   make(map[string]*command.StoragePool),
		network:   make(map[string]*networkPool),
		nodes:     make(map[string]*command.Node),
	}
}

// Seed installs two nodes and a default storage and network pool.
func Seed(inv *Inventory) {
	inv.AddNode(command.Node{Name: "node-1", Address: "10.0.0.11", Enabled: true, Cores: 32, Memory: 131072})
	inv.AddNode(command.Node{Name: "node-2", Address: "10.0.0.12", Enabled: true, Cores: 32, Memory: 131072})
	_, _ = inv.CreateStoragePool(command.StoragePoolConfig{Name: "default", Type: "dir", Target: "/var/lib/vmplane/images"})
	_, _ = inv.CreateNetworkPool(command.NetworkPoolConfig{Name: "default", Gateway: "192.168.100.1", DNS: []string{"192.168.100.1"}})
	_, _ = inv.AddAddressRange("default", command.AddressRange{Start: "192.168.100.10", End: "192.168.100.250"})
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q not found", kind, id)
}

// AddNode registers a cluster node.
func (inv *Inventory) AddNode(node command.Node) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	node.Guests = 0
	inv.nodes[node.Name] = &node
}

// Nodes lists nodes sorted by name.
func (inv *Inventory) Nodes() []command.Node {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]command.Node, 0, len(inv.nodes))
	for _, n := range inv.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetNodeEnabled toggles scheduling on a node. A node with running guests
// cannot be disabled.
func (inv *Inventory) SetNodeEnabled(name string, enabled bool) (command.Node, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	node, ok := inv.nodes[name]
	if !ok {
		return command.Node{}, notFound("node", name)
	}
	if !enabled {
		for _, g := range inv.guests {
			if g.Node == name && g.State == command.GuestRunning {
				return command.Node{}, fmt.Errorf("node %q has running guests", name)
			}
		}
	}
	node.Enabled = enabled
	return *node, nil
}

// CreateGuest places a new stopped guest on the least loaded node that
// fits it.
func (inv *Inventory) CreateGuest(id string, spec command.GuestSpec) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if spec.Name == "" {
		return fmt.Errorf("guest name is required")
	}
	if spec.Cores <= 0 || spec.Memory == 0 {
		return fmt.Errorf("guest needs cores and memory")
	}
	for _, g := range inv.guests {
		if g.Name == spec.Name {
			return fmt.Errorf("guest %q already exists", spec.Name)
		}
	}
	node := inv.placeLocked(spec)
	if node == nil {
		return fmt.Errorf("no enabled node fits %d cores and %d MiB", spec.Cores, spec.Memory)
	}

	storage, err := inv.storagePoolLocked(spec.StoragePool)
	if err != nil && (len(spec.Disks) > 0 || spec.StoragePool != "") {
		return err
	}
	var total uint64
	for _, size := range spec.Disks {
		total += size
	}
	if total > 0 && storage.Allocated+total > storage.Capacity {
		return fmt.Errorf("storage pool %q has no room for %d MiB", storage.Name, total)
	}

	var addresses []string
	if pool, err := inv.networkPoolLocked(spec.NetworkPool); err == nil {
		addr, err := pool.allocate(id)
		if err != nil {
			return err
		}
		if addr.IsValid() {
			addresses = []string{addr.String()}
		}
		spec.NetworkPool = pool.pool.Name
	} else if spec.NetworkPool != "" {
		return err
	}

	guest := &command.Guest{
		ID:        id,
		GuestSpec: spec,
		GuestStatus: command.GuestStatus{
			State:       command.GuestStopped,
			Node:        node.Name,
			Addresses:   addresses,
			CreatedTime: inv.clock.Now().UTC().Format(time.RFC3339),
		},
	}
	if storage != nil {
		guest.StoragePool = storage.Name
	}
	for _, size := range spec.Disks {
		guest.Volumes = append(guest.Volumes, command.Volume{
			ID:         uuid.NewString(),
			VolumeSpec: command.VolumeSpec{Guest: id, Size: size, Pool: storage.Name},
		})
		storage.Allocated += size
	}
	node.Guests++
	inv.guests[id] = guest
	return nil
}

func (inv *Inventory) placeLocked(spec command.GuestSpec) *command.Node {
	var best *command.Node
	for _, n := range inv.nodes {
		if !n.Enabled || n.Cores < spec.Cores || n.Memory < spec.Memory {
			continue
		}
		if best == nil || n.Guests < best.Guests || (n.Guests == best.Guests && n.Name < best.Name) {
			best = n
		}
	}
	return best
}

func (inv *Inventory) storagePoolLocked(name string) (*command.StoragePool, error) {
	if name != "" {
		pool, ok := inv.storage[name]
		if !ok {
			return nil, notFound("storage pool", name)
		}
		return pool, nil
	}
	names := make([]string, 0, len(inv.storage))
	for n := range inv.storage {
		names = append(names, n)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no storage pool available")
	}
	sort.Strings(names)
	return inv.storage[names[0]], nil
}

func (inv *Inventory) networkPoolLocked(name string) (*networkPool, error) {
	if name != "" {
		pool, ok := inv.network[name]
		if !ok {
			return nil, notFound("network pool", name)
		}
		return pool, nil
	}
	names := make([]string, 0, len(inv.network))
	for n := range inv.network {
		names = append(names, n)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no network pool available")
	}
	sort.Strings(names)
	return inv.network[names[0]], nil
}

func (p *networkPool) allocate(owner string) (netip.Addr, error) {
	if len(p.pool.Ranges) == 0 {
		return netip.Addr{}, nil
	}
	for _, rng := range p.pool.Ranges {
		start, _ := netip.ParseAddr(rng.Start)
		end, _ := netip.ParseAddr(rng.End)
		for addr := start; addr.IsValid() && addr.Compare(end) <= 0; addr = addr.Next() {
			if _, taken := p.used[addr]; !taken {
				p.used[addr] = owner
				p.pool.Allocated++
				return addr, nil
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("network pool %q is exhausted", p.pool.Name)
}

func (p *networkPool) release(owner string) {
	for addr, who := range p.used {
		if who == owner {
			delete(p.used, addr)
			p.pool.Allocated--
		}
	}
}

// DeleteGuest removes a stopped guest with its volumes and snapshots.
func (inv *Inventory) DeleteGuest(id string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[id]
	if !ok {
		return notFound("guest", id)
	}
	if g.State == command.GuestRunning {
		return fmt.Errorf("guest %q is running", g.Name)
	}
	for _, v := range g.Volumes {
		if pool, ok := inv.storage[v.Pool]; ok {
			pool.Allocated -= v.Size
		}
	}
	if pool, ok := inv.network[g.NetworkPool]; ok {
		pool.release(id)
	}
	if node, ok := inv.nodes[g.Node]; ok {
		node.Guests--
	}
	delete(inv.guests, id)
	delete(inv.snapshots, id)
	return nil
}

// StartGuest powers on a guest.
func (inv *Inventory) StartGuest(id string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[id]
	if !ok {
		return notFound("guest", id)
	}
	if g.State == command.GuestRunning {
		return fmt.Errorf("guest %q is already running", g.Name)
	}
	if node, ok := inv.nodes[g.Node]; ok && !node.Enabled {
		return fmt.Errorf("node %q is disabled", node.Name)
	}
	g.State = command.GuestRunning
	return nil
}

// StopGuest powers off a guest. Stopping a stopped guest is an error
// unless force is set.
func (inv *Inventory) StopGuest(id string, force bool) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[id]
	if !ok {
		return notFound("guest", id)
	}
	if g.State != command.GuestRunning && !force {
		return fmt.Errorf("guest %q is not running", g.Name)
	}
	g.State = command.GuestStopped
	return nil
}

// RestartGuest reboots a running guest.
func (inv *Inventory) RestartGuest(id string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[id]
	if !ok {
		return notFound("guest", id)
	}
	if g.State != command.GuestRunning {
		return fmt.Errorf("guest %q is not running", g.Name)
	}
	return nil
}

// Guest returns one guest.
func (inv *Inventory) Guest(id string) (command.Guest, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[id]
	if !ok {
		return command.Guest{}, notFound("guest", id)
	}
	return cloneGuest(g), nil
}

// Guests lists guests sorted by name, narrowed by filter.
func (inv *Inventory) Guests(filter command.GuestFilter) []command.Guest {
	inv.mu.Lock()
	out := make([]command.Guest, 0, len(inv.guests))
	for _, g := range inv.guests {
		if filter.Node != "" && g.Node != filter.Node {
			continue
		}
		if filter.Pool != "" && g.StoragePool != filter.Pool {
			continue
		}
		out = append(out, cloneGuest(g))
	}
	inv.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []command.Guest{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

// RenameGuest changes a guest's name.
func (inv *Inventory) RenameGuest(id, name string) (command.Guest, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" {
		return command.Guest{}, fmt.Errorf("guest name is required")
	}
	g, ok := inv.guests[id]
	if !ok {
		return command.Guest{}, notFound("guest", id)
	}
	for otherID, other := range inv.guests {
		if otherID != id && other.Name == name {
			return command.Guest{}, fmt.Errorf("guest %q already exists", name)
		}
	}
	g.Name = name
	return cloneGuest(g), nil
}

// SetGuestCores resizes a stopped guest's core count.
func (inv *Inventory) SetGuestCores(id string, cores int) error {
	return inv.resize(id, func(g *command.Guest, node *command.Node) error {
		if cores <= 0 || cores > node.Cores {
			return fmt.Errorf("cores must be between 1 and %d", node.Cores)
		}
		g.Cores = cores
		return nil
	})
}

// SetGuestMemory resizes a stopped guest's memory.
func (inv *Inventory) SetGuestMemory(id string, memory uint64) error {
	return inv.resize(id, func(g *command.Guest, node *command.Node) error {
		if memory == 0 || memory > node.Memory {
			return fmt.Errorf("memory must be between 1 and %d MiB", node.Memory)
		}
		g.Memory = memory
		return nil
	})
}

func (inv *Inventory) resize(id string, apply func(*command.Guest, *command.Node) error) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[id]
	if !ok {
		return notFound("guest", id)
	}
	if g.State == command.GuestRunning {
		return fmt.Errorf("guest %q must be stopped", g.Name)
	}
	node, ok := inv.nodes[g.Node]
	if !ok {
		return notFound("node", g.Node)
	}
	return apply(g, node)
}

// CreateSnapshot records a snapshot of a guest and marks it current.
func (inv *Inventory) CreateSnapshot(id string, spec command.SnapshotSpec) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.guests[spec.Guest]; !ok {
		return notFound("guest", spec.Guest)
	}
	if spec.Name == "" {
		return fmt.Errorf("snapshot name is required")
	}
	snaps := inv.snapshots[spec.Guest]
	for i := range snaps {
		if snaps[i].Name == spec.Name {
			return fmt.Errorf("snapshot %q already exists", spec.Name)
		}
		snaps[i].Current = false
	}
	inv.snapshots[spec.Guest] = append(snaps, command.Snapshot{
		ID:           id,
		SnapshotSpec: spec,
		CreatedTime:  inv.clock.Now().UTC().Format(time.RFC3339),
		Current:      true,
	})
	return nil
}

// RestoreSnapshot reverts a stopped guest to a snapshot.
func (inv *Inventory) RestoreSnapshot(ref command.SnapshotRef) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[ref.Guest]
	if !ok {
		return notFound("guest", ref.Guest)
	}
	if g.State == command.GuestRunning {
		return fmt.Errorf("guest %q must be stopped", g.Name)
	}
	snaps := inv.snapshots[ref.Guest]
	idx := slices.IndexFunc(snaps, func(s command.Snapshot) bool { return s.ID == ref.ID })
	if idx < 0 {
		return notFound("snapshot", ref.ID)
	}
	for i := range snaps {
		snaps[i].Current = i == idx
	}
	return nil
}

// DeleteSnapshot removes a snapshot.
func (inv *Inventory) DeleteSnapshot(ref command.SnapshotRef) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	snaps := inv.snapshots[ref.Guest]
	idx := slices.IndexFunc(snaps, func(s command.Snapshot) bool { return s.ID == ref.ID })
	if idx < 0 {
		return notFound("snapshot", ref.ID)
	}
	inv.snapshots[ref.Guest] = slices.Delete(snaps, idx, idx+1)
	return nil
}

// Snapshots lists a guest's snapshots in creation order.
func (inv *Inventory) Snapshots(guest string) ([]command.Snapshot, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.guests[guest]; !ok {
		return nil, notFound("guest", guest)
	}
	return slices.Clone(inv.snapshots[guest]), nil
}

// CreateVolume attaches a new volume to a guest.
func (inv *Inventory) CreateVolume(id string, spec command.VolumeSpec) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[spec.Guest]
	if !ok {
		return notFound("guest", spec.Guest)
	}
	if spec.Size == 0 {
		return fmt.Errorf("volume size is required")
	}
	if spec.Pool == "" {
		spec.Pool = g.StoragePool
	}
	pool, err := inv.storagePoolLocked(spec.Pool)
	if err != nil {
		return err
	}
	if pool.Allocated+spec.Size > pool.Capacity {
		return fmt.Errorf("storage pool %q has no room for %d MiB", pool.Name, spec.Size)
	}
	spec.Pool = pool.Name
	pool.Allocated += spec.Size
	g.Volumes = append(g.Volumes, command.Volume{ID: id, VolumeSpec: spec})
	return nil
}

// DeleteVolume detaches and frees a volume.
func (inv *Inventory) DeleteVolume(ref command.VolumeRef) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	g, ok := inv.guests[ref.Guest]
	if !ok {
		return notFound("guest", ref.Guest)
	}
	idx := slices.IndexFunc(g.Volumes, func(v command.Volume) bool { return v.ID == ref.ID })
	if idx < 0 {
		return notFound("volume", ref.ID)
	}
	v := g.Volumes[idx]
	if pool, ok := inv.storage[v.Pool]; ok {
		pool.Allocated -= v.Size
	}
	g.Volumes = slices.Delete(g.Volumes, idx, idx+1)
	return nil
}

// CreateStoragePool adds an enabled storage pool.
func (inv *Inventory) CreateStoragePool(cfg command.StoragePoolConfig) (command.StoragePool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if cfg.Name == "" {
		return command.StoragePool{}, fmt.Errorf("storage pool name is required")
	}
	if _, exists := inv.storage[cfg.Name]; exists {
		return command.StoragePool{}, fmt.Errorf("storage pool %q already exists", cfg.Name)
	}
	if cfg.Type == "" {
		cfg.Type = "dir"
	}
	pool := &command.StoragePool{StoragePoolConfig: cfg, Capacity: DefaultPoolCapacity, Enabled: true}
	inv.storage[cfg.Name] = pool
	return *pool, nil
}

// DeleteStoragePool removes an empty storage pool.
func (inv *Inventory) DeleteStoragePool(name string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	pool, ok := inv.storage[name]
	if !ok {
		return notFound("storage pool", name)
	}
	if pool.Allocated > 0 {
		return fmt.Errorf("storage pool %q is in use", name)
	}
	delete(inv.storage, name)
	return nil
}

// StoragePools lists storage pools sorted by name.
func (inv *Inventory) StoragePools() []command.StoragePool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]command.StoragePool, 0, len(inv.storage))
	for _, p := range inv.storage {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateNetworkPool adds a network pool without ranges.
func (inv *Inventory) CreateNetworkPool(cfg command.NetworkPoolConfig) (command.NetworkPool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if cfg.Name == "" {
		return command.NetworkPool{}, fmt.Errorf("network pool name is required")
	}
	if _, exists := inv.network[cfg.Name]; exists {
		return command.NetworkPool{}, fmt.Errorf("network pool %q already exists", cfg.Name)
	}
	if _, err := netip.ParseAddr(cfg.Gateway); err != nil {
		return command.NetworkPool{}, fmt.Errorf("invalid gateway: %w", err)
	}
	pool := &networkPool{pool: command.NetworkPool{NetworkPoolConfig: cfg}, used: make(map[netip.Addr]string)}
	inv.network[cfg.Name] = pool
	return clonePool(pool.pool), nil
}

// DeleteNetworkPool removes a network pool with no allocated addresses.
func (inv *Inventory) DeleteNetworkPool(name string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	pool, ok := inv.network[name]
	if !ok {
		return notFound("network pool", name)
	}
	if pool.pool.Allocated > 0 {
		return fmt.Errorf("network pool %q is in use", name)
	}
	delete(inv.network, name)
	return nil
}

// AddAddressRange appends an inclusive IPv4 range that does not overlap
// the pool's existing ranges.
func (inv *Inventory) AddAddressRange(name string, rng command.AddressRange) (command.NetworkPool, error) {
	start, err := netip.ParseAddr(rng.Start)
	if err != nil || !start.Is4() {
		return command.NetworkPool{}, fmt.Errorf("invalid range start %q", rng.Start)
	}
	end, err := netip.ParseAddr(rng.End)
	if err != nil || !end.Is4() {
		return command.NetworkPool{}, fmt.Errorf("invalid range end %q", rng.End)
	}
	if end.Less(start) {
		return command.NetworkPool{}, fmt.Errorf("range end %s precedes start %s", end, start)
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	pool, ok := inv.network[name]
	if !ok {
		return command.NetworkPool{}, notFound("network pool", name)
	}
	for _, existing := range pool.pool.Ranges {
		es, _ := netip.ParseAddr(existing.Start)
		ee, _ := netip.ParseAddr(existing.End)
		if start.Compare(ee) <= 0 && es.Compare(end) <= 0 {
			return command.NetworkPool{}, fmt.Errorf("range overlaps %s-%s", existing.Start, existing.End)
		}
	}
	pool.pool.Ranges = append(pool.pool.Ranges, command.AddressRange{Start: start.String(), End: end.String()})
	return clonePool(pool.pool), nil
}

// NetworkPools lists network pools sorted by name.
func (inv *Inventory) NetworkPools() []command.NetworkPool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]command.NetworkPool, 0, len(inv.network))
	for _, p := range inv.network {
		out = append(out, clonePool(p.pool))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func cloneGuest(g *command.Guest) command.Guest {
	out := *g
	out.Disks = slices.Clone(g.Disks)
	out.Addresses = slices.Clone(g.Addresses)
	out.Volumes = slices.Clone(g.Volumes)
	return out
}

func clonePool(p command.NetworkPool) command.NetworkPool {
	p.DNS = slices.Clone(p.DNS)
	p.Ranges = slices.Clone(p.Ranges)
	return p
}
