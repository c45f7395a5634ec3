// Package mesh implements region-partitioned IPv4 allocation for the
// WireGuard overlay: one node-mesh pool and one workload-subnet pool per
// region, topology bookkeeping, and node-session peer-set convergence.
package mesh

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
)

// RegionPools is the pair of pools a single region owns: a /20 (or
// smaller) node-mesh pool within 10.100.0.0/16, and a workload pool
// within 10.200.0.0/16 (a /18 in DefaultRegionLayout) from which per-node
// /24s are carved.
type RegionPools struct {
	NodeMeshPool netip.Prefix
	WorkloadPool netip.Prefix
	WorkloadBits int // child subnet size carved from WorkloadPool, default 24
}

// DefaultRegionLayout returns the four participating regions each
// assigned a disjoint /20 node-mesh pool within 10.100.0.0/16 and a
// disjoint /18 workload pool (carved into /24s) within 10.200.0.0/16.
// This is a configuration default, not a hardcoded constraint — callers
// may supply their own RegionPools per region.
func DefaultRegionLayout() map[clawid.Region]RegionPools {
	mustPrefix := func(s string) netip.Prefix {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			panic(err)
		}
		return p
	}
	return map[clawid.Region]RegionPools{
		clawid.RegionUSWest: {
			NodeMeshPool: mustPrefix("10.100.0.0/20"),
			WorkloadPool: mustPrefix("10.200.0.0/18"),
			WorkloadBits: 24,
		},
		clawid.RegionUSEast: {
			NodeMeshPool: mustPrefix("10.100.16.0/20"),
			WorkloadPool: mustPrefix("10.200.64.0/18"),
			WorkloadBits: 24,
		},
		clawid.RegionEUWest: {
			NodeMeshPool: mustPrefix("10.100.32.0/20"),
			WorkloadPool: mustPrefix("10.200.128.0/18"),
			WorkloadBits: 24,
		},
		clawid.RegionAsia: {
			NodeMeshPool: mustPrefix("10.100.48.0/20"),
			WorkloadPool: mustPrefix("10.200.192.0/18"),
			WorkloadBits: 24,
		},
	}
}

type regionState struct {
	region       clawid.Region
	nodeAddrs    *addrPool
	workloadSubs *subnetPool
}

// Allocator tracks mesh topology and per-region IP pools. All mutating
// methods are serialized behind a mutex; reads may proceed concurrently.
type Allocator struct {
	mu            sync.RWMutex
	regions       []clawid.Region // deterministic iteration order
	regionByName  map[clawid.Region]*regionState
	nodes         map[clawid.NodeId]clawproto.MeshNode
	pubkeys       map[string]clawid.NodeId
	meshIPs       map[netip.Addr]clawid.NodeId
	workloadNodes map[clawid.NodeId]netip.Prefix
}

// NewAllocator validates the supplied per-region pools (each node-mesh
// pool must lie within 10.100.0.0/16, each workload pool within
// 10.200.0.0/16, and no two regions' pools of the same kind may overlap)
// and constructs an Allocator.
func NewAllocator(layout map[clawid.Region]RegionPools) (*Allocator, error) {
	parentNode := netip.MustParsePrefix("10.100.0.0/16")
	parentWorkload := netip.MustParsePrefix("10.200.0.0/16")

	a := &Allocator{
		regionByName:  make(map[clawid.Region]*regionState),
		nodes:         make(map[clawid.NodeId]clawproto.MeshNode),
		pubkeys:       make(map[string]clawid.NodeId),
		meshIPs:       make(map[netip.Addr]clawid.NodeId),
		workloadNodes: make(map[clawid.NodeId]netip.Prefix),
	}

	// Stable iteration order: sort region names lexically.
	names := make([]string, 0, len(layout))
	byName := make(map[string]clawid.Region, len(layout))
	for r := range layout {
		names = append(names, string(r))
		byName[string(r)] = r
	}
	sort.Strings(names)

	var nodePrefixes, workloadPrefixes []netip.Prefix
	for _, name := range names {
		region := byName[name]
		pools := layout[region]
		if !parentNode.Overlaps(pools.NodeMeshPool) || !containsPrefix(parentNode, pools.NodeMeshPool) {
			return nil, fmt.Errorf("mesh: region %s node pool %s is not within %s", region, pools.NodeMeshPool, parentNode)
		}
		if !containsPrefix(parentWorkload, pools.WorkloadPool) {
			return nil, fmt.Errorf("mesh: region %s workload pool %s is not within %s", region, pools.WorkloadPool, parentWorkload)
		}
		for _, existing := range nodePrefixes {
			if existing.Overlaps(pools.NodeMeshPool) {
				return nil, fmt.Errorf("mesh: region %s node pool %s overlaps another region's pool", region, pools.NodeMeshPool)
			}
		}
		for _, existing := range workloadPrefixes {
			if existing.Overlaps(pools.WorkloadPool) {
				return nil, fmt.Errorf("mesh: region %s workload pool %s overlaps another region's pool", region, pools.WorkloadPool)
			}
		}
		nodePrefixes = append(nodePrefixes, pools.NodeMeshPool)
		workloadPrefixes = append(workloadPrefixes, pools.WorkloadPool)

		childBits := pools.WorkloadBits
		if childBits == 0 {
			childBits = 24
		}

		a.regions = append(a.regions, region)
		a.regionByName[region] = &regionState{
			region:       region,
			nodeAddrs:    newAddrPoolOfHosts(pools.NodeMeshPool),
			workloadSubs: newSubnetPool(pools.WorkloadPool, childBits),
		}
	}
	return a, nil
}

func containsPrefix(parent, child netip.Prefix) bool {
	return parent.Overlaps(child) && parent.Bits() <= child.Bits() && parent.Contains(child.Addr())
}

// AllocateNodeIP returns the next free mesh IP from the region's
// node-mesh pool.
func (a *Allocator) AllocateNodeIP(region clawid.Region) (netip.Addr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rs, ok := a.regionByName[region]
	if !ok {
		return netip.Addr{}, fmt.Errorf("mesh: unknown region %s", region)
	}
	addr, ok := rs.nodeAddrs.allocate()
	if !ok {
		return netip.Addr{}, &clawproto.PoolExhaustedError{Pool: fmt.Sprintf("node-mesh/%s", region)}
	}
	return addr, nil
}

// AllocateWorkloadSubnet returns the next free /24 (or configured child
// size) from the first region pool with capacity, in deterministic
// region order. The chosen subnet is reserved against nodeID until
// RemoveNode releases it.
func (a *Allocator) AllocateWorkloadSubnet(nodeID clawid.NodeId) (netip.Prefix, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, region := range a.regions {
		rs := a.regionByName[region]
		if sub, ok := rs.workloadSubs.allocate(); ok {
			a.workloadNodes[nodeID] = sub
			return sub, nil
		}
	}
	return netip.Prefix{}, &clawproto.PoolExhaustedError{Pool: "workload-subnet"}
}

// AddNode inserts a mesh node into the topology, enforcing uniqueness of
// pubkey, mesh IP, and workload subnet.
func (a *Allocator) AddNode(node clawproto.MeshNode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.nodes[node.NodeID]; exists {
		return &clawproto.DuplicateMeshIdentifierError{Kind: "node_id"}
	}
	if _, exists := a.pubkeys[node.WireguardPubkey]; exists {
		return &clawproto.DuplicateMeshIdentifierError{Kind: "wireguard_pubkey"}
	}
	if _, exists := a.meshIPs[node.MeshIP]; exists {
		return &clawproto.DuplicateMeshIdentifierError{Kind: "mesh_ip"}
	}
	if node.WorkloadSubnet.IsValid() {
		for _, other := range a.nodes {
			if other.WorkloadSubnet.IsValid() && other.WorkloadSubnet.Overlaps(node.WorkloadSubnet) {
				return &clawproto.DuplicateMeshIdentifierError{Kind: "workload_subnet"}
			}
		}
	}

	a.nodes[node.NodeID] = node
	a.pubkeys[node.WireguardPubkey] = node.NodeID
	a.meshIPs[node.MeshIP] = node.NodeID
	return nil
}

// RemoveNode drops a mesh node and releases its mesh IP and workload
// subnet back to their region pools.
func (a *Allocator) RemoveNode(nodeID clawid.NodeId) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	node, ok := a.nodes[nodeID]
	if !ok {
		return &clawproto.NodeNotFoundError{NodeID: nodeID}
	}

	delete(a.nodes, nodeID)
	delete(a.pubkeys, node.WireguardPubkey)
	delete(a.meshIPs, node.MeshIP)

	if rs, ok := a.regionByName[node.Region]; ok {
		rs.nodeAddrs.release(node.MeshIP)
	}
	if sub, ok := a.workloadNodes[nodeID]; ok {
		delete(a.workloadNodes, nodeID)
		for _, rs := range a.regionByName {
			if rs.workloadSubs.parent.Contains(sub.Addr()) {
				rs.workloadSubs.release(sub)
				break
			}
		}
	}
	return nil
}

// GetNode returns a mesh node's topology record.
func (a *Allocator) GetNode(nodeID clawid.NodeId) (clawproto.MeshNode, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n, ok := a.nodes[nodeID]
	return n, ok
}

// NodeCount reports the number of nodes currently in the mesh topology.
func (a *Allocator) NodeCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes)
}

// SyncPeers computes the set difference between a node session's locally
// active peer map and the gateway's currently known peer set, excluding
// the session's own node id.
func SyncPeers(activePeers map[string]clawproto.PeerInfo, knownPeers []clawproto.PeerInfo, selfNodeID string) clawproto.SyncResult {
	known := make(map[string]clawproto.PeerInfo, len(knownPeers))
	for _, p := range knownPeers {
		if p.NodeID == selfNodeID {
			continue
		}
		known[p.NodeID] = p
	}

	var result clawproto.SyncResult
	for id := range activePeers {
		if _, ok := known[id]; !ok {
			delete(activePeers, id)
			result.Removed = append(result.Removed, id)
		}
	}
	for id, peer := range known {
		if _, ok := activePeers[id]; !ok {
			activePeers[id] = peer
			result.Added = append(result.Added, id)
		} else {
			result.Unchanged++
		}
	}
	return result
}
