package clawproto

import (
	"net/netip"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
)

// MeshNode is the gateway's canonical record of a node's position in the
// WireGuard overlay.
type MeshNode struct {
	NodeID         clawid.NodeId
	MeshIP         netip.Addr
	WorkloadSubnet netip.Prefix
	WireguardPubkey string
	Region         clawid.Region
	Endpoint       *netip.AddrPort
}

// PeerInfo is the per-peer record exchanged during mesh convergence — the
// gateway's view of a peer that a node session compares against its own
// locally active peer set.
type PeerInfo struct {
	NodeID          string `json:"node_id"`
	MeshIP          string `json:"mesh_ip"`
	WireguardPubkey string `json:"wireguard_pubkey"`
	Endpoint        string `json:"endpoint,omitempty"`
}

// SyncResult reports the outcome of reconciling a node session's active
// peer map against a freshly-known peer set.
type SyncResult struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged int      `json:"unchanged"`
}
