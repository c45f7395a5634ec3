// Package gatewaysession implements the per-node WebSocket protocol:
// JSON-framed request/response/event exchange, the connect handshake,
// pairing, heartbeat, and invoke/result correlation — per-connection
// write mutex, deadline+pong-handler keepalive, ticker-driven ping,
// recover()-guarded read loop.
package gatewaysession

import (
	"encoding/json"
	"fmt"

	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
)

// Supported protocol version range for connect negotiation.
const (
	MinProtocolVersion = 1
	MaxProtocolVersion = 1
)

// ConnectParams is the node's connect handshake payload.
type ConnectParams struct {
	MinProtocol int             `json:"min_protocol"`
	MaxProtocol int             `json:"max_protocol"`
	Client      string          `json:"client"`
	Caps        json.RawMessage `json:"caps,omitempty"`
	Commands    []string        `json:"commands,omitempty"`
	Auth        json.RawMessage `json:"auth,omitempty"`
}

// HelloResult is the gateway's accept response to a successful connect.
type HelloResult struct {
	Protocol int `json:"protocol"`
}

// ConnectChallengeEvent requests an attestation before pairing proceeds.
type ConnectChallengeEvent struct {
	Nonce      string `json:"nonce"`
	IssuedAt   int64  `json:"issued_at"`
	VerifierID string `json:"verifier_id"`
}

// PairRequestParams is a node's pairing request payload.
type PairRequestParams struct {
	NodeID          string          `json:"node_id"`
	DisplayName     string          `json:"display_name,omitempty"`
	Platform        string          `json:"platform,omitempty"`
	Version         string          `json:"version,omitempty"`
	Caps            json.RawMessage `json:"caps,omitempty"`
	Commands        []string        `json:"commands,omitempty"`
	Silent          bool            `json:"silent,omitempty"`
	WireguardPubkey string          `json:"wireguard_pubkey,omitempty"`
	Region          string          `json:"region,omitempty"`
}

// MeshAssignment is a node's WireGuard overlay position, returned once on
// the pairing that first admits it into the mesh.
type MeshAssignment struct {
	MeshIP         string `json:"mesh_ip"`
	WorkloadSubnet string `json:"workload_subnet"`
}

// PairResult is the gateway's response to a pairing request. Mesh is nil
// when the node was already present in the mesh topology (reconnect).
type PairResult struct {
	Token string          `json:"token"`
	Mesh  *MeshAssignment `json:"mesh,omitempty"`
}

// HeartbeatPayload is the node's periodic liveness event.
type HeartbeatPayload struct {
	NodeID string `json:"node_id"`
}

// InvokeRequestPayload is the gateway's dispatch-a-command event.
type InvokeRequestPayload struct {
	ID             string          `json:"id"`
	NodeID         string          `json:"node_id"`
	Command        string          `json:"command"`
	ParamsJSON     json.RawMessage `json:"params_json,omitempty"`
	TimeoutMs      *uint64         `json:"timeout_ms,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// InvokeResultParams is the node's correlated result for an invoke
// request.
type InvokeResultParams struct {
	ID          string          `json:"id"`
	NodeID      string          `json:"node_id"`
	OK          bool            `json:"ok"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PayloadJSON json.RawMessage `json:"payload_json,omitempty"`
	Error       *clawproto.WireError `json:"error,omitempty"`
}

// InvokeOutcome is what a correlated invoke eventually resolves to: either
// the node's InvokeResultParams, or a local error (Timeout,
// ConnectionClosed) when no result arrives in time.
type InvokeOutcome struct {
	Result InvokeResultParams
	Err    error
}

// Recognized method and event names — a closed set. Anything else
// produces ProtocolViolation rather than being silently ignored.
const (
	MethodConnect         = "connect"
	MethodNodePairRequest = "node.pair.request"
	MethodNodeInvokeResult = "node.invoke.result"
	MethodHello           = "hello" // CLI-collaborator non-node identification

	EventConnectChallenge = "connect.challenge"
	EventHeartbeat        = "heartbeat"
	EventNodeInvokeRequest = "node.invoke.request"
)

func isRecognizedMethod(method string) bool {
	switch method {
	case MethodConnect, MethodNodePairRequest, MethodNodeInvokeResult, MethodHello:
		return true
	default:
		return false
	}
}

// NegotiateProtocol picks the highest mutually supported integer version
// between the node's advertised [min,max] and the gateway's own range.
func NegotiateProtocol(nodeMin, nodeMax int) (int, error) {
	lo := nodeMin
	if MinProtocolVersion > lo {
		lo = MinProtocolVersion
	}
	hi := nodeMax
	if MaxProtocolVersion < hi {
		hi = MaxProtocolVersion
	}
	if lo > hi {
		return 0, fmt.Errorf("no mutually supported protocol version: node [%d,%d], gateway [%d,%d]",
			nodeMin, nodeMax, MinProtocolVersion, MaxProtocolVersion)
	}
	return hi, nil
}
