package clawproto

import (
	"encoding/json"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
)

// Request is a node->gateway or gateway->node frame expecting a Response
// correlated by ID.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// WireError is the structured error payload carried by a Response.
// Codes 1000-1999 are transport, 2000-2999 authentication, 3000-3999
// scheduling, 4000-4999 workload state.
type WireError struct {
	Code    int32           `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Response answers a Request by ID with either a result or an error.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// Event is a one-way, unacknowledged frame.
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FrameKind discriminates the three structural frame shapes.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameRequest
	FrameResponse
	FrameEvent
)

// rawFrame is used only to sniff which of Request/Response/Event a JSON
// blob is, by structural key presence.
type rawFrame struct {
	ID     *string          `json:"id"`
	Method *string          `json:"method"`
	Result json.RawMessage  `json:"result"`
	Error  *WireError       `json:"error"`
	Event  *string          `json:"event"`
}

// SniffFrameKind inspects a raw JSON frame and reports its structural
// shape without fully decoding it.
func SniffFrameKind(raw json.RawMessage) (FrameKind, error) {
	var rf rawFrame
	if err := json.Unmarshal(raw, &rf); err != nil {
		return FrameUnknown, err
	}
	switch {
	case rf.Event != nil:
		return FrameEvent, nil
	case rf.Method != nil:
		return FrameRequest, nil
	case rf.ID != nil:
		return FrameResponse, nil
	default:
		return FrameUnknown, nil
	}
}

// Error code ranges for the minimal interoperability set.
const (
	ErrCodeTransportBase    int32 = 1000
	ErrCodeAuthBase         int32 = 2000
	ErrCodeSchedulingBase   int32 = 3000
	ErrCodeWorkloadBase     int32 = 4000
)

// CodeForCategory maps an error category to the base of its reserved
// wire code range.
func CodeForCategory(cat ErrorCategory) int32 {
	switch cat {
	case CategoryTransport:
		return ErrCodeTransportBase
	case CategoryAttestation:
		return ErrCodeAuthBase
	case CategoryScheduling:
		return ErrCodeSchedulingBase
	case CategoryStateMachine, CategoryValidation, CategoryMesh:
		return ErrCodeWorkloadBase
	default:
		return ErrCodeTransportBase
	}
}

// GatewayMessage is the closed set of opaque commands the Dispatcher
// emits for a session layer to deliver to a node. The Dispatcher never
// performs I/O itself — it only returns these values.
type GatewayMessage interface {
	isGatewayMessage()
}

// StartWorkload instructs a node to begin executing a workload.
type StartWorkload struct {
	WorkloadID clawid.WorkloadId
	Spec       WorkloadSpec
}

func (StartWorkload) isGatewayMessage() {}

// StopWorkload instructs a node to stop a running workload within a
// grace period.
type StopWorkload struct {
	WorkloadID      clawid.WorkloadId
	GracePeriodSecs uint32
}

func (StopWorkload) isGatewayMessage() {}
