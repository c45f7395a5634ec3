package clawproto

import "fmt"

// ErrorCategory groups gateway errors for wire-protocol code mapping
// (spec §6: 1000s transport, 2000s auth, 3000s scheduling, 4000s workload
// state). Validation and Mesh errors are reported but have no reserved
// code block of their own in the minimal interoperability set, so
// CodeForCategory maps them, like StateMachine errors, onto the 4000
// workload-state base.
type ErrorCategory string

const (
	CategoryValidation   ErrorCategory = "validation"
	CategoryScheduling   ErrorCategory = "scheduling"
	CategoryStateMachine ErrorCategory = "state_machine"
	CategoryAttestation  ErrorCategory = "attestation"
	CategoryMesh         ErrorCategory = "mesh"
	CategoryTransport    ErrorCategory = "transport"
)

// ClawError is implemented by every typed error the core returns, letting
// the session layer map categories to wire error codes without a type
// switch over every concrete error.
type ClawError interface {
	error
	Category() ErrorCategory
	Code() string
}

// ValidationError reports a malformed workload spec.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}
func (e *ValidationError) Category() ErrorCategory { return CategoryValidation }
func (e *ValidationError) Code() string             { return "validation_failed" }

// WorkloadNotFoundError reports a lookup miss by WorkloadId.
type WorkloadNotFoundError struct {
	WorkloadID fmt.Stringer
}

func (e *WorkloadNotFoundError) Error() string {
	return fmt.Sprintf("workload not found: %s", e.WorkloadID)
}
func (e *WorkloadNotFoundError) Category() ErrorCategory { return CategoryStateMachine }
func (e *WorkloadNotFoundError) Code() string             { return "workload_not_found" }

// InvalidTransitionError reports an illegal workload state-machine edge.
type InvalidTransitionError struct {
	WorkloadID fmt.Stringer
	From       WorkloadState
	To         WorkloadState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.WorkloadID, e.From, e.To)
}
func (e *InvalidTransitionError) Category() ErrorCategory { return CategoryStateMachine }
func (e *InvalidTransitionError) Code() string             { return "invalid_transition" }

// CannotCancelError reports an attempt to cancel a terminal workload.
type CannotCancelError struct {
	WorkloadID fmt.Stringer
	State      WorkloadState
}

func (e *CannotCancelError) Error() string {
	return fmt.Sprintf("cannot cancel %s in terminal state %s", e.WorkloadID, e.State)
}
func (e *CannotCancelError) Category() ErrorCategory { return CategoryStateMachine }
func (e *CannotCancelError) Code() string             { return "cannot_cancel" }

// NodeNotFoundError reports a lookup miss by NodeId.
type NodeNotFoundError struct {
	NodeID fmt.Stringer
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node not found: %s", e.NodeID)
}
func (e *NodeNotFoundError) Category() ErrorCategory { return CategoryStateMachine }
func (e *NodeNotFoundError) Code() string             { return "node_not_found" }

// NodeOfflineError reports a dispatch attempt against an unhealthy node.
type NodeOfflineError struct {
	NodeID fmt.Stringer
}

func (e *NodeOfflineError) Error() string {
	return fmt.Sprintf("node offline: %s", e.NodeID)
}
func (e *NodeOfflineError) Category() ErrorCategory { return CategoryStateMachine }
func (e *NodeOfflineError) Code() string             { return "node_offline" }

// DuplicateNodeError reports a registration collision on NodeId or name.
type DuplicateNodeError struct {
	Reason string
}

func (e *DuplicateNodeError) Error() string          { return "duplicate node: " + e.Reason }
func (e *DuplicateNodeError) Category() ErrorCategory { return CategoryStateMachine }
func (e *DuplicateNodeError) Code() string             { return "duplicate_node" }

// NoNodesError reports scheduling against an empty registry.
type NoNodesError struct{}

func (e *NoNodesError) Error() string          { return "no nodes registered" }
func (e *NoNodesError) Category() ErrorCategory { return CategoryScheduling }
func (e *NoNodesError) Code() string             { return "no_nodes" }

// NoSuitableNodeError reports that no registered node meets the spec's
// resource requirements.
type NoSuitableNodeError struct {
	NeededGPUs      uint32
	NeededMemoryMB  uint64
	NeededCPUCores  uint32
}

func (e *NoSuitableNodeError) Error() string {
	return fmt.Sprintf("no suitable node: needs %d gpu(s), %d MB memory, %d cpu core(s)",
		e.NeededGPUs, e.NeededMemoryMB, e.NeededCPUCores)
}
func (e *NoSuitableNodeError) Category() ErrorCategory { return CategoryScheduling }
func (e *NoSuitableNodeError) Code() string             { return "no_suitable_node" }

// Mesh errors.

type PoolExhaustedError struct {
	Pool string
}

func (e *PoolExhaustedError) Error() string          { return "pool exhausted: " + e.Pool }
func (e *PoolExhaustedError) Category() ErrorCategory { return CategoryMesh }
func (e *PoolExhaustedError) Code() string             { return "pool_exhausted" }

type DuplicateMeshIdentifierError struct {
	Kind string
}

func (e *DuplicateMeshIdentifierError) Error() string {
	return "duplicate mesh identifier: " + e.Kind
}
func (e *DuplicateMeshIdentifierError) Category() ErrorCategory { return CategoryMesh }
func (e *DuplicateMeshIdentifierError) Code() string             { return "duplicate_mesh_identifier" }

// Transport errors.

type TimeoutError struct{ Operation string }

func (e *TimeoutError) Error() string          { return "timeout: " + e.Operation }
func (e *TimeoutError) Category() ErrorCategory { return CategoryTransport }
func (e *TimeoutError) Code() string             { return "timeout" }

type ConnectionClosedError struct{}

func (e *ConnectionClosedError) Error() string          { return "connection closed" }
func (e *ConnectionClosedError) Category() ErrorCategory { return CategoryTransport }
func (e *ConnectionClosedError) Code() string             { return "connection_closed" }

type ProtocolViolationError struct{ Detail string }

func (e *ProtocolViolationError) Error() string          { return "protocol violation: " + e.Detail }
func (e *ProtocolViolationError) Category() ErrorCategory { return CategoryTransport }
func (e *ProtocolViolationError) Code() string             { return "protocol_violation" }
