package clawproto

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
)

const (
	defaultMemoryMB uint64 = 512
	defaultCPUCores uint32 = 1

	// MaxWorkloadGPUs is the configuration default for the largest
	// gpu_count a spec may request; callers may override via config.
	MaxWorkloadGPUs uint32 = 64
)

// WorkloadSpec describes the resources and image a submitted workload
// needs. Zero-valued MemoryMB/CPUCores are filled with their defaults by
// NewWorkloadSpec.
type WorkloadSpec struct {
	Image     string            `json:"image"`
	Command   []string          `json:"command,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	GPUCount  uint32            `json:"gpu_count"`
	MemoryMB  uint64            `json:"memory_mb"`
	CPUCores  uint32            `json:"cpu_cores"`
}

// NewWorkloadSpec builds a spec with the image and defaulted resources
// (memory_mb=512, cpu_cores=1).
func NewWorkloadSpec(image string) WorkloadSpec {
	return WorkloadSpec{
		Image:    image,
		Env:      map[string]string{},
		MemoryMB: defaultMemoryMB,
		CPUCores: defaultCPUCores,
	}
}

func (s WorkloadSpec) WithCommand(cmd []string) WorkloadSpec {
	s.Command = cmd
	return s
}

func (s WorkloadSpec) WithEnv(env map[string]string) WorkloadSpec {
	s.Env = env
	return s
}

func (s WorkloadSpec) WithGPUCount(n uint32) WorkloadSpec {
	s.GPUCount = n
	return s
}

func (s WorkloadSpec) WithMemoryMB(n uint64) WorkloadSpec {
	s.MemoryMB = n
	return s
}

func (s WorkloadSpec) WithCPUCores(n uint32) WorkloadSpec {
	s.CPUCores = n
	return s
}

// Validate checks the spec against the identifier grammar and resource
// caps from maxWorkloadGPUs. It aggregates into a single error reporting
// the first violation found, in the order: image, env keys, resources.
func (s WorkloadSpec) Validate(maxWorkloadGPUs uint32) error {
	if err := validateImage(s.Image); err != nil {
		return err
	}
	for key := range s.Env {
		if err := validateEnvKey(key); err != nil {
			return err
		}
	}
	if s.GPUCount > maxWorkloadGPUs {
		return &ValidationError{Field: "gpu_count", Message: fmt.Sprintf("exceeds maximum of %d", maxWorkloadGPUs)}
	}
	if s.CPUCores == 0 {
		return &ValidationError{Field: "cpu_cores", Message: "must be at least 1"}
	}
	return nil
}

func validateImage(image string) error {
	if image == "" {
		return &ValidationError{Field: "image", Message: "must not be empty"}
	}
	for _, r := range image {
		if unicode.IsSpace(r) {
			return &ValidationError{Field: "image", Message: "must not contain whitespace"}
		}
	}
	return nil
}

// validateEnvKey enforces an identifier grammar: a leading letter or
// underscore followed by letters, digits, or underscores.
func validateEnvKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "env", Message: "key must not be empty"}
	}
	for i, r := range key {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return &ValidationError{Field: "env", Message: fmt.Sprintf("key %q must start with a letter or underscore", key)}
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return &ValidationError{Field: "env", Message: fmt.Sprintf("key %q is not a valid identifier", key)}
		}
	}
	return nil
}

// WorkloadState is the workload lifecycle state machine's vertex set.
type WorkloadState string

const (
	StatePending  WorkloadState = "pending"
	StateStarting WorkloadState = "starting"
	StateRunning  WorkloadState = "running"
	StateStopping WorkloadState = "stopping"
	StateStopped  WorkloadState = "stopped"
	StateCompleted WorkloadState = "completed"
	StateFailed   WorkloadState = "failed"
)

func (s WorkloadState) String() string { return string(s) }

// IsTerminal reports whether the state has no outgoing transitions.
func (s WorkloadState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateStopped:
		return true
	default:
		return false
	}
}

// legalTransitions is the workload lifecycle's edge set. Self-transitions
// (Pending->Pending, Running->Running) are intentionally NOT included
// here — see DESIGN.md's Open Question resolution.
var legalTransitions = map[WorkloadState]map[WorkloadState]bool{
	StatePending: {
		StateStarting: true,
		StateFailed:   true,
		StateStopped:  true,
	},
	StateStarting: {
		StateRunning: true,
		StateFailed:  true,
		StateStopped: true,
	},
	StateRunning: {
		StateStopping:  true,
		StateCompleted: true,
		StateFailed:    true,
	},
	StateStopping: {
		StateStopped: true,
		StateFailed:  true,
	},
}

// IsValidTransition reports whether from->to is a legal state-machine
// edge.
func IsValidTransition(from, to WorkloadState) bool {
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// WorkloadStatus tracks the mutable lifecycle fields of a workload.
type WorkloadStatus struct {
	State      WorkloadState `json:"state"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	ExitCode   *int32        `json:"exit_code,omitempty"`
	GPUIDs     []uint32      `json:"gpu_ids,omitempty"`
}

// PendingStatus returns a freshly-submitted status.
func PendingStatus() WorkloadStatus {
	return WorkloadStatus{State: StatePending}
}

// TransitionTo validates and applies a state transition, setting
// StartedAt on first entry to Running and FinishedAt on entry to any
// terminal state.
func (st *WorkloadStatus) TransitionTo(to WorkloadState, now time.Time) error {
	if !IsValidTransition(st.State, to) {
		return &InvalidTransitionError{From: st.State, To: to}
	}
	st.State = to
	if to == StateRunning && st.StartedAt == nil {
		t := now
		st.StartedAt = &t
	}
	if to.IsTerminal() {
		t := now
		st.FinishedAt = &t
	}
	return nil
}

func (st *WorkloadStatus) SetExitCode(code int32) {
	st.ExitCode = &code
}

func (st *WorkloadStatus) SetGPUIDs(ids []uint32) {
	st.GPUIDs = ids
}

// Duration returns the time between StartedAt and FinishedAt, if both are
// set.
func (st WorkloadStatus) Duration() (time.Duration, bool) {
	if st.StartedAt == nil || st.FinishedAt == nil {
		return 0, false
	}
	return st.FinishedAt.Sub(*st.StartedAt), true
}

// Workload is the immutable identity/spec pairing created at submission.
type Workload struct {
	ID        clawid.WorkloadId `json:"id"`
	Spec      WorkloadSpec      `json:"spec"`
	Status    WorkloadStatus    `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Name      *string           `json:"name,omitempty"`
}

// NewWorkload constructs a workload in the Pending state with a fresh id.
func NewWorkload(spec WorkloadSpec, now time.Time) Workload {
	return Workload{
		ID:        clawid.NewWorkloadId(),
		Spec:      spec,
		Status:    PendingStatus(),
		CreatedAt: now,
	}
}

func (w Workload) WithName(name string) Workload {
	w.Name = &name
	return w
}

func (w Workload) IsTerminal() bool {
	return w.Status.State.IsTerminal()
}

// TrackedWorkload is the Dispatcher's full record of a submitted
// workload, including scheduling outcome.
type TrackedWorkload struct {
	Workload        Workload
	AssignedNode    *clawid.NodeId
	SubmittedAt     time.Time
	AssignedGPUs    []uint32
	WorkerIndex     *uint32
	ScheduleFailure *string
}

func (tw TrackedWorkload) ID() clawid.WorkloadId { return tw.Workload.ID }
func (tw TrackedWorkload) State() WorkloadState   { return tw.Workload.Status.State }
func (tw TrackedWorkload) IsAssigned() bool       { return tw.AssignedNode != nil }

// CanonicalString renders a workload id for error messages without
// leaking unrelated fields.
func CanonicalString(id fmt.Stringer) string { return strings.TrimSpace(id.String()) }
