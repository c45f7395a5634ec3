// Package workload owns tracked workload records: validated submission,
// state-machine transitions, node assignment, and the listings the
// Dispatcher needs (by state, by node, pending-and-unassigned).
package workload

import (
	"sync"
	"time"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
)

// Manager is a single-writer component: all mutating methods are
// serialized behind a mutex.
type Manager struct {
	mu              sync.RWMutex
	workloads       map[clawid.WorkloadId]*clawproto.TrackedWorkload
	order           []clawid.WorkloadId
	maxWorkloadGPUs uint32
	now             func() time.Time
}

// New constructs an empty Manager. maxWorkloadGPUs bounds Submit's
// resource validation.
func New(maxWorkloadGPUs uint32) *Manager {
	return &Manager{
		workloads:       make(map[clawid.WorkloadId]*clawproto.TrackedWorkload),
		maxWorkloadGPUs: maxWorkloadGPUs,
		now:             time.Now,
	}
}

// Submit validates the spec and stores a new tracked workload in state
// Pending.
func (m *Manager) Submit(spec clawproto.WorkloadSpec) (clawid.WorkloadId, error) {
	if err := spec.Validate(m.maxWorkloadGPUs); err != nil {
		return clawid.WorkloadId{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w := clawproto.NewWorkload(spec, now)
	tw := &clawproto.TrackedWorkload{
		Workload:    w,
		SubmittedAt: now,
	}
	m.workloads[w.ID] = tw
	m.order = append(m.order, w.ID)
	return w.ID, nil
}

// GetWorkload returns a copy of the tracked workload record.
func (m *Manager) GetWorkload(id clawid.WorkloadId) (clawproto.TrackedWorkload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tw, ok := m.workloads[id]
	if !ok {
		return clawproto.TrackedWorkload{}, &clawproto.WorkloadNotFoundError{WorkloadID: id}
	}
	return *tw, nil
}

// GetStatus returns just the mutable status fields of a workload.
func (m *Manager) GetStatus(id clawid.WorkloadId) (clawproto.WorkloadStatus, error) {
	tw, err := m.GetWorkload(id)
	if err != nil {
		return clawproto.WorkloadStatus{}, err
	}
	return tw.Workload.Status, nil
}

// AssignToNode records scheduling success: the chosen node and optional
// GPU indices. It does not itself change state; callers pair it with
// UpdateState(Starting).
func (m *Manager) AssignToNode(id clawid.WorkloadId, nodeID clawid.NodeId, gpuIDs []uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tw, ok := m.workloads[id]
	if !ok {
		return &clawproto.WorkloadNotFoundError{WorkloadID: id}
	}
	tw.AssignedNode = &nodeID
	tw.AssignedGPUs = gpuIDs
	tw.ScheduleFailure = nil
	return nil
}

// RecordScheduleFailure stores the reason scheduling did not find a
// suitable node, leaving the workload Pending.
func (m *Manager) RecordScheduleFailure(id clawid.WorkloadId, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tw, ok := m.workloads[id]
	if !ok {
		return &clawproto.WorkloadNotFoundError{WorkloadID: id}
	}
	tw.ScheduleFailure = &reason
	return nil
}

// UpdateState applies a validated state-machine transition.
func (m *Manager) UpdateState(id clawid.WorkloadId, to clawproto.WorkloadState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tw, ok := m.workloads[id]
	if !ok {
		return &clawproto.WorkloadNotFoundError{WorkloadID: id}
	}
	from := tw.Workload.Status.State
	if err := tw.Workload.Status.TransitionTo(to, m.now()); err != nil {
		return &clawproto.InvalidTransitionError{WorkloadID: id, From: from, To: to}
	}
	return nil
}

// Cancel applies the cancellation policy: Pending->Stopped directly,
// Starting|Running->Stopping, Stopping is a no-op, terminal states
// refuse cancellation. The terminal check happens first, before any
// state-specific branch.
func (m *Manager) Cancel(id clawid.WorkloadId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tw, ok := m.workloads[id]
	if !ok {
		return &clawproto.WorkloadNotFoundError{WorkloadID: id}
	}

	current := tw.Workload.Status.State
	if current.IsTerminal() {
		return &clawproto.CannotCancelError{WorkloadID: id, State: current}
	}

	switch current {
	case clawproto.StatePending:
		return tw.Workload.Status.TransitionTo(clawproto.StateStopped, m.now())
	case clawproto.StateStarting, clawproto.StateRunning:
		return tw.Workload.Status.TransitionTo(clawproto.StateStopping, m.now())
	case clawproto.StateStopping:
		return nil
	default:
		return &clawproto.CannotCancelError{WorkloadID: id, State: current}
	}
}

// ListWorkloads returns every tracked workload in submission order.
func (m *Manager) ListWorkloads() []clawproto.TrackedWorkload {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]clawproto.TrackedWorkload, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.workloads[id])
	}
	return out
}

// ListByState returns tracked workloads currently in the given state, in
// submission order.
func (m *Manager) ListByState(state clawproto.WorkloadState) []clawproto.TrackedWorkload {
	var out []clawproto.TrackedWorkload
	for _, tw := range m.ListWorkloads() {
		if tw.State() == state {
			out = append(out, tw)
		}
	}
	return out
}

// ListByNode returns tracked workloads currently assigned to nodeID, in
// submission order.
func (m *Manager) ListByNode(nodeID clawid.NodeId) []clawproto.TrackedWorkload {
	var out []clawproto.TrackedWorkload
	for _, tw := range m.ListWorkloads() {
		if tw.AssignedNode != nil && *tw.AssignedNode == nodeID {
			out = append(out, tw)
		}
	}
	return out
}

// PendingWorkloads returns workloads that are Pending AND not yet
// assigned to any node — the Dispatcher's drain-path filter. Both
// conditions matter: a Pending workload already carrying an assignment
// is mid-dispatch, not waiting for one.
func (m *Manager) PendingWorkloads() []clawproto.TrackedWorkload {
	var out []clawproto.TrackedWorkload
	for _, tw := range m.ListWorkloads() {
		if tw.State() == clawproto.StatePending && !tw.IsAssigned() {
			out = append(out, tw)
		}
	}
	return out
}

// Len reports the number of tracked workloads.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// IsEmpty reports whether no workloads are tracked.
func (m *Manager) IsEmpty() bool { return m.Len() == 0 }
