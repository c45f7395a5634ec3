// Package dispatcher composes the Registry, Workload Manager, and
// Scheduler into the gateway's single point of control: submission,
// scheduling, state-machine transitions, node registration/loss, and the
// pending queue drained on node arrival. The Dispatcher never performs
// I/O itself — its mutating methods return opaque GatewayMessage values
// for a session layer to deliver.
package dispatcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
	"github.com/clawbernetes/clawgatewayd/internal/registry"
	"github.com/clawbernetes/clawgatewayd/internal/scheduler"
	"github.com/clawbernetes/clawgatewayd/internal/workload"
)

// Config controls scheduling headroom and queue/resource bounds.
type Config struct {
	MemoryHeadroomMiB uint64
	MaxWorkloadGPUs   uint32
	PendingQueueCap   uint32
}

// DefaultConfig returns the gateway's documented defaults.
func DefaultConfig() Config {
	return Config{
		MemoryHeadroomMiB: 0,
		MaxWorkloadGPUs:   clawproto.MaxWorkloadGPUs,
		PendingQueueCap:   10_000,
	}
}

// DispatchResult pairs a dispatched workload with the node it was
// assigned to and the command to deliver there.
type DispatchResult struct {
	WorkloadID clawid.WorkloadId
	NodeID     clawid.NodeId
	Command    clawproto.GatewayMessage
}

// Dispatcher is a single-writer component: every public method is
// serialized behind a mutex held for the duration of the call.
type Dispatcher struct {
	mu sync.Mutex

	cfg      Config
	registry *registry.Registry
	manager  *workload.Manager
	events   *clawproto.EventLog
	now      func() time.Time
}

// New constructs a Dispatcher over the given Registry, wiring a fresh
// Workload Manager and event log.
func New(reg *registry.Registry, cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		registry: reg,
		manager:  workload.New(cfg.MaxWorkloadGPUs),
		events:   clawproto.NewEventLog(),
		now:      time.Now,
	}
}

// Events exposes the workload audit trail (a supplemented feature;
// purely observational, gates no transition).
func (d *Dispatcher) Events() *clawproto.EventLog { return d.events }

// Submit validates and records the spec as Pending, then attempts an
// immediate first-fit schedule. On success it assigns the workload,
// transitions it to Starting, and returns a StartWorkload command. On
// NoSuitableNode/NoNodes it leaves the workload Pending with no command.
// The id is returned in both cases.
func (d *Dispatcher) Submit(spec clawproto.WorkloadSpec) (clawid.WorkloadId, clawproto.GatewayMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if uint32(len(d.manager.PendingWorkloads())) >= d.cfg.PendingQueueCap {
		return clawid.WorkloadId{}, nil, &clawproto.ValidationError{Field: "pending_queue", Message: "pending queue at capacity"}
	}

	id, err := d.manager.Submit(spec)
	if err != nil {
		return clawid.WorkloadId{}, nil, err
	}
	d.events.Push(clawproto.EventCreatedAt(id, d.now()))

	_, cmd, scheduleErr := d.tryScheduleOne(id, spec)
	if scheduleErr != nil {
		reason := scheduleErr.Error()
		_ = d.manager.RecordScheduleFailure(id, reason)
		return id, nil, nil
	}
	return id, cmd, nil
}

// tryScheduleOne performs a first-fit schedule for an already-submitted
// workload and, on success, assigns it and transitions it to Starting.
func (d *Dispatcher) tryScheduleOne(id clawid.WorkloadId, spec clawproto.WorkloadSpec) (clawid.NodeId, clawproto.GatewayMessage, error) {
	nodes := d.registry.ListNodes()
	nodeID, err := scheduler.Schedule(spec, nodes, d.cfg.MemoryHeadroomMiB)
	if err != nil {
		return clawid.NodeId{}, nil, err
	}
	if err := d.manager.AssignToNode(id, nodeID, nil); err != nil {
		return clawid.NodeId{}, nil, err
	}
	if err := d.manager.UpdateState(id, clawproto.StateStarting); err != nil {
		return clawid.NodeId{}, nil, err
	}
	d.events.Push(clawproto.EventStartedAt(id, d.now(), nodeID.String()))
	return nodeID, clawproto.StartWorkload{WorkloadID: id, Spec: spec}, nil
}

// DispatchToNode explicitly assigns a workload to a chosen node,
// bypassing the Scheduler. It fails if the node is absent/unhealthy, the
// workload is unknown, or the transition to Starting is illegal.
func (d *Dispatcher) DispatchToNode(id clawid.WorkloadId, nodeID clawid.NodeId) (clawproto.GatewayMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, ok := d.registry.GetNode(nodeID)
	if !ok {
		return nil, &clawproto.NodeNotFoundError{NodeID: nodeID}
	}
	if node.Health == clawproto.HealthOffline {
		return nil, &clawproto.NodeOfflineError{NodeID: nodeID}
	}

	tw, err := d.manager.GetWorkload(id)
	if err != nil {
		return nil, err
	}
	if err := d.manager.AssignToNode(id, nodeID, nil); err != nil {
		return nil, err
	}
	if err := d.manager.UpdateState(id, clawproto.StateStarting); err != nil {
		return nil, err
	}
	d.events.Push(clawproto.EventStartedAt(id, d.now(), nodeID.String()))
	return clawproto.StartWorkload{WorkloadID: id, Spec: tw.Workload.Spec}, nil
}

// HandleWorkloadUpdate applies a reported state transition. If message
// is non-empty and the new state is Failed, it is recorded as the
// schedule/runtime failure reason.
func (d *Dispatcher) HandleWorkloadUpdate(id clawid.WorkloadId, newState clawproto.WorkloadState, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.manager.UpdateState(id, newState); err != nil {
		return err
	}
	if message != "" && newState == clawproto.StateFailed {
		_ = d.manager.RecordScheduleFailure(id, message)
	}
	d.pushEventFor(id, newState, message)
	return nil
}

func (d *Dispatcher) pushEventFor(id clawid.WorkloadId, state clawproto.WorkloadState, message string) {
	now := d.now()
	switch state {
	case clawproto.StateStarting:
		node := ""
		if tw, err := d.manager.GetWorkload(id); err == nil && tw.AssignedNode != nil {
			node = tw.AssignedNode.String()
		}
		d.events.Push(clawproto.EventStartedAt(id, now, node))
	case clawproto.StateRunning:
		d.events.Push(clawproto.EventRunningAt(id, now))
	case clawproto.StateCompleted:
		d.events.Push(clawproto.EventCompletedAt(id, now, nil))
	case clawproto.StateFailed:
		d.events.Push(clawproto.EventFailedAt(id, now, message))
	case clawproto.StateStopped:
		d.events.Push(clawproto.EventStoppedAt(id, now))
	}
}

// StopWorkload transitions a Running workload to Stopping and emits a
// StopWorkload command. It is idempotent for a workload already
// Stopping (returns no command, no error).
func (d *Dispatcher) StopWorkload(id clawid.WorkloadId, gracePeriodSecs uint32) (clawproto.GatewayMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tw, err := d.manager.GetWorkload(id)
	if err != nil {
		return nil, err
	}
	if tw.State() == clawproto.StateStopping {
		return nil, nil
	}
	if err := d.manager.UpdateState(id, clawproto.StateStopping); err != nil {
		return nil, err
	}
	return clawproto.StopWorkload{WorkloadID: id, GracePeriodSecs: gracePeriodSecs}, nil
}

// RegisterNode delegates registration to the Registry, then attempts to
// drain the pending queue against the newly expanded node set.
func (d *Dispatcher) RegisterNode(nodeID clawid.NodeId, caps clawproto.NodeCapabilities) ([]DispatchResult, error) {
	d.mu.Lock()
	if _, err := d.registry.Register(nodeID, caps); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()
	return d.TryDispatchPending()
}

// UnregisterNode fails every non-terminal workload assigned to nodeID
// with reason "node lost", then delegates to the Registry.
func (d *Dispatcher) UnregisterNode(nodeID clawid.NodeId) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.registry.GetNode(nodeID); !ok {
		return &clawproto.NodeNotFoundError{NodeID: nodeID}
	}

	now := d.now()
	reason := fmt.Sprintf("node lost: %s at %s", nodeID, now.UTC().Format(time.RFC3339))
	for _, tw := range d.manager.ListByNode(nodeID) {
		if tw.State().IsTerminal() {
			continue
		}
		if err := d.manager.UpdateState(tw.ID(), clawproto.StateFailed); err != nil {
			continue
		}
		_ = d.manager.RecordScheduleFailure(tw.ID(), reason)
		d.events.Push(clawproto.EventFailedAt(tw.ID(), now, reason))
	}

	return d.registry.Unregister(nodeID)
}

// TryDispatchPending attempts, in submission order, to schedule every
// Pending-and-unassigned workload against the current node set. Attempts
// that still fail remain Pending; attempts that succeed are transitioned
// to Starting and returned with their StartWorkload command.
func (d *Dispatcher) TryDispatchPending() ([]DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var dispatched []DispatchResult
	for _, tw := range d.manager.PendingWorkloads() {
		nodeID, cmd, err := d.tryScheduleOne(tw.ID(), tw.Workload.Spec)
		if err != nil {
			_ = d.manager.RecordScheduleFailure(tw.ID(), err.Error())
			continue
		}
		dispatched = append(dispatched, DispatchResult{WorkloadID: tw.ID(), NodeID: nodeID, Command: cmd})
	}
	return dispatched, nil
}

// PendingCount reports the size of the pending-and-unassigned queue.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.manager.PendingWorkloads())
}

// GetWorkload exposes a read-only view of a tracked workload.
func (d *Dispatcher) GetWorkload(id clawid.WorkloadId) (clawproto.TrackedWorkload, error) {
	return d.manager.GetWorkload(id)
}

// CancelWorkload exposes the Workload Manager's cancellation policy.
func (d *Dispatcher) CancelWorkload(id clawid.WorkloadId) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.manager.Cancel(id); err != nil {
		return err
	}
	if tw, err := d.manager.GetWorkload(id); err == nil {
		d.pushEventFor(id, tw.State(), "")
	}
	return nil
}

// Registry exposes the underlying Registry for read-only inspection
// (health summaries, listings) by ambient surfaces like /readyz and the
// health-metrics poller.
func (d *Dispatcher) Registry() *registry.Registry { return d.registry }
