package dispatcher

import (
	"errors"
	"testing"
	"time"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
	"github.com/clawbernetes/clawgatewayd/internal/registry"
)

func newTestDispatcher() *Dispatcher {
	reg := registry.New(registry.DefaultConfig())
	return New(reg, DefaultConfig())
}

func caps(gpuCount int) clawproto.NodeCapabilities {
	gpus := make([]clawproto.GpuCapability, gpuCount)
	for i := range gpus {
		gpus[i] = clawproto.GpuCapability{Index: uint32(i), Model: "H100", MemoryMiB: 81920}
	}
	return clawproto.NodeCapabilities{CPUCores: 32, MemoryMiB: 524288, GPUs: gpus}
}

func TestSubmitWithNoNodesLeavesWorkloadPendingWithNoCommand(t *testing.T) {
	d := newTestDispatcher()
	spec := clawproto.NewWorkloadSpec("img").WithGPUCount(1)

	id, cmd, err := d.Submit(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd != nil {
		t.Fatalf("expected no command when no nodes are registered")
	}

	tw, err := d.GetWorkload(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tw.State() != clawproto.StatePending {
		t.Fatalf("expected workload to remain Pending, got %s", tw.State())
	}
	if tw.ScheduleFailure == nil {
		t.Fatalf("expected a recorded schedule failure reason")
	}
}

func TestSubmitSchedulesImmediatelyWhenANodeFits(t *testing.T) {
	d := newTestDispatcher()
	nodeID := clawid.NewNodeId()
	if _, err := d.Registry().Register(nodeID, caps(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spec := clawproto.NewWorkloadSpec("img").WithGPUCount(1)
	id, cmd, err := d.Submit(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start, ok := cmd.(clawproto.StartWorkload)
	if !ok {
		t.Fatalf("expected a StartWorkload command, got %T", cmd)
	}
	if start.WorkloadID != id {
		t.Fatalf("expected the command to reference the submitted workload")
	}

	tw, err := d.GetWorkload(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tw.State() != clawproto.StateStarting {
		t.Fatalf("expected workload to transition to Starting, got %s", tw.State())
	}
	if !tw.IsAssigned() || *tw.AssignedNode != nodeID {
		t.Fatalf("expected workload to be assigned to the registered node")
	}
}

func TestSubmitRejectsWhenPendingQueueIsAtCapacity(t *testing.T) {
	reg := registry.New(registry.DefaultConfig())
	cfg := DefaultConfig()
	cfg.PendingQueueCap = 1
	d := New(reg, cfg)

	spec := clawproto.NewWorkloadSpec("img")
	if _, _, err := d.Submit(spec); err != nil {
		t.Fatalf("unexpected error on first submit: %v", err)
	}
	_, _, err := d.Submit(spec)
	var verr *clawproto.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a ValidationError once the pending queue is full, got %T", err)
	}
}

func TestDispatchToNodeFailsAgainstOfflineNode(t *testing.T) {
	d := newTestDispatcher()
	nodeID := clawid.NewNodeId()
	if _, err := d.Registry().Register(nodeID, caps(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Force the node offline by backdating its heartbeat far past the degraded window.
	if err := d.Registry().Heartbeat(nodeID, mustPast()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, _, err := d.Submit(clawproto.NewWorkloadSpec("img").WithGPUCount(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = d.DispatchToNode(id, nodeID)
	var offline *clawproto.NodeOfflineError
	if !errors.As(err, &offline) {
		t.Fatalf("expected NodeOfflineError, got %T", err)
	}
}

func TestHandleWorkloadUpdateToFailedRecordsMessageAsScheduleFailure(t *testing.T) {
	d := newTestDispatcher()
	nodeID := clawid.NewNodeId()
	if _, err := d.Registry().Register(nodeID, caps(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, _, err := d.Submit(clawproto.NewWorkloadSpec("img").WithGPUCount(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.HandleWorkloadUpdate(id, clawproto.StateFailed, "oom killed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tw, err := d.GetWorkload(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tw.State() != clawproto.StateFailed {
		t.Fatalf("expected Failed state, got %s", tw.State())
	}
	if tw.ScheduleFailure == nil || *tw.ScheduleFailure != "oom killed" {
		t.Fatalf("expected failure message to be recorded, got %+v", tw.ScheduleFailure)
	}
}

func TestStopWorkloadIsIdempotentWhenAlreadyStopping(t *testing.T) {
	d := newTestDispatcher()
	nodeID := clawid.NewNodeId()
	if _, err := d.Registry().Register(nodeID, caps(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, _, err := d.Submit(clawproto.NewWorkloadSpec("img").WithGPUCount(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.HandleWorkloadUpdate(id, clawproto.StateRunning, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd, err := d.StopWorkload(id, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cmd.(clawproto.StopWorkload); !ok {
		t.Fatalf("expected a StopWorkload command, got %T", cmd)
	}

	cmd, err = d.StopWorkload(id, 30)
	if err != nil {
		t.Fatalf("unexpected error on idempotent stop: %v", err)
	}
	if cmd != nil {
		t.Fatalf("expected no command on a repeated stop of an already-stopping workload")
	}
}

func TestUnregisterNodeFailsInFlightWorkloads(t *testing.T) {
	d := newTestDispatcher()
	nodeID := clawid.NewNodeId()
	if _, err := d.Registry().Register(nodeID, caps(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, _, err := d.Submit(clawproto.NewWorkloadSpec("img").WithGPUCount(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.UnregisterNode(nodeID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tw, err := d.GetWorkload(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tw.State() != clawproto.StateFailed {
		t.Fatalf("expected workload assigned to the lost node to be Failed, got %s", tw.State())
	}

	if _, ok := d.Registry().GetNode(nodeID); ok {
		t.Fatalf("expected node to be removed from the registry")
	}
}

func TestUnregisterNodeLeavesTerminalWorkloadsUntouched(t *testing.T) {
	d := newTestDispatcher()
	nodeID := clawid.NewNodeId()
	if _, err := d.Registry().Register(nodeID, caps(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, _, err := d.Submit(clawproto.NewWorkloadSpec("img").WithGPUCount(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.HandleWorkloadUpdate(id, clawproto.StateFailed, "already dead"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.UnregisterNode(nodeID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tw, err := d.GetWorkload(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tw.ScheduleFailure == nil || *tw.ScheduleFailure != "already dead" {
		t.Fatalf("expected the original failure reason to be left untouched, got %+v", tw.ScheduleFailure)
	}
}

func TestTryDispatchPendingDrainsQueueOnceNodeJoins(t *testing.T) {
	d := newTestDispatcher()
	id, cmd, err := d.Submit(clawproto.NewWorkloadSpec("img").WithGPUCount(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd != nil {
		t.Fatalf("expected no immediate command with an empty registry")
	}

	results, err := d.RegisterNode(clawid.NewNodeId(), caps(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].WorkloadID != id {
		t.Fatalf("expected the pending workload to be dispatched on node arrival, got %+v", results)
	}

	tw, err := d.GetWorkload(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tw.State() != clawproto.StateStarting {
		t.Fatalf("expected dispatched workload to be Starting, got %s", tw.State())
	}
}

func TestCancelWorkloadDelegatesToManagerPolicy(t *testing.T) {
	d := newTestDispatcher()
	id, _, err := d.Submit(clawproto.NewWorkloadSpec("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.CancelWorkload(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tw, err := d.GetWorkload(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tw.State() != clawproto.StateStopped {
		t.Fatalf("expected Pending workload to cancel directly to Stopped, got %s", tw.State())
	}
}

func mustPast() time.Time {
	return time.Now().Add(-24 * time.Hour)
}
