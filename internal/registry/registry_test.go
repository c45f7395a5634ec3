package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
)

func caps(gpuModels ...string) clawproto.NodeCapabilities {
	gpus := make([]clawproto.GpuCapability, 0, len(gpuModels))
	for i, model := range gpuModels {
		gpus = append(gpus, clawproto.GpuCapability{Index: uint32(i), Model: model, MemoryMiB: 81920})
	}
	return clawproto.NodeCapabilities{CPUCores: 16, MemoryMiB: 262144, GPUs: gpus}
}

func TestRegisterRejectsDuplicateNodeID(t *testing.T) {
	r := New(DefaultConfig())
	id := clawid.NewNodeId()
	_, err := r.Register(id, caps("H100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = r.Register(id, caps("H100"))
	var dup *clawproto.DuplicateNodeError
	if err == nil {
		t.Fatalf("expected duplicate NodeId registration to fail")
	}
	if !errors.As(err, &dup) {
		t.Fatalf("expected a DuplicateNodeError, got %T", err)
	}
}

func TestRegisterWithNameRejectsDuplicateName(t *testing.T) {
	r := New(DefaultConfig())
	_, err := r.RegisterWithName(clawid.NewNodeId(), "gpu-box-1", caps("A100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = r.RegisterWithName(clawid.NewNodeId(), "gpu-box-1", caps("A100"))
	if err == nil {
		t.Fatalf("expected duplicate name registration to fail")
	}
}

func TestUnregisterRemovesNodeAndFreesName(t *testing.T) {
	r := New(DefaultConfig())
	id := clawid.NewNodeId()
	_, err := r.RegisterWithName(id, "gpu-box-1", caps("A100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Unregister(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.GetNode(id); ok {
		t.Fatalf("expected node to be gone after Unregister")
	}

	// Name must be free for reuse.
	if _, err := r.RegisterWithName(clawid.NewNodeId(), "gpu-box-1", caps("A100")); err != nil {
		t.Fatalf("expected freed name to be reusable, got %v", err)
	}
}

func TestUnregisterUnknownNodeReportsNotFound(t *testing.T) {
	r := New(DefaultConfig())
	err := r.Unregister(clawid.NewNodeId())
	var nf *clawproto.NodeNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *clawproto.NodeNotFoundError, got %T", err)
	}
}

func TestHeartbeatRecomputesHealthWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New(DefaultConfig())
	r.now = func() time.Time { return base }

	id := clawid.NewNodeId()
	if _, err := r.Register(id, caps("H100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.now = func() time.Time { return base.Add(10 * time.Second) }
	if err := r.Heartbeat(id, base.Add(10*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.now = func() time.Time { return base.Add(50 * time.Second) }
	n, ok := r.GetNode(id)
	if !ok {
		t.Fatalf("expected node to be present")
	}
	if n.Health != clawproto.HealthDegraded {
		t.Fatalf("expected degraded health at 40s since last heartbeat, got %s", n.Health)
	}

	r.now = func() time.Time { return base.Add(200 * time.Second) }
	n, _ = r.GetNode(id)
	if n.Health != clawproto.HealthOffline {
		t.Fatalf("expected offline health past the degraded window, got %s", n.Health)
	}
}

func TestHeartbeatOnUnknownNodeReportsNotFound(t *testing.T) {
	r := New(DefaultConfig())
	err := r.Heartbeat(clawid.NewNodeId(), time.Now())
	var nf *clawproto.NodeNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *clawproto.NodeNotFoundError, got %T", err)
	}
}

func TestListNodesPreservesInsertionOrder(t *testing.T) {
	r := New(DefaultConfig())
	var ids []clawid.NodeId
	for i := 0; i < 4; i++ {
		id := clawid.NewNodeId()
		if _, err := r.Register(id, caps("H100")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, id)
	}

	list := r.ListNodes()
	if len(list) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(list))
	}
	for i, n := range list {
		if n.ID != ids[i] {
			t.Fatalf("expected insertion order to be preserved at index %d", i)
		}
	}
}

func TestFindByGPUMatchesSubstring(t *testing.T) {
	r := New(DefaultConfig())
	h100 := clawid.NewNodeId()
	a100 := clawid.NewNodeId()
	if _, err := r.Register(h100, caps("NVIDIA H100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register(a100, caps("NVIDIA A100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches := r.FindByGPU("H100")
	if len(matches) != 1 || matches[0].ID != h100 {
		t.Fatalf("expected exactly the H100 node to match, got %+v", matches)
	}
}

func TestHealthSummaryCountsEachBucket(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New(DefaultConfig())
	r.now = func() time.Time { return base }

	healthy := clawid.NewNodeId()
	degraded := clawid.NewNodeId()
	offline := clawid.NewNodeId()
	for _, id := range []clawid.NodeId{healthy, degraded, offline} {
		if _, err := r.Register(id, caps("H100")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	r.now = func() time.Time { return base.Add(200 * time.Second) }
	if err := r.Heartbeat(degraded, base.Add(160*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Heartbeat(healthy, base.Add(199*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// offline never heartbeats again; its initial heartbeat is from base, now far in the past.

	summary := r.HealthSummary()
	if summary.Total != 3 {
		t.Fatalf("expected 3 total nodes, got %d", summary.Total)
	}
	if summary.Healthy != 1 || summary.Degraded != 1 || summary.Offline != 1 {
		t.Fatalf("expected one node per bucket, got %+v", summary)
	}
}

func TestLenReflectsRegisteredCount(t *testing.T) {
	r := New(DefaultConfig())
	if r.Len() != 0 {
		t.Fatalf("expected empty registry to have length 0")
	}
	id := clawid.NewNodeId()
	if _, err := r.Register(id, caps("H100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected length 1 after one registration")
	}
	if err := r.Unregister(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected length 0 after unregistration")
	}
}
