package scheduler

import (
	"errors"
	"testing"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
)

func node(gpuModels []string, memoryMiB uint64, cpuCores uint32) clawproto.RegisteredNode {
	gpus := make([]clawproto.GpuCapability, 0, len(gpuModels))
	for i, model := range gpuModels {
		gpus = append(gpus, clawproto.GpuCapability{Index: uint32(i), Model: model, MemoryMiB: 81920})
	}
	return clawproto.RegisteredNode{
		ID: clawid.NewNodeId(),
		Capabilities: clawproto.NodeCapabilities{
			CPUCores:  cpuCores,
			MemoryMiB: memoryMiB,
			GPUs:      gpus,
		},
	}
}

func TestScheduleReportsNoNodesOnEmptyRegistry(t *testing.T) {
	spec := clawproto.NewWorkloadSpec("img").WithGPUCount(1)
	_, err := Schedule(spec, nil, 0)
	var noNodes *clawproto.NoNodesError
	if !errors.As(err, &noNodes) {
		t.Fatalf("expected NoNodesError, got %T", err)
	}
}

func TestScheduleFirstFitPicksFirstFittingNode(t *testing.T) {
	spec := clawproto.NewWorkloadSpec("img").WithGPUCount(1)
	tooSmall := node(nil, 1024, 1)
	fits1 := node([]string{"H100"}, 262144, 16)
	fits2 := node([]string{"H100", "H100"}, 262144, 16)

	chosen, err := Schedule(spec, []clawproto.RegisteredNode{tooSmall, fits1, fits2}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen != fits1.ID {
		t.Fatalf("expected first-fit to choose the first fitting node")
	}
}

func TestScheduleReportsNoSuitableNodeWithResourceDetails(t *testing.T) {
	spec := clawproto.NewWorkloadSpec("img").WithGPUCount(4).WithMemoryMB(1024).WithCPUCores(2)
	small := node([]string{"H100"}, 2048, 2)

	_, err := Schedule(spec, []clawproto.RegisteredNode{small}, 0)
	var noSuitable *clawproto.NoSuitableNodeError
	if !errors.As(err, &noSuitable) {
		t.Fatalf("expected NoSuitableNodeError, got %T", err)
	}
	if noSuitable.NeededGPUs != 4 || noSuitable.NeededCPUCores != 2 {
		t.Fatalf("expected error to carry the spec's resource needs, got %+v", noSuitable)
	}
}

func TestScheduleRespectsMemoryHeadroom(t *testing.T) {
	spec := clawproto.NewWorkloadSpec("img").WithMemoryMB(1000)
	exact := node(nil, 1500, 1)

	if _, err := Schedule(spec, []clawproto.RegisteredNode{exact}, 501); err == nil {
		t.Fatalf("expected headroom reservation to push this node below the requirement")
	}
	if _, err := Schedule(spec, []clawproto.RegisteredNode{exact}, 501-1); err != nil {
		t.Fatalf("expected node to fit once headroom leaves enough free memory: %v", err)
	}
}

func TestScheduleBestFitMinimizesGPUCountDifference(t *testing.T) {
	spec := clawproto.NewWorkloadSpec("img").WithGPUCount(2).WithMemoryMB(1).WithCPUCores(1)
	oneGPU := node([]string{"H100"}, 262144, 16)
	twoGPUs := node([]string{"H100", "H100"}, 262144, 16)
	eightGPUs := node(make([]string, 8), 262144, 16)

	chosen, err := ScheduleBestFit(spec, []clawproto.RegisteredNode{oneGPU, eightGPUs, twoGPUs}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen != twoGPUs.ID {
		t.Fatalf("expected best-fit to choose the node with exactly the requested GPU count")
	}
}

func TestScheduleBestFitTieBreaksOnDescendingMemory(t *testing.T) {
	spec := clawproto.NewWorkloadSpec("img").WithGPUCount(1).WithMemoryMB(1).WithCPUCores(1)
	lessMemory := node([]string{"H100"}, 100000, 16)
	moreMemory := node([]string{"H100"}, 200000, 16)

	chosen, err := ScheduleBestFit(spec, []clawproto.RegisteredNode{lessMemory, moreMemory}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen != moreMemory.ID {
		t.Fatalf("expected best-fit to tie-break on descending available memory")
	}
}

func TestScheduleBestFitReportsNoNodesOnEmptyRegistry(t *testing.T) {
	spec := clawproto.NewWorkloadSpec("img")
	_, err := ScheduleBestFit(spec, nil, 0)
	var noNodes *clawproto.NoNodesError
	if !errors.As(err, &noNodes) {
		t.Fatalf("expected NoNodesError, got %T", err)
	}
}

func TestScheduleBestFitReportsNoSuitableNodeWhenNoneFit(t *testing.T) {
	spec := clawproto.NewWorkloadSpec("img").WithGPUCount(8)
	tooSmall := node([]string{"H100"}, 262144, 16)

	_, err := ScheduleBestFit(spec, []clawproto.RegisteredNode{tooSmall}, 0)
	var noSuitable *clawproto.NoSuitableNodeError
	if !errors.As(err, &noSuitable) {
		t.Fatalf("expected NoSuitableNodeError, got %T", err)
	}
}

func TestFindNodesByGPUTypeMatchesSubstringAcrossNodes(t *testing.T) {
	h100 := node([]string{"NVIDIA H100"}, 262144, 16)
	a100 := node([]string{"NVIDIA A100"}, 262144, 16)
	mixed := node([]string{"NVIDIA A100", "NVIDIA H100"}, 262144, 16)

	matches := FindNodesByGPUType([]clawproto.RegisteredNode{h100, a100, mixed}, "H100")
	if len(matches) != 2 {
		t.Fatalf("expected 2 nodes advertising an H100, got %d", len(matches))
	}
}
