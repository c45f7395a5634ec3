// Package scheduler implements the gateway's GPU-aware node selection as
// pure, stateless functions: given a spec and a view of registered
// nodes, choose a node or report a structured failure. Nothing here
// mutates its inputs or retains state between calls, so it is trivially
// re-entrant and replaceable.
package scheduler

import (
	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
)

// Schedule performs first-fit selection: the first node in registry
// order whose capabilities satisfy the spec, given a memory headroom
// reservation.
func Schedule(spec clawproto.WorkloadSpec, nodes []clawproto.RegisteredNode, memoryHeadroomMiB uint64) (clawid.NodeId, error) {
	if len(nodes) == 0 {
		return clawid.NodeId{}, &clawproto.NoNodesError{}
	}
	for _, n := range nodes {
		if n.Fits(spec, memoryHeadroomMiB) {
			return n.ID, nil
		}
	}
	return clawid.NodeId{}, noSuitableNodeError(spec)
}

// ScheduleBestFit selects among all fitting nodes the one minimizing
// |gpu_count - spec.gpu_count|, tie-breaking by descending available
// memory, then by registry order.
func ScheduleBestFit(spec clawproto.WorkloadSpec, nodes []clawproto.RegisteredNode, memoryHeadroomMiB uint64) (clawid.NodeId, error) {
	if len(nodes) == 0 {
		return clawid.NodeId{}, &clawproto.NoNodesError{}
	}

	var best *clawproto.RegisteredNode
	var bestGPUDiff uint32
	for i := range nodes {
		n := nodes[i]
		if !n.Fits(spec, memoryHeadroomMiB) {
			continue
		}
		diff := gpuDiff(uint32(len(n.Capabilities.GPUs)), spec.GPUCount)
		if best == nil {
			best = &nodes[i]
			bestGPUDiff = diff
			continue
		}
		if diff < bestGPUDiff {
			best = &nodes[i]
			bestGPUDiff = diff
			continue
		}
		if diff == bestGPUDiff && n.Capabilities.MemoryMiB > best.Capabilities.MemoryMiB {
			best = &nodes[i]
			bestGPUDiff = diff
		}
	}
	if best == nil {
		return clawid.NodeId{}, noSuitableNodeError(spec)
	}
	return best.ID, nil
}

// FindNodesByGPUType returns every node advertising a GPU whose model
// contains the given substring.
func FindNodesByGPUType(nodes []clawproto.RegisteredNode, modelSubstring string) []clawproto.RegisteredNode {
	var out []clawproto.RegisteredNode
	for _, n := range nodes {
		if n.HasGPUModel(modelSubstring) {
			out = append(out, n)
		}
	}
	return out
}

func gpuDiff(have, need uint32) uint32 {
	if have > need {
		return have - need
	}
	return need - have
}

func noSuitableNodeError(spec clawproto.WorkloadSpec) error {
	return &clawproto.NoSuitableNodeError{
		NeededGPUs:     spec.GPUCount,
		NeededMemoryMB: spec.MemoryMB,
		NeededCPUCores: spec.CPUCores,
	}
}
