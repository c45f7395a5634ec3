// Package registry implements the authoritative set of registered nodes,
// their advertised capabilities, and heartbeat-derived health. It is a
// single-writer component: all mutating methods are serialized behind a
// mutex; reads may proceed concurrently.
package registry

import (
	"sync"
	"time"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
)

// Config controls the health-window thresholds used to derive
// HealthState from heartbeat age.
type Config struct {
	HealthyWindow  time.Duration
	DegradedWindow time.Duration
}

// DefaultConfig returns the documented defaults (30s / 90s).
func DefaultConfig() Config {
	return Config{
		HealthyWindow:  30 * time.Second,
		DegradedWindow: 90 * time.Second,
	}
}

// Registry tracks registered nodes with insertion-order-stable listings.
type Registry struct {
	mu     sync.RWMutex
	cfg    Config
	nodes  map[clawid.NodeId]*clawproto.RegisteredNode
	order  []clawid.NodeId
	byName map[string]clawid.NodeId
	now    func() time.Time
}

// New constructs an empty Registry.
func New(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		nodes:  make(map[clawid.NodeId]*clawproto.RegisteredNode),
		byName: make(map[string]clawid.NodeId),
		now:    time.Now,
	}
}

// Register adds a node with no display name. It fails if the NodeId is
// already present.
func (r *Registry) Register(id clawid.NodeId, caps clawproto.NodeCapabilities) (clawproto.RegisteredNode, error) {
	return r.register(id, nil, caps)
}

// RegisterWithName adds a node with a display name, unique across the
// registry.
func (r *Registry) RegisterWithName(id clawid.NodeId, name string, caps clawproto.NodeCapabilities) (clawproto.RegisteredNode, error) {
	return r.register(id, &name, caps)
}

func (r *Registry) register(id clawid.NodeId, name *string, caps clawproto.NodeCapabilities) (clawproto.RegisteredNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[id]; exists {
		return clawproto.RegisteredNode{}, &clawproto.DuplicateNodeError{Reason: "node_id already registered"}
	}
	if name != nil {
		if _, exists := r.byName[*name]; exists {
			return clawproto.RegisteredNode{}, &clawproto.DuplicateNodeError{Reason: "name already registered"}
		}
	}

	now := r.now()
	node := &clawproto.RegisteredNode{
		ID:            id,
		Name:          name,
		Capabilities:  caps,
		Health:        clawproto.HealthHealthy,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	r.nodes[id] = node
	r.order = append(r.order, id)
	if name != nil {
		r.byName[*name] = id
	}
	return *node, nil
}

// Unregister removes a node entirely, freeing its name for reuse.
func (r *Registry) Unregister(id clawid.NodeId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		return &clawproto.NodeNotFoundError{NodeID: id}
	}
	delete(r.nodes, id)
	if node.Name != nil {
		delete(r.byName, *node.Name)
	}
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Heartbeat updates a node's last-seen timestamp and recomputes health.
func (r *Registry) Heartbeat(id clawid.NodeId, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		return &clawproto.NodeNotFoundError{NodeID: id}
	}
	node.LastHeartbeat = at
	node.Health = clawproto.ComputeHealth(node.LastHeartbeat, r.now(), r.cfg.HealthyWindow, r.cfg.DegradedWindow)
	return nil
}

// ListNodes returns every registered node in insertion order, with
// health freshly recomputed.
func (r *Registry) ListNodes() []clawproto.RegisteredNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	out := make([]clawproto.RegisteredNode, 0, len(r.order))
	for _, id := range r.order {
		n := *r.nodes[id]
		n.Health = clawproto.ComputeHealth(n.LastHeartbeat, now, r.cfg.HealthyWindow, r.cfg.DegradedWindow)
		out = append(out, n)
	}
	return out
}

// GetNode looks up a single node by id, with health freshly recomputed.
func (r *Registry) GetNode(id clawid.NodeId) (clawproto.RegisteredNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[id]
	if !ok {
		return clawproto.RegisteredNode{}, false
	}
	n := *node
	n.Health = clawproto.ComputeHealth(n.LastHeartbeat, r.now(), r.cfg.HealthyWindow, r.cfg.DegradedWindow)
	return n, true
}

// FindByGPU returns every registered node (insertion order) advertising a
// GPU whose model contains the substring.
func (r *Registry) FindByGPU(modelSubstring string) []clawproto.RegisteredNode {
	all := r.ListNodes()
	var out []clawproto.RegisteredNode
	for _, n := range all {
		if n.HasGPUModel(modelSubstring) {
			out = append(out, n)
		}
	}
	return out
}

// HealthSummary counts registered nodes by freshly recomputed health.
func (r *Registry) HealthSummary() clawproto.HealthSummary {
	all := r.ListNodes()
	var s clawproto.HealthSummary
	for _, n := range all {
		switch n.Health {
		case clawproto.HealthHealthy:
			s.Healthy++
		case clawproto.HealthDegraded:
			s.Degraded++
		default:
			s.Offline++
		}
	}
	s.Total = len(all)
	return s
}

// Len reports the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
