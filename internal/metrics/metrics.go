// Package metrics exposes the gateway's Prometheus collectors via
// github.com/prometheus/client_golang, registered through promauto rather
// than a hand-rolled text-exposition exporter; see DESIGN.md for the
// rationale.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clawgatewayd"

// Registry bundles every collector the gateway exports, grouped by metric
// family (registry, scheduling, attestation, mesh, sessions) rather than
// as one flat namespace.
type Registry struct {
	NodesRegistered   prometheus.Gauge
	NodesHealthy      prometheus.Gauge
	NodesDegraded     prometheus.Gauge
	NodesOffline      prometheus.Gauge

	SchedulingAttempts  *prometheus.CounterVec
	SchedulingDuration  prometheus.Histogram

	WorkloadsByState *prometheus.GaugeVec
	WorkloadSubmits  prometheus.Counter

	AttestationVerifications *prometheus.CounterVec

	MeshNodeAddrsFree      *prometheus.GaugeVec
	MeshWorkloadSubnetsFree *prometheus.GaugeVec

	SessionsActive  prometheus.Gauge
	SessionInvokes  *prometheus.CounterVec
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		NodesRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "registry", Name: "nodes_registered",
			Help: "Number of nodes currently registered.",
		}),
		NodesHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "registry", Name: "nodes_healthy",
			Help: "Number of registered nodes currently healthy.",
		}),
		NodesDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "registry", Name: "nodes_degraded",
			Help: "Number of registered nodes currently degraded.",
		}),
		NodesOffline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "registry", Name: "nodes_offline",
			Help: "Number of registered nodes currently offline.",
		}),
		SchedulingAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "attempts_total",
			Help: "Scheduling attempts by outcome.",
		}, []string{"outcome"}),
		SchedulingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "duration_seconds",
			Help:    "Time taken to select a node for a workload.",
			Buckets: prometheus.DefBuckets,
		}),
		WorkloadsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "workload", Name: "count",
			Help: "Tracked workloads by state.",
		}, []string{"state"}),
		WorkloadSubmits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "workload", Name: "submits_total",
			Help: "Total workload submissions accepted.",
		}),
		AttestationVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attestation", Name: "verifications_total",
			Help: "Attestation verifications by kind and outcome.",
		}, []string{"kind", "outcome"}),
		MeshNodeAddrsFree: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "mesh", Name: "node_addrs_free",
			Help: "Free node-mesh addresses remaining, by region.",
		}, []string{"region"}),
		MeshWorkloadSubnetsFree: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "mesh", Name: "workload_subnets_free",
			Help: "Free workload subnets remaining, by region.",
		}, []string{"region"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "session", Name: "active",
			Help: "Currently connected node sessions.",
		}),
		SessionInvokes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "invokes_total",
			Help: "Command invocations sent to nodes, by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveHealthSummary updates the registry gauges from a health
// breakdown; callers poll this on a short interval rather than wiring a
// push path into the Registry itself.
func (r *Registry) ObserveHealthSummary(total, healthy, degraded, offline int) {
	r.NodesRegistered.Set(float64(total))
	r.NodesHealthy.Set(float64(healthy))
	r.NodesDegraded.Set(float64(degraded))
	r.NodesOffline.Set(float64(offline))
}
