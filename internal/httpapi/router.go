// Package httpapi exposes the gateway's HTTP surface: liveness/readiness
// probes, Prometheus scraping, and workload submission. The node<->gateway
// wire protocol itself lives entirely in internal/gatewaysession over
// WebSocket; this router drives workloads only through the Dispatcher's
// public API, and reads the Registry (through Dispatcher.Registry) only
// for the /readyz health summary.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawlog"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
	"github.com/clawbernetes/clawgatewayd/internal/dispatcher"
)

var logger = clawlog.Named("httpapi")

// CommandDeliverer delivers a scheduled command to the node it was
// assigned to. *gatewaysession.Server satisfies this.
type CommandDeliverer interface {
	DeliverCommand(nodeID clawid.NodeId, cmd clawproto.GatewayMessage) error
}

// New builds the gateway's HTTP router: /healthz, /readyz, /metrics, and
// workload submission/cancellation. deliverer may be nil, in which case a
// scheduled workload is recorded as Starting but no command is ever sent
// to its node — only suitable for tests exercising the Dispatcher alone.
func New(d *dispatcher.Dispatcher, deliverer CommandDeliverer) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", handleReadyz(d)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/workloads", handleSubmitWorkload(d, deliverer)).Methods(http.MethodPost)
	r.HandleFunc("/workloads/{id}", handleGetWorkload(d)).Methods(http.MethodGet)
	r.HandleFunc("/workloads/{id}/cancel", handleCancelWorkload(d)).Methods(http.MethodPost)
	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// handleReadyz reports not-ready (503) only when the registry holds at
// least one node and none of them is Healthy or Degraded; an empty
// registry counts as ready.
func handleReadyz(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary := d.Registry().HealthSummary()
		w.Header().Set("Content-Type", "application/json")

		ready := summary.Total == 0 || summary.Healthy > 0 || summary.Degraded > 0
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ready":   ready,
			"nodes":   summary,
			"pending": d.PendingCount(),
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// handleSubmitWorkload validates and records a workload spec, attempts an
// immediate schedule, and — when one succeeds and a deliverer is wired —
// hands the resulting StartWorkload command off to the assigned node.
func handleSubmitWorkload(d *dispatcher.Dispatcher, deliverer CommandDeliverer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec clawproto.WorkloadSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}

		id, cmd, err := d.Submit(spec)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}

		if cmd != nil && deliverer != nil {
			if tw, twErr := d.GetWorkload(id); twErr == nil && tw.AssignedNode != nil {
				if err := deliverer.DeliverCommand(*tw.AssignedNode, cmd); err != nil {
					logger.Warnf("failed to deliver start command for workload %s: %v", id, err)
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"workload_id": id.String()})
	}
}

func handleGetWorkload(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := clawid.ParseWorkloadId(mux.Vars(r)["id"])
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		tw, err := d.GetWorkload(id)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tw)
	}
}

func handleCancelWorkload(d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := clawid.ParseWorkloadId(mux.Vars(r)["id"])
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		if err := d.CancelWorkload(id); err != nil {
			writeJSONError(w, http.StatusConflict, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
