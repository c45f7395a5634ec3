package clawproto

import (
	"time"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
)

// WorkloadEventKind enumerates the audit-trail events emitted on
// submission and on every accepted workload state transition except
// entry into Stopping, which has no kind — pure bookkeeping that gates
// nothing.
type WorkloadEventKind string

const (
	EventCreated   WorkloadEventKind = "created"
	EventStarted   WorkloadEventKind = "started"
	EventRunning   WorkloadEventKind = "running"
	EventCompleted WorkloadEventKind = "completed"
	EventFailed    WorkloadEventKind = "failed"
	EventStopped   WorkloadEventKind = "stopped"
)

// EventMetadata carries the optional context attached to a WorkloadEvent.
type EventMetadata struct {
	Message  *string  `json:"message,omitempty"`
	ExitCode *int32   `json:"exit_code,omitempty"`
	Error    *string  `json:"error,omitempty"`
	GPUIDs   []uint32 `json:"gpu_ids,omitempty"`
	NodeID   *string  `json:"node_id,omitempty"`
}

// WorkloadEvent is one entry in a workload's audit trail.
type WorkloadEvent struct {
	WorkloadID clawid.WorkloadId `json:"workload_id"`
	Kind       WorkloadEventKind `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   EventMetadata     `json:"metadata"`
}

func newEvent(id clawid.WorkloadId, kind WorkloadEventKind, now time.Time, meta EventMetadata) WorkloadEvent {
	return WorkloadEvent{WorkloadID: id, Kind: kind, Timestamp: now, Metadata: meta}
}

func EventCreatedAt(id clawid.WorkloadId, now time.Time) WorkloadEvent {
	return newEvent(id, EventCreated, now, EventMetadata{})
}

func EventStartedAt(id clawid.WorkloadId, now time.Time, nodeID string) WorkloadEvent {
	return newEvent(id, EventStarted, now, EventMetadata{NodeID: &nodeID})
}

func EventRunningAt(id clawid.WorkloadId, now time.Time) WorkloadEvent {
	return newEvent(id, EventRunning, now, EventMetadata{})
}

func EventCompletedAt(id clawid.WorkloadId, now time.Time, exitCode *int32) WorkloadEvent {
	return newEvent(id, EventCompleted, now, EventMetadata{ExitCode: exitCode})
}

func EventFailedAt(id clawid.WorkloadId, now time.Time, reason string) WorkloadEvent {
	return newEvent(id, EventFailed, now, EventMetadata{Error: &reason})
}

func EventStoppedAt(id clawid.WorkloadId, now time.Time) WorkloadEvent {
	return newEvent(id, EventStopped, now, EventMetadata{})
}

// EventLog accumulates WorkloadEvents in append order.
type EventLog struct {
	events []WorkloadEvent
}

func NewEventLog() *EventLog { return &EventLog{} }

func (l *EventLog) Push(e WorkloadEvent) { l.events = append(l.events, e) }

func (l *EventLog) Events() []WorkloadEvent {
	out := make([]WorkloadEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *EventLog) EventsOf(id clawid.WorkloadId) []WorkloadEvent {
	var out []WorkloadEvent
	for _, e := range l.events {
		if e.WorkloadID == id {
			out = append(out, e)
		}
	}
	return out
}

func (l *EventLog) Latest(id clawid.WorkloadId) (WorkloadEvent, bool) {
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].WorkloadID == id {
			return l.events[i], true
		}
	}
	return WorkloadEvent{}, false
}

func (l *EventLog) HasEvent(id clawid.WorkloadId, kind WorkloadEventKind) bool {
	for _, e := range l.events {
		if e.WorkloadID == id && e.Kind == kind {
			return true
		}
	}
	return false
}

func (l *EventLog) Len() int { return len(l.events) }
