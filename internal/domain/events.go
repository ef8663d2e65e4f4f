package domain

import "time"

// EventType names a controller event.
type EventType string

const (
	// EventPhaseTransition is emitted on every release phase change.
	EventPhaseTransition EventType = "release.phase"
	// EventRollbackRequested signals the external release manager to
	// revert to the previous known-good version. The core only triggers
	// rollback; it never performs it.
	EventRollbackRequested EventType = "release.rollback-requested"
	// EventCapacityDecision is emitted on every capacity tick.
	EventCapacityDecision EventType = "capacity.decision"
	// EventSamplingFailed is emitted when a tick's metric sample fails.
	EventSamplingFailed EventType = "capacity.sampling-failed"
	// EventScaleCallFailed is emitted when the fleet scaler rejects a
	// desired-count change.
	EventScaleCallFailed EventType = "capacity.scale-call-failed"
)

// Event is a structured controller decision or transition, consumed by the
// external observability collaborator.
type Event struct {
	Type      EventType         `json:"type"`
	At        time.Time         `json:"at"`
	ReleaseID ReleaseID         `json:"releaseId,omitempty"`
	MemberID  MemberID          `json:"memberId,omitempty"`
	Phase     ReleasePhase      `json:"phase,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Decision  *CapacityDecision `json:"decision,omitempty"`
}

// EventSink receives events fire-and-forget. Implementations must not block
// the controllers; the core does no backpressure handling.
type EventSink interface {
	Emit(event Event)
}

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

func (s MultiSink) Emit(event Event) {
	for _, sink := range s {
		sink.Emit(event)
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(Event) {}
