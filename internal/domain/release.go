package domain

import "time"

// ReleaseID identifies one deployment attempt.
type ReleaseID string

// ReleasePhase indicates where in the deployment lifecycle a release is.
type ReleasePhase string

const (
	PhasePending    ReleasePhase = "pending"
	PhaseStopping   ReleasePhase = "stopping"
	PhaseInstalling ReleasePhase = "installing"
	PhaseStarting   ReleasePhase = "starting"
	PhaseValidating ReleasePhase = "validating"
	PhaseSucceeded  ReleasePhase = "succeeded"
	PhaseRolledBack ReleasePhase = "rolledback"
	PhaseFailed     ReleasePhase = "failed"
)

var phaseRank = map[ReleasePhase]int{
	PhasePending:    0,
	PhaseStopping:   1,
	PhaseInstalling: 2,
	PhaseStarting:   3,
	PhaseValidating: 4,
	PhaseSucceeded:  5,
	PhaseRolledBack: 5,
	PhaseFailed:     5,
}

// Terminal reports whether the phase is final. Terminal releases are
// immutable.
func (p ReleasePhase) Terminal() bool {
	switch p {
	case PhaseSucceeded, PhaseRolledBack, PhaseFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from p to next is a legal lifecycle
// step. Phases only move forward, one step at a time; Failed is reachable
// from any non-terminal phase, and Succeeded and RolledBack only from
// Validating.
func (p ReleasePhase) CanTransition(next ReleasePhase) bool {
	if p.Terminal() {
		return false
	}
	switch next {
	case PhaseFailed:
		return true
	case PhaseSucceeded, PhaseRolledBack:
		return p == PhaseValidating
	default:
		return phaseRank[next] == phaseRank[p]+1
	}
}

// Release is one deployment attempt of a target version onto a fleet member.
// The release controller is the sole writer of its phase.
type Release struct {
	ID            ReleaseID
	MemberID      MemberID
	TargetVersion string
	Phase         ReleasePhase
	// Attempts counts health validation probes performed.
	Attempts int
	// Reason explains a terminal phase (failure classification, rollback
	// cause, or "cancelled").
	Reason string
	// CancelRequested asks the controller to abort at the next phase
	// boundary. In-flight steps are never interrupted.
	CancelRequested bool
	StartedAt       time.Time
	EndedAt         time.Time
}
