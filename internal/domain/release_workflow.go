package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Lifecycle defaults.
const (
	DefaultMaxStartWait          = 60 * time.Second
	DefaultLivenessInterval      = 1 * time.Second
	DefaultMaxValidationAttempts = 5
	DefaultRetryDelay            = 3 * time.Second
)

// ReleaseWorkflow drives one release through the ordered lifecycle:
// Stopping, Installing, Starting (liveness-gated), Validating
// (health-gated), then Succeeded, RolledBack, or Failed. Each phase runs
// as a durable activity; the body is deterministic and replayable.
//
// Validation is retried because readiness lags transiently; stop, install,
// and start failures are not, because they indicate a deterministic defect.
type ReleaseWorkflow struct {
	Releases ReleaseRepository
	Members  MemberRepository
	Drivers  DriverProvider
	Probers  ProberProvider
	Events   EventSink
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	// MaxStartWait bounds the liveness wait after Start. Zero means
	// [DefaultMaxStartWait].
	MaxStartWait time.Duration
	// LivenessInterval is the delay between liveness checks. Zero means
	// [DefaultLivenessInterval].
	LivenessInterval time.Duration
	// MaxValidationAttempts bounds health probes. Zero means
	// [DefaultMaxValidationAttempts].
	MaxValidationAttempts int
	// RetryDelay is the fixed delay between validation attempts. Zero
	// means [DefaultRetryDelay].
	RetryDelay time.Duration
}

// Name is the stable workflow registration name.
func (w *ReleaseWorkflow) Name() string { return "release-lifecycle" }

// ReleaseOutcome is the workflow result, serializable across durable
// engine boundaries.
type ReleaseOutcome struct {
	ReleaseID ReleaseID
	MemberID  MemberID
	Phase     ReleasePhase
	Attempts  int
	Reason    string
}

// TransitionInput asks the transition activity to advance a release to the
// given phase. Attempts and Reason are recorded on terminal phases.
type TransitionInput struct {
	ReleaseID ReleaseID
	Phase     ReleasePhase
	Reason    string
	Attempts  int
}

// TransitionOutput reports the member the release targets and whether the
// release was aborted by an operator cancellation instead.
type TransitionOutput struct {
	MemberID  MemberID
	Cancelled bool
}

// StepInput identifies the release a driver-facing activity operates on.
type StepInput struct {
	ReleaseID ReleaseID
}

// LivenessOutput reports the bounded liveness wait. Diagnostics is only
// set when the process never became live.
type LivenessOutput struct {
	Live        bool
	Diagnostics string
}

// ValidateOutput reports the bounded health validation loop.
type ValidateOutput struct {
	Healthy  bool
	Attempts int
	Reason   string
}

// Run executes the lifecycle for one release. The returned error carries
// the failure classification ([DriverError], [TimeoutError],
// [ValidationExhaustedError]); the terminal release record is persisted
// regardless.
func (w *ReleaseWorkflow) Run(runner DurableRunner, id ReleaseID) (ReleaseOutcome, error) {
	steps := []struct {
		phase ReleasePhase
		op    string
		act   Activity[StepInput, struct{}]
	}{
		{PhaseStopping, "stop", w.StopMember()},
		{PhaseInstalling, "install", w.InstallVersion()},
		{PhaseStarting, "start", w.StartMember()},
	}

	var member MemberID
	for _, step := range steps {
		tr, err := RunActivity(runner, w.Transition(), TransitionInput{ReleaseID: id, Phase: step.phase})
		if err != nil {
			return ReleaseOutcome{}, err
		}
		member = tr.MemberID
		if tr.Cancelled {
			return w.cancelledOutcome(id, member), nil
		}

		if _, err := RunActivity(runner, step.act, StepInput{ReleaseID: id}); err != nil {
			derr := &DriverError{Op: step.op, Member: member, Err: err}
			return w.fail(runner, id, member, derr.Error(), derr)
		}
	}

	live, err := RunActivity(runner, w.AwaitLiveness(), StepInput{ReleaseID: id})
	if err != nil {
		return ReleaseOutcome{}, err
	}
	if !live.Live {
		terr := &TimeoutError{Member: member, Waited: w.maxStartWait(), Diagnostics: live.Diagnostics}
		reason := terr.Error()
		if live.Diagnostics != "" {
			reason = fmt.Sprintf("%s; diagnostics: %s", reason, live.Diagnostics)
		}
		return w.fail(runner, id, member, reason, terr)
	}

	tr, err := RunActivity(runner, w.Transition(), TransitionInput{ReleaseID: id, Phase: PhaseValidating})
	if err != nil {
		return ReleaseOutcome{}, err
	}
	if tr.Cancelled {
		return w.cancelledOutcome(id, member), nil
	}

	v, err := RunActivity(runner, w.Validate(), StepInput{ReleaseID: id})
	if err != nil {
		return ReleaseOutcome{}, err
	}
	if v.Healthy {
		in := TransitionInput{ReleaseID: id, Phase: PhaseSucceeded, Attempts: v.Attempts}
		if _, err := RunActivity(runner, w.Transition(), in); err != nil {
			return ReleaseOutcome{}, err
		}
		return ReleaseOutcome{ReleaseID: id, MemberID: member, Phase: PhaseSucceeded, Attempts: v.Attempts}, nil
	}

	verr := &ValidationExhaustedError{Member: member, Attempts: v.Attempts, Reason: v.Reason}
	in := TransitionInput{ReleaseID: id, Phase: PhaseRolledBack, Reason: verr.Error(), Attempts: v.Attempts}
	if _, err := RunActivity(runner, w.Transition(), in); err != nil {
		return ReleaseOutcome{}, err
	}
	out := ReleaseOutcome{ReleaseID: id, MemberID: member, Phase: PhaseRolledBack, Attempts: v.Attempts, Reason: verr.Error()}
	return out, verr
}

func (w *ReleaseWorkflow) fail(runner DurableRunner, id ReleaseID, member MemberID, reason string, cause error) (ReleaseOutcome, error) {
	in := TransitionInput{ReleaseID: id, Phase: PhaseFailed, Reason: reason}
	if _, err := RunActivity(runner, w.Transition(), in); err != nil {
		return ReleaseOutcome{}, err
	}
	return ReleaseOutcome{ReleaseID: id, MemberID: member, Phase: PhaseFailed, Reason: reason}, cause
}

func (w *ReleaseWorkflow) cancelledOutcome(id ReleaseID, member MemberID) ReleaseOutcome {
	return ReleaseOutcome{ReleaseID: id, MemberID: member, Phase: PhaseFailed, Reason: CancelledReason}
}

// CancelledReason is the terminal reason recorded for operator-cancelled
// releases.
const CancelledReason = "cancelled"

// Transition advances the release phase, persists it, and emits the phase
// event. It honors operator cancellation: at any non-terminal boundary a
// cancel request wins and the release ends Failed/cancelled.
func (w *ReleaseWorkflow) Transition() Activity[TransitionInput, TransitionOutput] {
	return NewActivity("transition-phase", w.transition)
}

// StopMember halts the running version through the driver.
func (w *ReleaseWorkflow) StopMember() Activity[StepInput, struct{}] {
	return NewActivity("stop-member", w.stopMember)
}

// InstallVersion materializes the target version through the driver.
func (w *ReleaseWorkflow) InstallVersion() Activity[StepInput, struct{}] {
	return NewActivity("install-version", w.installVersion)
}

// StartMember launches the installed version through the driver.
func (w *ReleaseWorkflow) StartMember() Activity[StepInput, struct{}] {
	return NewActivity("start-member", w.startMember)
}

// AwaitLiveness polls process liveness on a fixed interval up to
// MaxStartWait, attaching a diagnostic snapshot when the wait is exhausted.
func (w *ReleaseWorkflow) AwaitLiveness() Activity[StepInput, LivenessOutput] {
	return NewActivity("await-liveness", w.awaitLiveness)
}

// Validate polls the health prober up to MaxValidationAttempts with a fixed
// delay. A transport error, wrong status code, or failed body predicate
// counts as a failed attempt, not a fatal error.
func (w *ReleaseWorkflow) Validate() Activity[StepInput, ValidateOutput] {
	return NewActivity("validate-health", w.validate)
}

func (w *ReleaseWorkflow) transition(ctx context.Context, in TransitionInput) (TransitionOutput, error) {
	rel, err := w.Releases.Get(ctx, in.ReleaseID)
	if err != nil {
		return TransitionOutput{}, err
	}
	out := TransitionOutput{MemberID: rel.MemberID}

	if rel.Phase == in.Phase {
		// At-least-once replay of an applied transition.
		return out, nil
	}
	if rel.Phase.Terminal() {
		out.Cancelled = rel.Reason == CancelledReason
		return out, nil
	}

	now := w.now()
	if rel.CancelRequested {
		rel.Phase = PhaseFailed
		rel.Reason = CancelledReason
		rel.EndedAt = now
		if err := w.Releases.Update(ctx, rel); err != nil {
			return TransitionOutput{}, err
		}
		w.emitPhase(rel, now)
		out.Cancelled = true
		return out, nil
	}

	if !rel.Phase.CanTransition(in.Phase) {
		return TransitionOutput{}, fmt.Errorf("%w: illegal transition %s to %s", ErrInvalidArgument, rel.Phase, in.Phase)
	}
	rel.Phase = in.Phase
	rel.Reason = in.Reason
	if in.Attempts > 0 {
		rel.Attempts = in.Attempts
	}
	if in.Phase.Terminal() {
		rel.EndedAt = now
	}
	if err := w.Releases.Update(ctx, rel); err != nil {
		return TransitionOutput{}, err
	}
	w.emitPhase(rel, now)
	if in.Phase == PhaseRolledBack {
		w.emit(Event{
			Type:      EventRollbackRequested,
			At:        now,
			ReleaseID: rel.ID,
			MemberID:  rel.MemberID,
			Phase:     rel.Phase,
			Reason:    rel.Reason,
		})
	}
	return out, nil
}

func (w *ReleaseWorkflow) stopMember(ctx context.Context, in StepInput) (struct{}, error) {
	driver, _, err := w.driverFor(ctx, in.ReleaseID)
	if err != nil {
		return struct{}{}, err
	}
	return struct{}{}, driver.Stop(ctx)
}

func (w *ReleaseWorkflow) installVersion(ctx context.Context, in StepInput) (struct{}, error) {
	driver, rel, err := w.driverFor(ctx, in.ReleaseID)
	if err != nil {
		return struct{}{}, err
	}
	return struct{}{}, driver.Install(ctx, rel.TargetVersion)
}

func (w *ReleaseWorkflow) startMember(ctx context.Context, in StepInput) (struct{}, error) {
	driver, _, err := w.driverFor(ctx, in.ReleaseID)
	if err != nil {
		return struct{}{}, err
	}
	return struct{}{}, driver.Start(ctx)
}

func (w *ReleaseWorkflow) awaitLiveness(ctx context.Context, in StepInput) (LivenessOutput, error) {
	driver, _, err := w.driverFor(ctx, in.ReleaseID)
	if err != nil {
		return LivenessOutput{}, err
	}

	err = Poll(ctx, PollConfig{Interval: w.livenessInterval(), Timeout: w.maxStartWait()}, func(ctx context.Context) (bool, error) {
		live, err := driver.IsLive(ctx)
		if err != nil {
			// Not live yet; keep polling until the bound.
			return false, nil
		}
		return live, nil
	})
	switch {
	case err == nil:
		return LivenessOutput{Live: true}, nil
	case errors.Is(err, ErrNotReady):
		return LivenessOutput{Live: false, Diagnostics: driver.Diagnostics(ctx)}, nil
	default:
		return LivenessOutput{}, err
	}
}

func (w *ReleaseWorkflow) validate(ctx context.Context, in StepInput) (ValidateOutput, error) {
	_, member, err := w.releaseMember(ctx, in.ReleaseID)
	if err != nil {
		return ValidateOutput{}, err
	}
	prober, err := w.Probers.ProberFor(member)
	if err != nil {
		return ValidateOutput{}, err
	}

	attempts := 0
	lastReason := "no probe performed"
	err = Poll(ctx, PollConfig{Interval: w.retryDelay(), MaxAttempts: w.maxValidationAttempts()}, func(ctx context.Context) (bool, error) {
		attempts++
		res, perr := prober.Probe(ctx)
		if perr != nil {
			lastReason = fmt.Sprintf("probe transport error: %v", perr)
			return false, nil
		}
		if !res.Healthy() {
			lastReason = fmt.Sprintf("probe unhealthy: http %d", res.StatusCode)
			return false, nil
		}
		return true, nil
	})
	switch {
	case err == nil:
		return ValidateOutput{Healthy: true, Attempts: attempts}, nil
	case errors.Is(err, ErrNotReady):
		return ValidateOutput{Healthy: false, Attempts: attempts, Reason: lastReason}, nil
	default:
		return ValidateOutput{}, err
	}
}

func (w *ReleaseWorkflow) releaseMember(ctx context.Context, id ReleaseID) (Release, MemberInfo, error) {
	rel, err := w.Releases.Get(ctx, id)
	if err != nil {
		return Release{}, MemberInfo{}, err
	}
	member, err := w.Members.Get(ctx, rel.MemberID)
	if err != nil {
		return Release{}, MemberInfo{}, fmt.Errorf("member %q: %w", rel.MemberID, err)
	}
	return rel, member, nil
}

func (w *ReleaseWorkflow) driverFor(ctx context.Context, id ReleaseID) (MemberDriver, Release, error) {
	rel, member, err := w.releaseMember(ctx, id)
	if err != nil {
		return nil, Release{}, err
	}
	driver, err := w.Drivers.DriverFor(member)
	if err != nil {
		return nil, Release{}, err
	}
	return driver, rel, nil
}

func (w *ReleaseWorkflow) emitPhase(rel Release, at time.Time) {
	w.emit(Event{
		Type:      EventPhaseTransition,
		At:        at,
		ReleaseID: rel.ID,
		MemberID:  rel.MemberID,
		Phase:     rel.Phase,
		Reason:    rel.Reason,
	})
}

func (w *ReleaseWorkflow) emit(event Event) {
	if w.Events != nil {
		w.Events.Emit(event)
	}
}

func (w *ReleaseWorkflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *ReleaseWorkflow) maxStartWait() time.Duration {
	if w.MaxStartWait > 0 {
		return w.MaxStartWait
	}
	return DefaultMaxStartWait
}

func (w *ReleaseWorkflow) livenessInterval() time.Duration {
	if w.LivenessInterval > 0 {
		return w.LivenessInterval
	}
	return DefaultLivenessInterval
}

func (w *ReleaseWorkflow) maxValidationAttempts() int {
	if w.MaxValidationAttempts > 0 {
		return w.MaxValidationAttempts
	}
	return DefaultMaxValidationAttempts
}

func (w *ReleaseWorkflow) retryDelay() time.Duration {
	if w.RetryDelay > 0 {
		return w.RetryDelay
	}
	return DefaultRetryDelay
}
