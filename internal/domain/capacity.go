package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ceilEpsilon absorbs float noise so that an exact quotient (e.g.
// 2 × 0.825 / 0.55 = 3) does not round up to 4.
const ceilEpsilon = 1e-9

// Normalize maps a raw metric value to a utilization ratio.
type Normalize func(raw float64) float64

// RatioNormalize passes a value already expressed as a ratio through.
func RatioNormalize(raw float64) float64 { return raw }

// PercentNormalize maps a 0-100 percentage to a ratio.
func PercentNormalize(raw float64) float64 { return raw / 100 }

// CapacityNormalize maps a raw value to the fraction of a fixed per-fleet
// capacity (e.g. requests per second against a rated throughput).
func CapacityNormalize(capacity float64) Normalize {
	return func(raw float64) float64 {
		if capacity <= 0 {
			return 0
		}
		return raw / capacity
	}
}

// SignalPolicy configures one load signal.
type SignalPolicy struct {
	// TargetRatio is the utilization the controller steers toward.
	TargetRatio float64
	// Weight multiplies the observed ratio. Zero means 1.
	Weight float64
	// Normalize maps the raw sample to a ratio. Nil means the sample is
	// already a ratio.
	Normalize Normalize
}

func (s SignalPolicy) weight() float64 {
	if s.Weight == 0 {
		return 1
	}
	return s.Weight
}

func (s SignalPolicy) normalize(raw float64) float64 {
	if s.Normalize == nil {
		return raw
	}
	return s.Normalize(raw)
}

// CapacityPolicy configures the capacity evaluator.
type CapacityPolicy struct {
	Signals  map[string]SignalPolicy
	MinCount int
	MaxCount int
	// ScaleOutCooldown is short so the fleet reacts quickly to load.
	ScaleOutCooldown time.Duration
	// ScaleInCooldown is long to avoid flapping after transient dips.
	ScaleInCooldown time.Duration
}

// Validate checks the policy invariants.
func (p CapacityPolicy) Validate() error {
	if len(p.Signals) == 0 {
		return fmt.Errorf("%w: at least one signal is required", ErrInvalidArgument)
	}
	for name, sig := range p.Signals {
		if sig.TargetRatio <= 0 {
			return fmt.Errorf("%w: signal %q needs a positive target ratio", ErrInvalidArgument, name)
		}
	}
	if p.MinCount < 1 {
		return fmt.Errorf("%w: min count must be at least 1", ErrInvalidArgument)
	}
	if p.MaxCount < p.MinCount {
		return fmt.Errorf("%w: max count %d below min count %d", ErrInvalidArgument, p.MaxCount, p.MinCount)
	}
	return nil
}

// SignalNames returns the configured signal names, sorted for stable
// sampling requests.
func (p CapacityPolicy) SignalNames() []string {
	names := make([]string, 0, len(p.Signals))
	for name := range p.Signals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clamp bounds a count to [MinCount, MaxCount].
func (p CapacityPolicy) Clamp(n int) int {
	if n < p.MinCount {
		return p.MinCount
	}
	if n > p.MaxCount {
		return p.MaxCount
	}
	return n
}

// CapacityDecision is the output of one control-loop tick. The latest
// decision is the only state the evaluator carries between ticks.
type CapacityDecision struct {
	ObservedAt time.Time `json:"observedAt"`
	// Signals holds the normalized, weighted utilization ratio observed
	// per signal.
	Signals       map[string]float64 `json:"signals"`
	DesiredCount  int                `json:"desiredCount"`
	CooldownUntil time.Time          `json:"cooldownUntil"`
	Reason        string             `json:"reason"`
}

// Evaluate computes the decision for one tick. It is a pure function of the
// previous decision, the clock, and the samples; the caller owns the side
// effect of applying a changed desired count.
//
// Per signal, desired = ceil(current × observed / target), clamped to the
// bounds. The combined desired count is the maximum across signals: any
// single saturated dimension can force scale-out even while others idle.
// While the cooldown window is open the previous desired count is retained
// regardless of the signals.
func (p CapacityPolicy) Evaluate(prev CapacityDecision, now time.Time, samples map[string]float64) CapacityDecision {
	current := p.Clamp(prev.DesiredCount)

	next := CapacityDecision{
		ObservedAt:    now,
		Signals:       make(map[string]float64, len(p.Signals)),
		DesiredCount:  current,
		CooldownUntil: prev.CooldownUntil,
		Reason:        "steady",
	}

	desired := 0
	observed := false
	for name, sig := range p.Signals {
		raw, ok := samples[name]
		if !ok {
			continue
		}
		ratio := sig.normalize(raw) * sig.weight()
		next.Signals[name] = ratio

		perSignal := int(math.Ceil(float64(current)*ratio/sig.TargetRatio - ceilEpsilon))
		perSignal = p.Clamp(perSignal)
		if perSignal > desired {
			desired = perSignal
		}
		observed = true
	}
	if !observed {
		// No usable signal this tick; fail static.
		next.Reason = "no signals observed"
		return next
	}

	if now.Before(prev.CooldownUntil) {
		next.Reason = "cooldown"
		return next
	}

	switch {
	case desired > current:
		next.DesiredCount = desired
		next.CooldownUntil = now.Add(p.ScaleOutCooldown)
		next.Reason = fmt.Sprintf("scale-out %d to %d", current, desired)
	case desired < current:
		next.DesiredCount = desired
		next.CooldownUntil = now.Add(p.ScaleInCooldown)
		next.Reason = fmt.Sprintf("scale-in %d to %d", current, desired)
	}
	return next
}
