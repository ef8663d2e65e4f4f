package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// Capacity loop defaults.
const (
	DefaultTickPeriod    = 30 * time.Second
	DefaultSampleTimeout = 10 * time.Second
)

// CapacityController runs the periodic capacity control loop: sample the
// load signals, evaluate the policy against the previous decision, record
// the decision, and apply a changed desired count through the fleet scaler.
type CapacityController struct {
	Policy    domain.CapacityPolicy
	Metrics   domain.MetricSource
	Scaler    domain.FleetScaler
	Decisions domain.DecisionRepository
	Events    domain.EventSink
	Log       logrus.FieldLogger

	// TickPeriod is the loop interval. Zero means [DefaultTickPeriod].
	TickPeriod time.Duration
	// SampleTimeout bounds one metric sample. Zero means
	// [DefaultSampleTimeout].
	SampleTimeout time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	mu     sync.Mutex
	last   domain.CapacityDecision
	loaded bool
}

// Run drives Tick on the configured period until the context is cancelled.
// Tick failures are logged and the loop continues; the next tick starts
// from the last recorded decision.
func (c *CapacityController) Run(ctx context.Context) error {
	if err := c.Policy.Validate(); err != nil {
		return err
	}

	ticker := time.NewTicker(c.tickPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.Tick(ctx); err != nil {
				c.log().WithError(err).Warn("capacity tick failed")
			}
		}
	}
}

// Tick executes one control-loop pass and returns the decision it recorded.
// On a sampling failure the previous decision stands and is returned with
// [domain.ErrSampling]; on a scaler failure the decision is still recorded
// and returned with [domain.ErrScaleCall].
func (c *CapacityController) Tick(ctx context.Context) (domain.CapacityDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		// First tick after start: resume from the persisted decision so a
		// restart does not reset the cooldown window.
		last, err := c.Decisions.Latest(ctx)
		switch {
		case err == nil:
			c.last = last
		case errors.Is(err, domain.ErrNotFound):
		default:
			return domain.CapacityDecision{}, fmt.Errorf("load latest decision: %w", err)
		}
		c.loaded = true
	}

	now := c.now()

	sampleCtx, cancel := context.WithTimeout(ctx, c.sampleTimeout())
	samples, err := c.Metrics.Sample(sampleCtx, c.Policy.SignalNames())
	cancel()
	if err != nil {
		c.emit(domain.Event{Type: domain.EventSamplingFailed, At: now, Reason: err.Error()})
		return c.last, fmt.Errorf("%w: %v", domain.ErrSampling, err)
	}

	decision := c.Policy.Evaluate(c.last, now, samples)
	if err := c.Decisions.Append(ctx, decision); err != nil {
		return c.last, fmt.Errorf("append decision: %w", err)
	}

	changed := decision.DesiredCount != c.last.DesiredCount
	c.last = decision

	var scaleErr error
	if changed {
		if err := c.Scaler.SetDesiredCount(ctx, decision.DesiredCount); err != nil {
			c.emit(domain.Event{Type: domain.EventScaleCallFailed, At: now, Reason: err.Error(), Decision: &decision})
			scaleErr = fmt.Errorf("%w: %v", domain.ErrScaleCall, err)
		}
	}

	c.emit(domain.Event{Type: domain.EventCapacityDecision, At: now, Reason: decision.Reason, Decision: &decision})
	return decision, scaleErr
}

func (c *CapacityController) emit(event domain.Event) {
	if c.Events != nil {
		c.Events.Emit(event)
	}
}

func (c *CapacityController) log() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log
	}
	return logrus.StandardLogger()
}

func (c *CapacityController) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CapacityController) tickPeriod() time.Duration {
	if c.TickPeriod > 0 {
		return c.TickPeriod
	}
	return DefaultTickPeriod
}

func (c *CapacityController) sampleTimeout() time.Duration {
	if c.SampleTimeout > 0 {
		return c.SampleTimeout
	}
	return DefaultSampleTimeout
}
