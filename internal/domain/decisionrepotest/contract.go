// Package decisionrepotest provides contract tests for
// [domain.DecisionRepository] implementations.
package decisionrepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// Factory creates a fresh [domain.DecisionRepository] for each test invocation.
type Factory func(t *testing.T) domain.DecisionRepository

func decision(at time.Time, count int, reason string) domain.CapacityDecision {
	return domain.CapacityDecision{
		ObservedAt:    at,
		Signals:       map[string]float64{"cpu": 0.6},
		DesiredCount:  count,
		CooldownUntil: at.Add(time.Minute),
		Reason:        reason,
	}
}

// Run exercises the [domain.DecisionRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("LatestEmpty", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Latest(context.Background())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Latest: got %v, want ErrNotFound", err)
		}
	})

	t.Run("AppendAndLatest", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		if err := repo.Append(ctx, decision(base, 2, "steady")); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := repo.Append(ctx, decision(base.Add(30*time.Second), 3, "scale-out 2 to 3")); err != nil {
			t.Fatalf("Append: %v", err)
		}

		got, err := repo.Latest(ctx)
		if err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if got.DesiredCount != 3 || got.Reason != "scale-out 2 to 3" {
			t.Errorf("Latest = %+v", got)
		}
		if !got.ObservedAt.Equal(base.Add(30 * time.Second)) {
			t.Errorf("ObservedAt = %v", got.ObservedAt)
		}
		if !got.CooldownUntil.Equal(base.Add(30*time.Second + time.Minute)) {
			t.Errorf("CooldownUntil = %v", got.CooldownUntil)
		}
		if got.Signals["cpu"] != 0.6 {
			t.Errorf("Signals[cpu] = %v, want 0.6", got.Signals["cpu"])
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for i := 0; i < 5; i++ {
			if err := repo.Append(ctx, decision(base.Add(time.Duration(i)*time.Minute), 2+i, "steady")); err != nil {
				t.Fatalf("Append %d: %v", i, err)
			}
		}

		got, err := repo.List(ctx, 3)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("List: got %d decisions, want 3", len(got))
		}
		if got[0].DesiredCount != 6 || got[2].DesiredCount != 4 {
			t.Errorf("List order: got counts %d,%d,%d, want 6,5,4",
				got[0].DesiredCount, got[1].DesiredCount, got[2].DesiredCount)
		}
	})
}
