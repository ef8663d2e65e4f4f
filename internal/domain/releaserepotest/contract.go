// Package releaserepotest provides contract tests for [domain.ReleaseRepository]
// implementations.
package releaserepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// Factory creates a fresh [domain.ReleaseRepository] for each test invocation.
type Factory func(t *testing.T) domain.ReleaseRepository

func release(id domain.ReleaseID, member domain.MemberID, phase domain.ReleasePhase) domain.Release {
	return domain.Release{
		ID:            id,
		MemberID:      member,
		TargetVersion: "v2",
		Phase:         phase,
		StartedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Run exercises the [domain.ReleaseRepository] contract, including the
// single-active-release-per-member invariant.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		rel := release("r1", "m1", domain.PhasePending)

		if err := repo.Create(ctx, rel); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.MemberID != "m1" || got.TargetVersion != "v2" || got.Phase != domain.PhasePending {
			t.Errorf("Get = %+v", got)
		}
		if !got.StartedAt.Equal(rel.StartedAt) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, rel.StartedAt)
		}
		if !got.EndedAt.IsZero() {
			t.Errorf("EndedAt = %v, want zero", got.EndedAt)
		}
	})

	t.Run("CreateDuplicateID", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, release("r1", "m1", domain.PhasePending)); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		err := repo.Create(ctx, release("r1", "m2", domain.PhasePending))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("SecondActiveReleaseConflicts", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, release("r1", "m1", domain.PhaseStopping)); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		err := repo.Create(ctx, release("r2", "m1", domain.PhasePending))
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("second Create: got %v, want ErrConflict", err)
		}
	})

	t.Run("TerminalReleaseFreesMember", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		done := release("r1", "m1", domain.PhaseSucceeded)
		done.EndedAt = done.StartedAt.Add(time.Minute)
		if err := repo.Create(ctx, done); err != nil {
			t.Fatalf("Create terminal: %v", err)
		}
		if err := repo.Create(ctx, release("r2", "m1", domain.PhasePending)); err != nil {
			t.Fatalf("Create after terminal: %v", err)
		}
	})

	t.Run("UpdatePersistsTerminalState", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		rel := release("r1", "m1", domain.PhaseValidating)
		if err := repo.Create(ctx, rel); err != nil {
			t.Fatalf("Create: %v", err)
		}

		rel.Phase = domain.PhaseRolledBack
		rel.Attempts = 5
		rel.Reason = "validation exhausted"
		rel.EndedAt = rel.StartedAt.Add(2 * time.Minute)
		if err := repo.Update(ctx, rel); err != nil {
			t.Fatalf("Update: %v", err)
		}

		got, err := repo.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Phase != domain.PhaseRolledBack || got.Attempts != 5 || got.Reason != "validation exhausted" {
			t.Errorf("Get = %+v", got)
		}
		if !got.EndedAt.Equal(rel.EndedAt) {
			t.Errorf("EndedAt = %v, want %v", got.EndedAt, rel.EndedAt)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		repo := factory(t)
		err := repo.Update(context.Background(), release("ghost", "m1", domain.PhasePending))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Update: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ActiveForMember", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		done := release("r1", "m1", domain.PhaseFailed)
		done.EndedAt = done.StartedAt.Add(time.Minute)
		if err := repo.Create(ctx, done); err != nil {
			t.Fatalf("Create terminal: %v", err)
		}

		_, err := repo.ActiveForMember(ctx, "m1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("ActiveForMember with only terminal: got %v, want ErrNotFound", err)
		}

		if err := repo.Create(ctx, release("r2", "m1", domain.PhaseInstalling)); err != nil {
			t.Fatalf("Create active: %v", err)
		}
		got, err := repo.ActiveForMember(ctx, "m1")
		if err != nil {
			t.Fatalf("ActiveForMember: %v", err)
		}
		if got.ID != "r2" {
			t.Errorf("ActiveForMember = %s, want r2", got.ID)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, release("r1", "m1", domain.PhasePending)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := repo.Create(ctx, release("r2", "m2", domain.PhasePending)); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List: got %d releases, want 2", len(got))
		}
	})
}
