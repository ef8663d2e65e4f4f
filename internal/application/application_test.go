package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/craxelfn/fleetpilot/internal/application"
	"github.com/craxelfn/fleetpilot/internal/domain"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/memfleet"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/sqlite"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/syncworkflow"
)

type testHarness struct {
	members  *application.MemberService
	releases *application.ReleaseService
	rollouts *application.RolloutService
	repo     *sqlite.ReleaseRepo
	fleet    *memfleet.Fleet
}

func setup(t *testing.T, fleet *memfleet.Fleet) testHarness {
	t.Helper()
	db := sqlite.OpenTestDB(t)

	memberRepo := &sqlite.MemberRepo{DB: db}
	releaseRepo := &sqlite.ReleaseRepo{DB: db}

	wf := &domain.ReleaseWorkflow{
		Releases:         releaseRepo,
		Members:          memberRepo,
		Drivers:          fleet,
		Probers:          fleet,
		Events:           domain.NopSink{},
		MaxStartWait:     time.Second,
		LivenessInterval: time.Millisecond,
		RetryDelay:       time.Millisecond,
	}
	runner, err := (&syncworkflow.Engine{}).ReleaseRunner(wf)
	if err != nil {
		t.Fatalf("ReleaseRunner: %v", err)
	}

	releaseSvc := &application.ReleaseService{
		Releases: releaseRepo,
		Members:  memberRepo,
		Runner:   runner,
	}

	return testHarness{
		members:  &application.MemberService{Members: memberRepo, Releases: releaseRepo},
		releases: releaseSvc,
		rollouts: &application.RolloutService{
			Members:    memberRepo,
			Releases:   releaseSvc,
			Strategies: domain.DefaultStrategyFactory{},
		},
		repo:  releaseRepo,
		fleet: fleet,
	}
}

func registerMembers(t *testing.T, h testHarness, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := h.members.Register(context.Background(), domain.MemberInfo{
			ID:   domain.MemberID(id),
			Name: "web-" + id,
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDeploy_Succeeds(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	ctx := context.Background()
	registerMembers(t, h, "m1")

	rel, err := h.releases.Deploy(ctx, application.DeployInput{MemberID: "m1", TargetVersion: "v2"})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if rel.Phase != domain.PhaseSucceeded {
		t.Errorf("Phase = %q, want %q", rel.Phase, domain.PhaseSucceeded)
	}
	if rel.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", rel.Attempts)
	}
	if h.fleet.Version("m1") != "v2" {
		t.Errorf("installed version = %q, want v2", h.fleet.Version("m1"))
	}
}

func TestDeploy_UnknownMember(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	_, err := h.releases.Deploy(context.Background(), application.DeployInput{MemberID: "ghost", TargetVersion: "v2"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Deploy: got %v, want ErrNotFound", err)
	}
}

func TestDeploy_MissingVersion(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	_, err := h.releases.Deploy(context.Background(), application.DeployInput{MemberID: "m1"})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Deploy: got %v, want ErrInvalidArgument", err)
	}
}

func TestDeploy_ConflictWithActiveRelease(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	ctx := context.Background()
	registerMembers(t, h, "m1")

	active := domain.Release{
		ID: "stuck", MemberID: "m1", TargetVersion: "v1",
		Phase: domain.PhaseInstalling, StartedAt: time.Now(),
	}
	if err := h.repo.Create(ctx, active); err != nil {
		t.Fatal(err)
	}

	_, err := h.releases.Deploy(ctx, application.DeployInput{MemberID: "m1", TargetVersion: "v2"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Deploy: got %v, want ErrConflict", err)
	}
}

func TestDeploy_InstallFailure(t *testing.T) {
	h := setup(t, &memfleet.Fleet{FailInstall: "v2"})
	ctx := context.Background()
	registerMembers(t, h, "m1")

	rel, err := h.releases.Deploy(ctx, application.DeployInput{MemberID: "m1", TargetVersion: "v2"})

	var derr *domain.DriverError
	if !errors.As(err, &derr) {
		t.Fatalf("Deploy: got %v, want DriverError", err)
	}
	if rel.Phase != domain.PhaseFailed {
		t.Errorf("Phase = %q, want %q", rel.Phase, domain.PhaseFailed)
	}
}

func TestDeploy_UnhealthyVersionRollsBack(t *testing.T) {
	h := setup(t, &memfleet.Fleet{Unhealthy: "v2"})
	ctx := context.Background()
	registerMembers(t, h, "m1")

	rel, err := h.releases.Deploy(ctx, application.DeployInput{MemberID: "m1", TargetVersion: "v2"})

	var verr *domain.ValidationExhaustedError
	if !errors.As(err, &verr) {
		t.Fatalf("Deploy: got %v, want ValidationExhaustedError", err)
	}
	if rel.Phase != domain.PhaseRolledBack {
		t.Errorf("Phase = %q, want %q", rel.Phase, domain.PhaseRolledBack)
	}
	if rel.Attempts != domain.DefaultMaxValidationAttempts {
		t.Errorf("Attempts = %d, want %d", rel.Attempts, domain.DefaultMaxValidationAttempts)
	}
}

func TestCancel(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	ctx := context.Background()
	registerMembers(t, h, "m1")

	active := domain.Release{
		ID: "r1", MemberID: "m1", TargetVersion: "v2",
		Phase: domain.PhaseStopping, StartedAt: time.Now(),
	}
	if err := h.repo.Create(ctx, active); err != nil {
		t.Fatal(err)
	}

	rel, err := h.releases.Cancel(ctx, "r1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !rel.CancelRequested {
		t.Error("CancelRequested not set")
	}

	// Cancelling again is a no-op.
	if _, err := h.releases.Cancel(ctx, "r1"); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
}

func TestCancel_TerminalRelease(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	ctx := context.Background()
	registerMembers(t, h, "m1")

	done := domain.Release{
		ID: "r1", MemberID: "m1", TargetVersion: "v2",
		Phase: domain.PhaseSucceeded, StartedAt: time.Now(), EndedAt: time.Now(),
	}
	if err := h.repo.Create(ctx, done); err != nil {
		t.Fatal(err)
	}

	_, err := h.releases.Cancel(ctx, "r1")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Cancel: got %v, want ErrConflict", err)
	}
}

func TestRollout_OneByOne(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	ctx := context.Background()
	registerMembers(t, h, "m1", "m2", "m3")

	result, err := h.rollouts.Start(ctx, application.StartRolloutInput{
		TargetVersion:     "v2",
		PlacementStrategy: domain.PlacementStrategySpec{Type: domain.PlacementStrategyAll},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(result.Releases) != 3 {
		t.Fatalf("releases = %d, want 3", len(result.Releases))
	}
	for _, rel := range result.Releases {
		if rel.Phase != domain.PhaseSucceeded {
			t.Errorf("release %s: Phase = %q, want succeeded", rel.ID, rel.Phase)
		}
	}
	for _, id := range []domain.MemberID{"m1", "m2", "m3"} {
		if h.fleet.Version(id) != "v2" {
			t.Errorf("member %s version = %q, want v2", id, h.fleet.Version(id))
		}
	}
}

func TestRollout_HaltsAfterFailedBatch(t *testing.T) {
	h := setup(t, &memfleet.Fleet{FailInstall: "v2"})
	ctx := context.Background()
	registerMembers(t, h, "m1", "m2", "m3")

	result, err := h.rollouts.Start(ctx, application.StartRolloutInput{
		TargetVersion:     "v2",
		PlacementStrategy: domain.PlacementStrategySpec{Type: domain.PlacementStrategyAll},
	})
	if err == nil {
		t.Fatal("expected rollout to halt")
	}
	// One-by-one is the default: only the first member's release ran.
	if len(result.Releases) != 1 {
		t.Fatalf("releases = %d, want 1 (plan halts before the next batch)", len(result.Releases))
	}
	if result.Releases[0].Phase != domain.PhaseFailed {
		t.Errorf("Phase = %q, want failed", result.Releases[0].Phase)
	}
}

func TestRollout_SelectorPlacement(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	ctx := context.Background()

	must(t, h.members.Register(ctx, domain.MemberInfo{
		ID: "m1", Name: "web-1", Labels: map[string]string{"tier": "web"},
	}))
	must(t, h.members.Register(ctx, domain.MemberInfo{
		ID: "m2", Name: "db-1", Labels: map[string]string{"tier": "db"},
	}))

	result, err := h.rollouts.Start(ctx, application.StartRolloutInput{
		TargetVersion: "v2",
		PlacementStrategy: domain.PlacementStrategySpec{
			Type:           domain.PlacementStrategySelector,
			MemberSelector: &domain.MemberSelector{MatchLabels: map[string]string{"tier": "web"}},
		},
		RolloutStrategy: &domain.RolloutStrategySpec{Type: domain.RolloutStrategyAllAtOnce},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(result.Releases) != 1 || result.Releases[0].MemberID != "m1" {
		t.Fatalf("releases = %+v, want one for m1", result.Releases)
	}
	if h.fleet.Version("m2") != "" {
		t.Error("db member must not receive the release")
	}
}

func TestRollout_EmptyPlacement(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	_, err := h.rollouts.Start(context.Background(), application.StartRolloutInput{
		TargetVersion:     "v2",
		PlacementStrategy: domain.PlacementStrategySpec{Type: domain.PlacementStrategyAll},
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Start: got %v, want ErrInvalidArgument", err)
	}
}

func TestDeregister_WithActiveRelease(t *testing.T) {
	h := setup(t, &memfleet.Fleet{})
	ctx := context.Background()
	registerMembers(t, h, "m1")

	active := domain.Release{
		ID: "r1", MemberID: "m1", TargetVersion: "v2",
		Phase: domain.PhaseStarting, StartedAt: time.Now(),
	}
	if err := h.repo.Create(ctx, active); err != nil {
		t.Fatal(err)
	}

	err := h.members.Deregister(ctx, "m1")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Deregister: got %v, want ErrConflict", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
