package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// DeployInput is the caller-provided input for starting a release.
type DeployInput struct {
	MemberID      domain.MemberID
	TargetVersion string
}

// ReleaseService manages release lifecycle and runs the release workflow.
type ReleaseService struct {
	Releases domain.ReleaseRepository
	Members  domain.MemberRepository
	Runner   domain.ReleaseRunner
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Deploy creates a release for the member and drives it through the full
// lifecycle, blocking until a terminal phase. The returned release is the
// persisted terminal record; the returned error, if any, classifies the
// failure ([domain.DriverError], [domain.TimeoutError],
// [domain.ValidationExhaustedError]).
func (s *ReleaseService) Deploy(ctx context.Context, in DeployInput) (domain.Release, error) {
	if in.MemberID == "" {
		return domain.Release{}, fmt.Errorf("%w: member ID is required", domain.ErrInvalidArgument)
	}
	if in.TargetVersion == "" {
		return domain.Release{}, fmt.Errorf("%w: target version is required", domain.ErrInvalidArgument)
	}
	if _, err := s.Members.Get(ctx, in.MemberID); err != nil {
		return domain.Release{}, fmt.Errorf("member %q: %w", in.MemberID, err)
	}

	if active, err := s.Releases.ActiveForMember(ctx, in.MemberID); err == nil {
		return domain.Release{}, fmt.Errorf("%w: release %s already in progress for member %q", domain.ErrConflict, active.ID, in.MemberID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Release{}, err
	}

	rel := domain.Release{
		ID:            domain.ReleaseID(uuid.NewString()),
		MemberID:      in.MemberID,
		TargetVersion: in.TargetVersion,
		Phase:         domain.PhasePending,
		StartedAt:     s.now(),
	}
	// Creation enforces single-active-per-member atomically; a concurrent
	// Deploy loses here with ErrConflict.
	if err := s.Releases.Create(ctx, rel); err != nil {
		return domain.Release{}, err
	}

	handle, err := s.Runner.Run(ctx, rel.ID)
	if err != nil {
		return domain.Release{}, fmt.Errorf("start release workflow: %w", err)
	}
	_, werr := handle.AwaitResult(ctx)

	final, err := s.Releases.Get(ctx, rel.ID)
	if err != nil {
		return domain.Release{}, err
	}
	return final, werr
}

// Get retrieves a release by ID.
func (s *ReleaseService) Get(ctx context.Context, id domain.ReleaseID) (domain.Release, error) {
	return s.Releases.Get(ctx, id)
}

// List returns all releases.
func (s *ReleaseService) List(ctx context.Context) ([]domain.Release, error) {
	return s.Releases.List(ctx)
}

// Cancel requests cancellation of an in-flight release. The workflow
// honors the request at its next phase boundary; work already in flight
// is not interrupted.
func (s *ReleaseService) Cancel(ctx context.Context, id domain.ReleaseID) (domain.Release, error) {
	rel, err := s.Releases.Get(ctx, id)
	if err != nil {
		return domain.Release{}, err
	}
	if rel.Phase.Terminal() {
		return domain.Release{}, fmt.Errorf("%w: release %s already ended in %s", domain.ErrConflict, id, rel.Phase)
	}
	if rel.CancelRequested {
		return rel, nil
	}
	rel.CancelRequested = true
	if err := s.Releases.Update(ctx, rel); err != nil {
		return domain.Release{}, err
	}
	return rel, nil
}

func (s *ReleaseService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
