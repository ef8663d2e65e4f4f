package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// StartRolloutInput is the caller-provided input for a fleet rollout.
type StartRolloutInput struct {
	TargetVersion     string
	PlacementStrategy domain.PlacementStrategySpec
	RolloutStrategy   *domain.RolloutStrategySpec
}

// RolloutResult reports every release a rollout started, in plan order.
type RolloutResult struct {
	Releases []domain.Release
}

// RolloutService releases a version across the fleet: placement selects
// the members, the rollout strategy orders them into batches, and each
// batch's releases run concurrently. A failed release halts the plan
// before the next batch.
type RolloutService struct {
	Members    domain.MemberRepository
	Releases   *ReleaseService
	Strategies domain.StrategyFactory
}

// Start executes a rollout and blocks until it completes or halts.
func (s *RolloutService) Start(ctx context.Context, in StartRolloutInput) (RolloutResult, error) {
	if in.TargetVersion == "" {
		return RolloutResult{}, fmt.Errorf("%w: target version is required", domain.ErrInvalidArgument)
	}
	placement, err := s.Strategies.PlacementStrategy(in.PlacementStrategy)
	if err != nil {
		return RolloutResult{}, err
	}
	rollout := s.Strategies.RolloutStrategy(in.RolloutStrategy)

	pool, err := s.Members.List(ctx)
	if err != nil {
		return RolloutResult{}, fmt.Errorf("list members: %w", err)
	}
	resolved, err := placement.Resolve(ctx, domain.PlacementMembers(pool))
	if err != nil {
		return RolloutResult{}, fmt.Errorf("resolve placement: %w", err)
	}
	selected := domain.ResolvedMemberInfos(resolved, pool)
	if len(selected) == 0 {
		return RolloutResult{}, fmt.Errorf("%w: placement selected no members", domain.ErrInvalidArgument)
	}

	plan, err := rollout.Plan(ctx, selected)
	if err != nil {
		return RolloutResult{}, fmt.Errorf("plan rollout: %w", err)
	}

	var result RolloutResult
	for i, batch := range plan.Batches {
		releases, err := s.runBatch(ctx, batch, in.TargetVersion)
		result.Releases = append(result.Releases, releases...)
		if err != nil {
			return result, fmt.Errorf("batch %d: %w", i+1, err)
		}
	}
	return result, nil
}

// runBatch deploys to every member of a batch concurrently and returns the
// first failure, if any. All releases in the batch run to a terminal phase
// before the batch reports.
func (s *RolloutService) runBatch(ctx context.Context, batch domain.RolloutBatch, version string) ([]domain.Release, error) {
	releases := make([]domain.Release, len(batch.Members))
	errs := make([]error, len(batch.Members))

	var wg sync.WaitGroup
	for i, member := range batch.Members {
		wg.Add(1)
		go func(i int, member domain.MemberInfo) {
			defer wg.Done()
			rel, err := s.Releases.Deploy(ctx, DeployInput{MemberID: member.ID, TargetVersion: version})
			releases[i] = rel
			if err != nil {
				errs[i] = fmt.Errorf("member %q: %w", member.ID, err)
			}
		}(i, member)
	}
	wg.Wait()

	out := releases[:0]
	for _, rel := range releases {
		if rel.ID != "" {
			out = append(out, rel)
		}
	}
	for _, err := range errs {
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
