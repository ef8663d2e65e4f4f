package domain

import "context"

// PlacementStrategy determines which members to select from the available
// pool.
//
// Resolve receives only the placement view of each member ([PlacementMember]:
// ID, Name, Labels). Properties and other member metadata are not visible,
// so placement cannot depend on them. The strategy may filter, rank, and
// limit the pool. The platform treats the returned slice order as
// meaningful.
type PlacementStrategy interface {
	Resolve(ctx context.Context, pool []PlacementMember) ([]PlacementMember, error)
}

// RolloutStrategy determines the pacing and ordering of releases across the
// selected members.
type RolloutStrategy interface {
	Plan(ctx context.Context, members []MemberInfo) (RolloutPlan, error)
}
