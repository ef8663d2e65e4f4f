package domain

import "context"

// RolloutBatch is a group of members whose releases may run concurrently.
type RolloutBatch struct {
	Members []MemberInfo
}

// RolloutPlan is the output of a rollout strategy: an ordered sequence of
// batches. Batches run sequentially; a failed batch halts the plan.
type RolloutPlan struct {
	Batches []RolloutBatch
}

// OneByOneRollout releases to one member at a time, gating each on the
// previous member's health validation. The safe default.
type OneByOneRollout struct{}

func (r *OneByOneRollout) Plan(_ context.Context, members []MemberInfo) (RolloutPlan, error) {
	batches := make([]RolloutBatch, 0, len(members))
	for _, m := range members {
		batches = append(batches, RolloutBatch{Members: []MemberInfo{m}})
	}
	return RolloutPlan{Batches: batches}, nil
}

// AllAtOnceRollout releases to every member concurrently in a single batch.
type AllAtOnceRollout struct{}

func (r *AllAtOnceRollout) Plan(_ context.Context, members []MemberInfo) (RolloutPlan, error) {
	if len(members) == 0 {
		return RolloutPlan{}, nil
	}
	batch := RolloutBatch{Members: make([]MemberInfo, len(members))}
	copy(batch.Members, members)
	return RolloutPlan{Batches: []RolloutBatch{batch}}, nil
}
