package domain

// PlacementStrategyType identifies the kind of placement strategy.
type PlacementStrategyType string

const (
	PlacementStrategyStatic   PlacementStrategyType = "static"
	PlacementStrategyAll      PlacementStrategyType = "all"
	PlacementStrategySelector PlacementStrategyType = "selector"
)

// MemberSelector selects members by label matching.
type MemberSelector struct {
	MatchLabels map[string]string
}

// PlacementStrategySpec is the user-provided specification for member
// selection.
type PlacementStrategySpec struct {
	Type           PlacementStrategyType
	Members        []MemberID      // for "static"
	MemberSelector *MemberSelector // for "selector"
}

// RolloutStrategyType identifies the kind of rollout strategy.
type RolloutStrategyType string

const (
	RolloutStrategyOneByOne  RolloutStrategyType = "oneByOne"
	RolloutStrategyAllAtOnce RolloutStrategyType = "allAtOnce"
)

// RolloutStrategySpec is the user-provided specification for rollout pacing.
type RolloutStrategySpec struct {
	Type RolloutStrategyType
}
