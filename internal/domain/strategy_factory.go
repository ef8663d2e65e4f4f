package domain

import "fmt"

// StrategyFactory instantiates the appropriate strategy implementation
// from a user-provided spec.
type StrategyFactory interface {
	PlacementStrategy(spec PlacementStrategySpec) (PlacementStrategy, error)
	RolloutStrategy(spec *RolloutStrategySpec) RolloutStrategy
}

// DefaultStrategyFactory creates built-in strategy implementations.
type DefaultStrategyFactory struct{}

func (f DefaultStrategyFactory) PlacementStrategy(spec PlacementStrategySpec) (PlacementStrategy, error) {
	switch spec.Type {
	case PlacementStrategyStatic:
		return &StaticPlacement{Members: spec.Members}, nil
	case PlacementStrategyAll:
		return &AllPlacement{}, nil
	case PlacementStrategySelector:
		if spec.MemberSelector == nil {
			return nil, fmt.Errorf("%w: selector placement requires a member selector", ErrInvalidArgument)
		}
		return &SelectorPlacement{Selector: *spec.MemberSelector}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported placement strategy type %q", ErrInvalidArgument, spec.Type)
	}
}

func (f DefaultStrategyFactory) RolloutStrategy(spec *RolloutStrategySpec) RolloutStrategy {
	if spec == nil {
		return &OneByOneRollout{}
	}
	switch spec.Type {
	case RolloutStrategyAllAtOnce:
		return &AllAtOnceRollout{}
	default:
		return &OneByOneRollout{}
	}
}
