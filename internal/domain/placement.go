package domain

import (
	"context"
	"fmt"
)

// StaticPlacement selects an explicit set of members by ID.
type StaticPlacement struct {
	Members []MemberID
}

func (s *StaticPlacement) Resolve(_ context.Context, pool []PlacementMember) ([]PlacementMember, error) {
	index := make(map[MemberID]PlacementMember, len(pool))
	for _, m := range pool {
		index[m.ID] = m
	}

	result := make([]PlacementMember, 0, len(s.Members))
	for _, id := range s.Members {
		m, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: member %q not found in pool", ErrNotFound, id)
		}
		result = append(result, m)
	}
	return result, nil
}

// AllPlacement selects every member in the pool.
type AllPlacement struct{}

func (a *AllPlacement) Resolve(_ context.Context, pool []PlacementMember) ([]PlacementMember, error) {
	result := make([]PlacementMember, len(pool))
	copy(result, pool)
	return result, nil
}

// SelectorPlacement filters the pool by label matching. All labels in the
// selector must be present and equal on the member.
type SelectorPlacement struct {
	Selector MemberSelector
}

func (s *SelectorPlacement) Resolve(_ context.Context, pool []PlacementMember) ([]PlacementMember, error) {
	var result []PlacementMember
	for _, m := range pool {
		if matchLabels(m.Labels, s.Selector.MatchLabels) {
			result = append(result, m)
		}
	}
	return result, nil
}

func matchLabels(labels, selector map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}
