package domain

// MemberID identifies one fleet member (one compute unit running the service).
type MemberID string

// MemberInfo describes a registered fleet member. It is the full state the
// platform knows: stored in the member repository, handed to drivers and
// probers, and exposed via API. Properties are not used for placement; only
// the placement view (see [PlacementMember]) is passed to placement
// strategies.
type MemberInfo struct {
	ID         MemberID
	Name       string
	Labels     map[string]string
	Properties map[string]string
}

// PlacementMember is the subset of member state shared with placement
// strategies. Properties are excluded so they can change without affecting
// which members a rollout selects.
type PlacementMember struct {
	ID     MemberID
	Name   string
	Labels map[string]string
}

// ToPlacementMember returns the placement view of a member (Labels only;
// Properties are omitted).
func ToPlacementMember(m MemberInfo) PlacementMember {
	labels := make(map[string]string, len(m.Labels))
	for k, v := range m.Labels {
		labels[k] = v
	}
	return PlacementMember{ID: m.ID, Name: m.Name, Labels: labels}
}

// PlacementMembers returns the placement view of each member in the slice.
func PlacementMembers(pool []MemberInfo) []PlacementMember {
	out := make([]PlacementMember, len(pool))
	for i, m := range pool {
		out[i] = ToPlacementMember(m)
	}
	return out
}

// ResolvedMemberInfos maps resolved placement members back to full member
// info by looking up each ID in the full pool. Order of the resolved slice
// is preserved. Members not found in the pool are omitted (caller can treat
// that as an error if the pool is expected to be complete).
func ResolvedMemberInfos(resolved []PlacementMember, pool []MemberInfo) []MemberInfo {
	index := make(map[MemberID]MemberInfo, len(pool))
	for _, m := range pool {
		index[m.ID] = m
	}
	out := make([]MemberInfo, 0, len(resolved))
	for _, p := range resolved {
		if m, ok := index[p.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}
