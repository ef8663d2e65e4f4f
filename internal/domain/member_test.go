package domain_test

import (
	"testing"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

func TestToPlacementMember_OmitsProperties(t *testing.T) {
	m := domain.MemberInfo{
		ID:         "m1",
		Name:       "web-1",
		Labels:     map[string]string{"tier": "web"},
		Properties: map[string]string{"healthURL": "http://10.0.0.5:8080/health"},
	}
	p := domain.ToPlacementMember(m)
	if p.ID != m.ID || p.Name != m.Name {
		t.Errorf("identity not carried over: %+v", p)
	}
	if p.Labels["tier"] != "web" {
		t.Error("labels not carried over")
	}

	// Labels are copied, not shared.
	p.Labels["tier"] = "db"
	if m.Labels["tier"] != "web" {
		t.Error("placement view aliases member labels")
	}
}

func TestResolvedMemberInfos(t *testing.T) {
	pool := []domain.MemberInfo{
		{ID: "m1", Properties: map[string]string{"healthURL": "u1"}},
		{ID: "m2", Properties: map[string]string{"healthURL": "u2"}},
	}
	resolved := []domain.PlacementMember{{ID: "m2"}, {ID: "m1"}, {ID: "ghost"}}

	got := domain.ResolvedMemberInfos(resolved, pool)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (unknown members omitted)", len(got))
	}
	if got[0].ID != "m2" || got[1].ID != "m1" {
		t.Errorf("order not preserved: %v", got)
	}
	if got[0].Properties["healthURL"] != "u2" {
		t.Error("full member info not restored")
	}
}
