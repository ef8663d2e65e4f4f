package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

func placementPool() []domain.PlacementMember {
	return []domain.PlacementMember{
		{ID: "m1", Name: "web-1", Labels: map[string]string{"tier": "web", "zone": "a"}},
		{ID: "m2", Name: "web-2", Labels: map[string]string{"tier": "web", "zone": "b"}},
		{ID: "m3", Name: "db-1", Labels: map[string]string{"tier": "db", "zone": "a"}},
	}
}

func TestStaticPlacement(t *testing.T) {
	p := &domain.StaticPlacement{Members: []domain.MemberID{"m3", "m1"}}
	got, err := p.Resolve(context.Background(), placementPool())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m3" || got[1].ID != "m1" {
		t.Errorf("Resolve = %v, want [m3 m1] in request order", got)
	}
}

func TestStaticPlacement_UnknownMember(t *testing.T) {
	p := &domain.StaticPlacement{Members: []domain.MemberID{"m1", "ghost"}}
	_, err := p.Resolve(context.Background(), placementPool())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAllPlacement(t *testing.T) {
	got, err := (&domain.AllPlacement{}).Resolve(context.Background(), placementPool())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestSelectorPlacement(t *testing.T) {
	p := &domain.SelectorPlacement{Selector: domain.MemberSelector{
		MatchLabels: map[string]string{"tier": "web"},
	}}
	got, err := p.Resolve(context.Background(), placementPool())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.Labels["tier"] != "web" {
			t.Errorf("member %s does not match selector", m.ID)
		}
	}

	// Multiple labels must all match.
	p.Selector.MatchLabels = map[string]string{"tier": "web", "zone": "b"}
	got, err = p.Resolve(context.Background(), placementPool())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m2" {
		t.Errorf("Resolve = %v, want [m2]", got)
	}
}
