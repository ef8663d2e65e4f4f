// Package memberrepotest provides contract tests for [domain.MemberRepository]
// implementations.
package memberrepotest

import (
	"context"
	"errors"
	"testing"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// Factory creates a fresh [domain.MemberRepository] for each test invocation.
type Factory func(t *testing.T) domain.MemberRepository

// Run exercises the [domain.MemberRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		member := domain.MemberInfo{
			ID:         "m1",
			Name:       "web-1",
			Labels:     map[string]string{"tier": "web"},
			Properties: map[string]string{"healthURL": "http://10.0.0.5:8080/health"},
		}

		if err := repo.Create(ctx, member); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "m1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Name != "web-1" {
			t.Errorf("Name = %q, want %q", got.Name, "web-1")
		}
		if got.Labels["tier"] != "web" {
			t.Errorf("Labels[tier] = %q, want %q", got.Labels["tier"], "web")
		}
		if got.Properties["healthURL"] != "http://10.0.0.5:8080/health" {
			t.Errorf("Properties[healthURL] = %q", got.Properties["healthURL"])
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		member := domain.MemberInfo{ID: "m1", Name: "web-1"}

		if err := repo.Create(ctx, member); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		err := repo.Create(ctx, member)
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		members := []domain.MemberInfo{
			{ID: "m1", Name: "web-1"},
			{ID: "m2", Name: "web-2"},
		}
		for _, m := range members {
			if err := repo.Create(ctx, m); err != nil {
				t.Fatalf("Create %s: %v", m.ID, err)
			}
		}

		got, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List: got %d members, want 2", len(got))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, domain.MemberInfo{ID: "m1", Name: "web-1"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := repo.Delete(ctx, "m1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := repo.Get(ctx, "m1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get after Delete: got %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteNotFound", func(t *testing.T) {
		repo := factory(t)
		err := repo.Delete(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Delete: got %v, want ErrNotFound", err)
		}
	})
}
