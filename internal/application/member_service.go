package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// MemberService manages fleet member registration and queries.
type MemberService struct {
	Members  domain.MemberRepository
	Releases domain.ReleaseRepository
}

func (s *MemberService) Register(ctx context.Context, member domain.MemberInfo) error {
	if member.ID == "" {
		return fmt.Errorf("%w: member ID is required", domain.ErrInvalidArgument)
	}
	if member.Name == "" {
		return fmt.Errorf("%w: member name is required", domain.ErrInvalidArgument)
	}
	return s.Members.Create(ctx, member)
}

func (s *MemberService) Get(ctx context.Context, id domain.MemberID) (domain.MemberInfo, error) {
	return s.Members.Get(ctx, id)
}

func (s *MemberService) List(ctx context.Context) ([]domain.MemberInfo, error) {
	return s.Members.List(ctx)
}

// Deregister removes a member. A member with a release in progress cannot
// be removed.
func (s *MemberService) Deregister(ctx context.Context, id domain.MemberID) error {
	if active, err := s.Releases.ActiveForMember(ctx, id); err == nil {
		return fmt.Errorf("%w: release %s in progress for member %q", domain.ErrConflict, active.ID, id)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return s.Members.Delete(ctx, id)
}
