package domain

import "context"

// MemberRepository persists and retrieves fleet member metadata.
type MemberRepository interface {
	Create(ctx context.Context, member MemberInfo) error
	Get(ctx context.Context, id MemberID) (MemberInfo, error)
	List(ctx context.Context) ([]MemberInfo, error)
	Delete(ctx context.Context, id MemberID) error
}

// ReleaseRepository persists and retrieves releases. Create must enforce
// the single-active-release-per-member invariant atomically, returning
// [ErrConflict] when violated.
type ReleaseRepository interface {
	Create(ctx context.Context, r Release) error
	Get(ctx context.Context, id ReleaseID) (Release, error)
	List(ctx context.Context) ([]Release, error)
	Update(ctx context.Context, r Release) error
	// ActiveForMember returns the non-terminal release for the member, or
	// [ErrNotFound] when no release is in progress.
	ActiveForMember(ctx context.Context, id MemberID) (Release, error)
}

// DecisionRepository records capacity decisions. Latest feeds the next
// tick's hysteresis; the append-only history serves external audit.
type DecisionRepository interface {
	Append(ctx context.Context, d CapacityDecision) error
	Latest(ctx context.Context) (CapacityDecision, error)
	List(ctx context.Context, limit int) ([]CapacityDecision, error)
}
