package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// ReleaseRepo implements [domain.ReleaseRepository] backed by SQLite. The
// single-active-release-per-member invariant is enforced by a partial
// unique index over non-terminal phases, so concurrent creators race on
// the insert rather than on a read-check-write.
type ReleaseRepo struct {
	DB *sql.DB
}

func (r *ReleaseRepo) Create(ctx context.Context, rel domain.Release) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO releases (id, member_id, target_version, phase, attempts, reason, cancel_requested, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rel.ID), string(rel.MemberID), rel.TargetVersion, string(rel.Phase),
		rel.Attempts, rel.Reason, rel.CancelRequested,
		rel.StartedAt.UTC().Format(time.RFC3339Nano), nullTime(rel.EndedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "releases.id") {
				return fmt.Errorf("release %q: %w", rel.ID, domain.ErrAlreadyExists)
			}
			return fmt.Errorf("%w: release already in progress for member %q", domain.ErrConflict, rel.MemberID)
		}
		return fmt.Errorf("insert release: %w", err)
	}
	return nil
}

func (r *ReleaseRepo) Get(ctx context.Context, id domain.ReleaseID) (domain.Release, error) {
	row := r.DB.QueryRowContext(ctx, releaseColumns+` WHERE id = ?`, string(id))
	return scanRelease(row)
}

func (r *ReleaseRepo) List(ctx context.Context) ([]domain.Release, error) {
	rows, err := r.DB.QueryContext(ctx, releaseColumns+` ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	var releases []domain.Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releases, rows.Err()
}

func (r *ReleaseRepo) Update(ctx context.Context, rel domain.Release) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE releases
		 SET member_id = ?, target_version = ?, phase = ?, attempts = ?,
		     reason = ?, cancel_requested = ?, started_at = ?, ended_at = ?
		 WHERE id = ?`,
		string(rel.MemberID), rel.TargetVersion, string(rel.Phase), rel.Attempts,
		rel.Reason, rel.CancelRequested,
		rel.StartedAt.UTC().Format(time.RFC3339Nano), nullTime(rel.EndedAt),
		string(rel.ID),
	)
	if err != nil {
		return fmt.Errorf("update release: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("release %q: %w", rel.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *ReleaseRepo) ActiveForMember(ctx context.Context, id domain.MemberID) (domain.Release, error) {
	row := r.DB.QueryRowContext(ctx,
		releaseColumns+` WHERE member_id = ? AND phase NOT IN ('succeeded', 'rolledback', 'failed')`,
		string(id),
	)
	return scanRelease(row)
}

const releaseColumns = `SELECT id, member_id, target_version, phase, attempts, reason, cancel_requested, started_at, ended_at FROM releases`

func scanRelease(s scanner) (domain.Release, error) {
	var rel domain.Release
	var id, memberID, phase, startedAt string
	var endedAt sql.NullString
	if err := s.Scan(&id, &memberID, &rel.TargetVersion, &phase, &rel.Attempts,
		&rel.Reason, &rel.CancelRequested, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rel, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return rel, fmt.Errorf("scan release: %w", err)
	}
	rel.ID = domain.ReleaseID(id)
	rel.MemberID = domain.MemberID(memberID)
	rel.Phase = domain.ReleasePhase(phase)

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return rel, fmt.Errorf("parse started_at: %w", err)
	}
	rel.StartedAt = t
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return rel, fmt.Errorf("parse ended_at: %w", err)
		}
		rel.EndedAt = t
	}
	return rel, nil
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
