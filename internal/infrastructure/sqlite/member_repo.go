package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// MemberRepo implements [domain.MemberRepository] backed by SQLite.
type MemberRepo struct {
	DB *sql.DB
}

func (r *MemberRepo) Create(ctx context.Context, m domain.MemberInfo) error {
	labels, err := json.Marshal(m.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	props, err := json.Marshal(m.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO members (id, name, labels, properties) VALUES (?, ?, ?, ?)`,
		string(m.ID), m.Name, string(labels), string(props),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("member %q: %w", m.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *MemberRepo) Get(ctx context.Context, id domain.MemberID) (domain.MemberInfo, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, name, labels, properties FROM members WHERE id = ?`,
		string(id),
	)
	return scanMember(row)
}

func (r *MemberRepo) List(ctx context.Context) ([]domain.MemberInfo, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, labels, properties FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []domain.MemberInfo
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *MemberRepo) Delete(ctx context.Context, id domain.MemberID) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("member %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(s scanner) (domain.MemberInfo, error) {
	var m domain.MemberInfo
	var id, labelsJSON, propsJSON string
	if err := s.Scan(&id, &m.Name, &labelsJSON, &propsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return m, fmt.Errorf("scan member: %w", err)
	}
	m.ID = domain.MemberID(id)
	if err := json.Unmarshal([]byte(labelsJSON), &m.Labels); err != nil {
		return m, fmt.Errorf("unmarshal labels: %w", err)
	}
	if err := json.Unmarshal([]byte(propsJSON), &m.Properties); err != nil {
		return m, fmt.Errorf("unmarshal properties: %w", err)
	}
	return m, nil
}
