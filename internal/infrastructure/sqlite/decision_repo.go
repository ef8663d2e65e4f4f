package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// DecisionRepo implements [domain.DecisionRepository] backed by SQLite.
// Decisions are append-only; Latest is the newest by insertion order.
type DecisionRepo struct {
	DB *sql.DB
}

func (r *DecisionRepo) Append(ctx context.Context, d domain.CapacityDecision) error {
	signals, err := json.Marshal(d.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO capacity_decisions (observed_at, signals, desired_count, cooldown_until, reason)
		 VALUES (?, ?, ?, ?, ?)`,
		d.ObservedAt.UTC().Format(time.RFC3339Nano), string(signals),
		d.DesiredCount, d.CooldownUntil.UTC().Format(time.RFC3339Nano), d.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (r *DecisionRepo) Latest(ctx context.Context) (domain.CapacityDecision, error) {
	row := r.DB.QueryRowContext(ctx, decisionColumns+` ORDER BY seq DESC LIMIT 1`)
	return scanDecision(row)
}

func (r *DecisionRepo) List(ctx context.Context, limit int) ([]domain.CapacityDecision, error) {
	rows, err := r.DB.QueryContext(ctx, decisionColumns+` ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.CapacityDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

const decisionColumns = `SELECT observed_at, signals, desired_count, cooldown_until, reason FROM capacity_decisions`

func scanDecision(s scanner) (domain.CapacityDecision, error) {
	var d domain.CapacityDecision
	var observedAt, signalsJSON, cooldownUntil string
	if err := s.Scan(&observedAt, &signalsJSON, &d.DesiredCount, &cooldownUntil, &d.Reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return d, fmt.Errorf("scan decision: %w", err)
	}
	if err := json.Unmarshal([]byte(signalsJSON), &d.Signals); err != nil {
		return d, fmt.Errorf("unmarshal signals: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, observedAt)
	if err != nil {
		return d, fmt.Errorf("parse observed_at: %w", err)
	}
	d.ObservedAt = t
	t, err = time.Parse(time.RFC3339Nano, cooldownUntil)
	if err != nil {
		return d, fmt.Errorf("parse cooldown_until: %w", err)
	}
	d.CooldownUntil = t
	return d, nil
}
