package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/worktype-resolver/internal/types"
)

// CostUpdate holds new unit costs for a work type. Nil costs keep the current value.
type CostUpdate struct {
	UnitCostMaterial *float64
	UnitCostLabor    *float64
	// Region defaults to types.DefaultCostRegion
	Region    string
	UpdatedBy *uuid.UUID
}

func (u CostUpdate) validate() error {
	if u.UnitCostMaterial != nil && *u.UnitCostMaterial < 0 {
		return fmt.Errorf("unit_cost_material must not be negative, got %v", *u.UnitCostMaterial)
	}
	if u.UnitCostLabor != nil && *u.UnitCostLabor < 0 {
		return fmt.Errorf("unit_cost_labor must not be negative, got %v", *u.UnitCostLabor)
	}
	return nil
}

// ---- Cost History Methods ----

// UpdateCosts sets the unit costs of an active work type, increments its
// revision and appends a snapshot to the cost history in one transaction.
func (db *Store) UpdateCosts(ctx context.Context, id uuid.UUID, update CostUpdate) (*types.CostSnapshot, error) {
	if err := update.validate(); err != nil {
		return nil, err
	}
	if update.Region == "" {
		update.Region = types.DefaultCostRegion
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Costs left nil in the update keep their current value.
	snap := &types.CostSnapshot{WorkTypeID: id, Region: update.Region, UpdatedBy: update.UpdatedBy}
	var revision int
	err = tx.QueryRow(ctx,
		`UPDATE work_types
		 SET unit_cost_material = COALESCE($2, unit_cost_material),
		     unit_cost_labor = COALESCE($3, unit_cost_labor),
		     revision = revision + 1, updated_by = $4, updated_at = NOW()
		 WHERE id = $1 AND retired_at IS NULL
		 RETURNING revision, unit_cost_material::float8, unit_cost_labor::float8`,
		id, update.UnitCostMaterial, update.UnitCostLabor, update.UpdatedBy,
	).Scan(&revision, &snap.UnitCostMaterial, &snap.UnitCostLabor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWorkTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update costs: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO work_type_cost_history (work_type_id, region, unit_cost_material, unit_cost_labor, updated_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, captured_at`,
		id, snap.Region, snap.UnitCostMaterial, snap.UnitCostLabor, snap.UpdatedBy,
	).Scan(&snap.ID, &snap.CapturedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert cost snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cost update: %w", err)
	}

	db.logger.InfoContext(ctx, "db: updated work type costs", "work_type_id", id, "revision", revision)
	return snap, nil
}

// ListCostHistory returns the cost snapshots of a work type, newest first.
func (db *Store) ListCostHistory(ctx context.Context, workTypeID uuid.UUID) ([]types.CostSnapshot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, work_type_id, region, unit_cost_material::float8, unit_cost_labor::float8, captured_at, updated_by
		 FROM work_type_cost_history
		 WHERE work_type_id = $1
		 ORDER BY captured_at DESC, id`,
		workTypeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cost history: %w", err)
	}
	defer rows.Close()

	var out []types.CostSnapshot
	for rows.Next() {
		var s types.CostSnapshot
		if err := rows.Scan(&s.ID, &s.WorkTypeID, &s.Region, &s.UnitCostMaterial, &s.UnitCostLabor,
			&s.CapturedAt, &s.UpdatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan cost snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cost history: %w", err)
	}
	return out, nil
}
