package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/worktype-resolver/internal/similarity"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// ErrWorkTypeNotFound is returned by write operations addressing a missing
// or retired work type.
var ErrWorkTypeNotFound = errors.New("work type not found")

// ErrMalformedVector marks a stored name vector that does not parse.
var ErrMalformedVector = errors.New("malformed name vector")

// rowScanner is the part of pgx.Rows the row loops use.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

const workTypeColumns = `id, seq, name, name_clean, parent_bucket, measurement_type, suggested_units,
	unit_cost_material::float8, unit_cost_labor::float8, productivity_unit_per_hr::float8,
	name_vec::text, revision, updated_by, retired_at, created_at, updated_at`

// ---- Catalog Read Methods ----

// ListCandidates returns up to n active work types whose cleaned name is
// trigram-similar to the cleaned query (pg_trgm's % operator, so the GIN
// index applies), ranked by similarity, ties by insertion order. Entries
// below pg_trgm.similarity_threshold are not returned. Only WorkType and
// LexicalScore are set. Entries with a malformed stored vector are skipped.
func (db *Store) ListCandidates(ctx context.Context, cleaned string, n int) ([]types.Candidate, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+workTypeColumns+`, similarity(name_clean, $1)::float8 AS lexical
		 FROM work_types
		 WHERE retired_at IS NULL AND name_clean % $1
		 ORDER BY lexical DESC, seq ASC
		 LIMIT $2`,
		cleaned, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	return db.scanCandidates(ctx, rows)
}

func (db *Store) scanCandidates(ctx context.Context, rows rowScanner) ([]types.Candidate, error) {
	var out []types.Candidate
	for rows.Next() {
		var lexical float64
		wt, err := scanWorkType(rows, &lexical)
		if errors.Is(err, ErrMalformedVector) {
			db.logger.WarnContext(ctx, "db: skipping candidate with malformed name vector", "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, types.Candidate{WorkType: wt, LexicalScore: lexical})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return out, nil
}

// Shortlist implements similarity.Shortlister.
func (db *Store) Shortlist(ctx context.Context, cleaned string, n int) ([]types.Candidate, error) {
	return db.ListCandidates(ctx, cleaned, n)
}

// GetAll returns every active work type in insertion order.
func (db *Store) GetAll(ctx context.Context) ([]*types.WorkType, error) {
	return db.queryWorkTypes(ctx,
		`SELECT `+workTypeColumns+` FROM work_types WHERE retired_at IS NULL ORDER BY seq ASC`)
}

// GetWorkType retrieves a work type by ID, including retired ones.
// Returns nil, nil when no row matches.
func (db *Store) GetWorkType(ctx context.Context, id uuid.UUID) (*types.WorkType, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+workTypeColumns+` FROM work_types WHERE id = $1`, id)
	wt, err := scanWorkType(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if errors.Is(err, ErrMalformedVector) {
		db.logger.WarnContext(ctx, "db: work type has a malformed name vector", "error", err)
		return wt, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work type: %w", err)
	}
	return wt, nil
}

// ListMissingVectors returns active work types whose name vector has not
// been computed, or every active work type when all is true.
func (db *Store) ListMissingVectors(ctx context.Context, all bool) ([]*types.WorkType, error) {
	query := `SELECT ` + workTypeColumns + ` FROM work_types WHERE retired_at IS NULL`
	if !all {
		query += ` AND name_vec IS NULL`
	}
	return db.queryWorkTypes(ctx, query+` ORDER BY seq ASC`)
}

func (db *Store) queryWorkTypes(ctx context.Context, query string, args ...any) ([]*types.WorkType, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work types: %w", err)
	}
	defer rows.Close()

	return db.scanWorkTypes(ctx, rows)
}

// scanWorkTypes keeps entries with a malformed stored vector, with NameVec
// nil, so listings and backfill still see them.
func (db *Store) scanWorkTypes(ctx context.Context, rows rowScanner) ([]*types.WorkType, error) {
	var out []*types.WorkType
	for rows.Next() {
		wt, err := scanWorkType(rows)
		if errors.Is(err, ErrMalformedVector) {
			db.logger.WarnContext(ctx, "db: work type has a malformed name vector", "error", err)
			err = nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan work type: %w", err)
		}
		out = append(out, wt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work types: %w", err)
	}
	return out, nil
}

// scanWorkType reads one row selected with workTypeColumns followed by any
// extra columns. A vector that does not parse yields the work type without
// NameVec and an error wrapping ErrMalformedVector.
func scanWorkType(row pgx.Row, extra ...any) (*types.WorkType, error) {
	var (
		wt          types.WorkType
		bucket      string
		measurement string
		vec         *string
	)
	dest := []any{
		&wt.ID, &wt.Seq, &wt.Name, &wt.NameClean, &bucket, &measurement, &wt.SuggestedUnits,
		&wt.UnitCostMaterial, &wt.UnitCostLabor, &wt.ProductivityUnitPerHr,
		&vec, &wt.Revision, &wt.UpdatedBy, &wt.RetiredAt, &wt.CreatedAt, &wt.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	wt.ParentBucket = types.ParentBucket(bucket)
	wt.MeasurementType = types.MeasurementType(measurement)
	if vec != nil {
		parsed, err := ParseVector(*vec)
		if err != nil {
			return &wt, fmt.Errorf("work type %s: %w: %v", wt.ID, ErrMalformedVector, err)
		}
		wt.NameVec = parsed
	}
	return &wt, nil
}

// ---- Catalog Write Methods ----

// CreateWorkType validates and inserts a work type. ID is generated when
// nil; NameClean, Seq, Revision and timestamps are set from the insert.
func (db *Store) CreateWorkType(ctx context.Context, wt *types.WorkType) error {
	if err := types.ValidateWorkType(wt); err != nil {
		return err
	}
	if wt.ID == uuid.Nil {
		wt.ID = uuid.New()
	}
	wt.NameClean = similarity.CleanText(wt.Name)

	var vec *string
	if wt.NameVec != nil {
		s := FormatVector(wt.NameVec)
		vec = &s
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO work_types (id, name, name_clean, parent_bucket, measurement_type, suggested_units,
		     unit_cost_material, unit_cost_labor, productivity_unit_per_hr, name_vec, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, $11)
		 RETURNING seq, revision, created_at, updated_at`,
		wt.ID, wt.Name, wt.NameClean, string(wt.ParentBucket), string(wt.MeasurementType), wt.SuggestedUnits,
		wt.UnitCostMaterial, wt.UnitCostLabor, wt.ProductivityUnitPerHr, vec, wt.UpdatedBy,
	).Scan(&wt.Seq, &wt.Revision, &wt.CreatedAt, &wt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create work type: %w", err)
	}
	return nil
}

// RenameWorkType changes the name of an active work type, bumps its
// revision and clears its name vector so the next backfill recomputes it.
func (db *Store) RenameWorkType(ctx context.Context, id uuid.UUID, name string, editor *uuid.UUID) (int, error) {
	var revision int
	err := db.pool.QueryRow(ctx,
		`UPDATE work_types
		 SET name = $2, name_clean = $3, name_vec = NULL, revision = revision + 1,
		     updated_by = $4, updated_at = NOW()
		 WHERE id = $1 AND retired_at IS NULL
		 RETURNING revision`,
		id, name, similarity.CleanText(name), editor,
	).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrWorkTypeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to rename work type: %w", err)
	}
	return revision, nil
}

// UpdateNameVector stores the embedding of a work type's cleaned name.
// Revision is unchanged.
func (db *Store) UpdateNameVector(ctx context.Context, id uuid.UUID, vec []float32) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE work_types SET name_vec = $2::vector, updated_at = NOW() WHERE id = $1`,
		id, FormatVector(vec),
	)
	if err != nil {
		return fmt.Errorf("failed to update name vector: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkTypeNotFound
	}
	return nil
}

// RetireWorkType soft-retires a work type so it is never offered as a candidate again.
func (db *Store) RetireWorkType(ctx context.Context, id uuid.UUID, editor *uuid.UUID) (time.Time, error) {
	var retiredAt time.Time
	err := db.pool.QueryRow(ctx,
		`UPDATE work_types SET retired_at = NOW(), updated_by = $2, updated_at = NOW()
		 WHERE id = $1 AND retired_at IS NULL
		 RETURNING retired_at`,
		id, editor,
	).Scan(&retiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrWorkTypeNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to retire work type: %w", err)
	}
	return retiredAt, nil
}
