package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DatasetRegistry keeps the name -> directory map in the datasets table so
// it survives restarts and is shared by every worker replica.
type DatasetRegistry struct {
	pool *pgxpool.Pool
}

func NewDatasetRegistry(pool *pgxpool.Pool) *DatasetRegistry {
	return &DatasetRegistry{pool: pool}
}

// Register upserts ds. Recapturing a video under an existing name points the
// name at the new directory.
func (r *DatasetRegistry) Register(ctx context.Context, ds entity.Dataset) error {
	if ds.Name == "" || ds.Dir == "" {
		return fmt.Errorf("register dataset: name and directory are required")
	}
	query := `
		INSERT INTO datasets (name, dir, frame_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE SET
			dir = EXCLUDED.dir,
			frame_count = EXCLUDED.frame_count,
			created_at = EXCLUDED.created_at,
			updated_at = now()`

	if _, err := r.pool.Exec(ctx, query, ds.Name, ds.Dir, ds.FrameCount, ds.CreatedAt); err != nil {
		return fmt.Errorf("upsert dataset %s: %w", ds.Name, err)
	}
	return nil
}

func (r *DatasetRegistry) Lookup(ctx context.Context, name string) (entity.Dataset, bool, error) {
	query := `SELECT name, dir, frame_count, created_at FROM datasets WHERE name=$1`

	var ds entity.Dataset
	err := r.pool.QueryRow(ctx, query, name).Scan(&ds.Name, &ds.Dir, &ds.FrameCount, &ds.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.Dataset{}, false, nil
	}
	if err != nil {
		return entity.Dataset{}, false, fmt.Errorf("lookup dataset %s: %w", name, err)
	}
	return ds, true, nil
}

func (r *DatasetRegistry) List(ctx context.Context) ([]entity.Dataset, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, dir, frame_count, created_at FROM datasets ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	datasets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Dataset, error) {
		var ds entity.Dataset
		err := row.Scan(&ds.Name, &ds.Dir, &ds.FrameCount, &ds.CreatedAt)
		return ds, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan datasets: %w", err)
	}
	return datasets, nil
}
