package postgres

import (
	"context"
	"fmt"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO dataset_jobs (
			id, kind, status, dataset_count, frame_count, skipped_count,
			archive_key, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Kind), string(job.Status),
		job.DatasetCount, job.FrameCount, job.SkippedCount,
		job.ArchiveKey, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE dataset_jobs SET
			status=$2, dataset_count=$3, frame_count=$4, skipped_count=$5,
			archive_key=$6, error_message=$7, updated_at=$8, completed_at=$9
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.DatasetCount, job.FrameCount,
		job.SkippedCount, job.ArchiveKey, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: not found", job.ID)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, kind, status, dataset_count, frame_count, skipped_count,
			archive_key, error_message, created_at, updated_at, completed_at
		FROM dataset_jobs WHERE id=$1`

	job := &entity.Job{}
	var kind, status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &kind, &status,
		&job.DatasetCount, &job.FrameCount, &job.SkippedCount,
		&job.ArchiveKey, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Kind = entity.JobKind(kind)
	job.Status = entity.JobStatus(status)
	return job, nil
}
