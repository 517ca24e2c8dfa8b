package port

import (
	"context"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/google/uuid"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	Update(ctx context.Context, job *entity.Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

// DatasetRegistry maps dataset names to their directories. It is the only
// shared mutable state of the pipeline; captures write it once per video,
// exports and relabels only read it.
type DatasetRegistry interface {
	Register(ctx context.Context, ds entity.Dataset) error
	Lookup(ctx context.Context, name string) (entity.Dataset, bool, error)
	List(ctx context.Context) ([]entity.Dataset, error)
}
