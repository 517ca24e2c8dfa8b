package port

import (
	"context"
	"image"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
)

// LoadedFrame is a frame record read back from a dataset directory.
type LoadedFrame struct {
	Record    entity.FrameRecord
	ImagePath string
	Index     int
}

// AnnotationStore persists frame images and their sidecars.
type AnnotationStore interface {
	CreateDataset(ctx context.Context) (string, error)
	Write(ctx context.Context, dir string, frameIndex int, img image.Image, annotations []entity.Annotation) (entity.FrameRecord, error)
	ReadAll(ctx context.Context, dir string) ([]LoadedFrame, []entity.SkippedItem, error)
	Assets(ctx context.Context, dir string) ([]string, error)
	RewriteLabels(ctx context.Context, dir string, label string) (int, []entity.SkippedItem, error)
	UpdateAnnotation(ctx context.Context, dir string, imageName string, annotation entity.Annotation) error
}
