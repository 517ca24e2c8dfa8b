package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type RelabelDatasetsUseCase struct {
	registry port.DatasetRegistry
	store    port.AnnotationStore
	logger   *zap.Logger
}

type RelabelResult struct {
	Rewritten int
	Datasets  []entity.DatasetStatus
	Skipped   []entity.SkippedItem
}

func NewRelabelDatasetsUseCase(registry port.DatasetRegistry, store port.AnnotationStore, logger *zap.Logger) *RelabelDatasetsUseCase {
	return &RelabelDatasetsUseCase{registry: registry, store: store, logger: logger}
}

// Execute overwrites every annotation label in the selected datasets.
// A dataset that cannot be read is reported and the others still run.
func (uc *RelabelDatasetsUseCase) Execute(ctx context.Context, req entity.RelabelRequest) (*RelabelResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "RelabelDatasetsUseCase.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("relabel.datasets", len(req.Datasets)),
		attribute.String("relabel.label", req.Label),
	)

	start := time.Now()
	datasets, skipped, err := resolveDatasets(ctx, uc.registry, req.Datasets)
	if err != nil {
		return nil, err
	}
	result := &RelabelResult{Skipped: skipped}

	for _, ds := range datasets {
		log := uc.logger.With(zap.String("dataset", ds.Name))
		status := entity.DatasetStatus{Name: ds.Name, Dir: ds.Dir}

		n, frameSkips, err := uc.store.RewriteLabels(ctx, ds.Dir, req.Label)
		for i := range frameSkips {
			frameSkips[i].Dataset = ds.Name
		}
		result.Skipped = append(result.Skipped, frameSkips...)
		if err != nil {
			log.Warn("relabel failed", zap.Error(err))
			status.Error = err.Error()
			result.Skipped = append(result.Skipped, entity.NewSkippedItem(ds.Name, ds.Dir, err))
		}
		status.FrameCount = n
		status.Skipped = countSkipped(ds.Name, frameSkips)
		result.Datasets = append(result.Datasets, status)
		result.Rewritten += n

		log.Info("dataset relabeled", zap.Int("frames", n), zap.Int("skipped", status.Skipped))
	}

	metrics.RelabeledFramesTotal.Add(float64(result.Rewritten))
	metrics.JobProcessingDuration.WithLabelValues("relabel").Observe(time.Since(start).Seconds())
	return result, nil
}

type AnnotateFrameUseCase struct {
	registry port.DatasetRegistry
	store    port.AnnotationStore
	logger   *zap.Logger
}

func NewAnnotateFrameUseCase(registry port.DatasetRegistry, store port.AnnotationStore, logger *zap.Logger) *AnnotateFrameUseCase {
	return &AnnotateFrameUseCase{registry: registry, store: store, logger: logger}
}

// Execute replaces the annotations of one frame with the edited one.
func (uc *AnnotateFrameUseCase) Execute(ctx context.Context, req entity.AnnotateRequest) (entity.DatasetStatus, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "AnnotateFrameUseCase.Execute")
	defer span.End()

	ds, ok, err := uc.registry.Lookup(ctx, req.Dataset)
	if err != nil {
		return entity.DatasetStatus{}, fmt.Errorf("lookup dataset %s: %w", req.Dataset, err)
	}
	if !ok {
		return entity.DatasetStatus{}, fmt.Errorf("%w: %s", entity.ErrUnknownDataset, req.Dataset)
	}
	if err := uc.store.UpdateAnnotation(ctx, ds.Dir, req.Image, req.Annotation); err != nil {
		return entity.DatasetStatus{}, fmt.Errorf("update %s/%s: %w", ds.Name, req.Image, err)
	}

	uc.logger.Info("frame annotation updated",
		zap.String("dataset", ds.Name),
		zap.String("image", req.Image),
		zap.String("label", req.Annotation.Label),
	)
	return entity.DatasetStatus{Name: ds.Name, Dir: ds.Dir, FrameCount: 1}, nil
}
