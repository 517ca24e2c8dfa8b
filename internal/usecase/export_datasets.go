package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const ManifestName = "exported_annotations.json"

type ExportDatasetsUseCase struct {
	registry    port.DatasetRegistry
	store       port.AnnotationStore
	archiver    port.Archiver
	destination port.ArchiveDestination
	logger      *zap.Logger
	tempDir     string
}

// ExportResult describes a delivered archive. Collisions lists asset names
// that appeared in more than one dataset; the last one read won.
type ExportResult struct {
	Archive    string
	Entries    int
	Assets     int
	Datasets   []entity.DatasetStatus
	Collisions []string
	Skipped    []entity.SkippedItem
}

func NewExportDatasetsUseCase(
	registry port.DatasetRegistry,
	store port.AnnotationStore,
	archiver port.Archiver,
	destination port.ArchiveDestination,
	logger *zap.Logger,
	tempDir string,
) *ExportDatasetsUseCase {
	return &ExportDatasetsUseCase{
		registry:    registry,
		store:       store,
		archiver:    archiver,
		destination: destination,
		logger:      logger,
		tempDir:     tempDir,
	}
}

// Execute consolidates the selected datasets into one archive: a manifest of
// every readable frame plus every asset file, delivered to req.Destination.
func (uc *ExportDatasetsUseCase) Execute(ctx context.Context, req entity.ExportRequest) (*ExportResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExportDatasetsUseCase.Execute")
	defer span.End()
	span.SetAttributes(attribute.Int("export.datasets", len(req.Datasets)))

	start := time.Now()
	if req.Destination.Path == "" && req.Destination.ObjectKey == "" {
		return nil, fmt.Errorf("%w: no destination given", entity.ErrDestinationWrite)
	}

	datasets, skipped, err := resolveDatasets(ctx, uc.registry, req.Datasets)
	if err != nil {
		return nil, err
	}
	result := &ExportResult{Skipped: skipped}

	manifest := []entity.ManifestEntry{}
	var assets []port.ArchiveEntry
	position := make(map[string]int)

	_, spanCollect := tracer.Start(ctx, "collect_frames")
	for _, ds := range datasets {
		log := uc.logger.With(zap.String("dataset", ds.Name))
		status := entity.DatasetStatus{Name: ds.Name, Dir: ds.Dir}

		frames, frameSkips, err := uc.store.ReadAll(ctx, ds.Dir)
		if err != nil {
			log.Warn("dataset unreadable", zap.Error(err))
			status.Error = err.Error()
			result.Skipped = append(result.Skipped, entity.NewSkippedItem(ds.Name, ds.Dir, err))
			result.Datasets = append(result.Datasets, status)
			continue
		}
		for i := range frameSkips {
			frameSkips[i].Dataset = ds.Name
		}
		result.Skipped = append(result.Skipped, frameSkips...)
		for _, f := range frames {
			manifest = append(manifest, f.Record.ManifestEntry())
		}
		status.FrameCount = len(frames)
		status.Skipped = len(frameSkips)

		paths, err := uc.store.Assets(ctx, ds.Dir)
		if err != nil {
			spanCollect.End()
			return nil, fmt.Errorf("%w: list assets of %s: %v", entity.ErrArchiveWrite, ds.Name, err)
		}
		for _, p := range paths {
			name := filepath.Base(p)
			if pos, ok := position[name]; ok {
				log.Warn("asset name collision, keeping later file", zap.String("asset", name))
				assets[pos].Path = p
				result.Collisions = append(result.Collisions, name)
				continue
			}
			position[name] = len(assets)
			assets = append(assets, port.ArchiveEntry{Name: name, Path: p})
		}
		result.Datasets = append(result.Datasets, status)
	}
	spanCollect.End()

	workDir, err := os.MkdirTemp(uc.tempDir, "export-")
	if err != nil {
		return nil, fmt.Errorf("%w: create workdir: %v", entity.ErrArchiveWrite, err)
	}
	defer os.RemoveAll(workDir)

	zipCtx, spanZip := tracer.Start(ctx, "create_archive")
	manifestPath := filepath.Join(workDir, ManifestName)
	if err := writeManifest(manifestPath, manifest); err != nil {
		spanZip.End()
		return nil, err
	}
	entries := append([]port.ArchiveEntry{{Name: ManifestName, Path: manifestPath}}, assets...)
	archivePath := filepath.Join(workDir, fmt.Sprintf("exported_annotations_%s.zip", uuid.New().String()))
	if err := uc.archiver.CreateArchive(zipCtx, entries, archivePath); err != nil {
		spanZip.End()
		return nil, fmt.Errorf("%w: %v", entity.ErrArchiveWrite, err)
	}
	spanZip.End()

	deliverCtx, spanDeliver := tracer.Start(ctx, "deliver_archive")
	location, err := uc.destination.Deliver(deliverCtx, archivePath, req.Destination)
	spanDeliver.End()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDestinationWrite, err)
	}

	result.Archive = location
	result.Entries = len(manifest)
	result.Assets = len(assets)

	metrics.ExportEntriesTotal.WithLabelValues("manifest").Add(float64(result.Entries))
	metrics.ExportEntriesTotal.WithLabelValues("asset").Add(float64(result.Assets))
	metrics.ExportEntriesTotal.WithLabelValues("collision").Add(float64(len(result.Collisions)))
	metrics.JobProcessingDuration.WithLabelValues("export").Observe(time.Since(start).Seconds())

	uc.logger.Info("export delivered",
		zap.String("archive", location),
		zap.Int("entries", result.Entries),
		zap.Int("assets", result.Assets),
		zap.Int("collisions", len(result.Collisions)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func writeManifest(path string, manifest []entity.ManifestEntry) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", entity.ErrArchiveWrite, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: write manifest: %v", entity.ErrArchiveWrite, err)
	}
	return nil
}
