package usecase

import (
	"context"
	"fmt"
	"image"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/coords"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"github.com/fiapx/fiapx-dataset-service/internal/sampling"
	"github.com/fiapx/fiapx-dataset-service/internal/tracking"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FrameSampler yields the one-per-second frames of a video.
type FrameSampler interface {
	Sequential(ctx context.Context, video string) (iter.Seq[sampling.Frame], int, error)
	Batch(ctx context.Context, video string, handle func(sampling.Frame)) (int, error)
}

type CaptureDatasetsUseCase struct {
	objects  port.ObjectStorage
	sampler  FrameSampler
	tracker  port.ObjectTracker
	store    port.AnnotationStore
	registry port.DatasetRegistry
	logger   *zap.Logger
	cfg      CaptureConfig
}

type CaptureConfig struct {
	TempDir          string
	VideoConcurrency int
	Convention       coords.Convention
}

// VideoOutcome is the result of capturing one video. Err is set when the
// video produced no registered dataset.
type VideoOutcome struct {
	Video   string
	Dataset entity.Dataset
	Skipped []entity.SkippedItem
	Err     error
}

type CaptureResult struct {
	Videos []VideoOutcome
}

func (r *CaptureResult) FrameCount() int {
	n := 0
	for _, v := range r.Videos {
		n += v.Dataset.FrameCount
	}
	return n
}

func (r *CaptureResult) SkippedCount() int {
	n := 0
	for _, v := range r.Videos {
		n += len(v.Skipped)
	}
	return n
}

// Captured is the number of videos that produced a registered dataset.
func (r *CaptureResult) Captured() int {
	n := 0
	for _, v := range r.Videos {
		if v.Err == nil {
			n++
		}
	}
	return n
}

func NewCaptureDatasetsUseCase(
	objects port.ObjectStorage,
	sampler FrameSampler,
	tracker port.ObjectTracker,
	store port.AnnotationStore,
	registry port.DatasetRegistry,
	logger *zap.Logger,
	cfg CaptureConfig,
) *CaptureDatasetsUseCase {
	if cfg.VideoConcurrency < 1 {
		cfg.VideoConcurrency = 1
	}
	if cfg.Convention == "" {
		cfg.Convention = coords.ConventionLegacy
	}
	return &CaptureDatasetsUseCase{
		objects:  objects,
		sampler:  sampler,
		tracker:  tracker,
		store:    store,
		registry: registry,
		logger:   logger,
		cfg:      cfg,
	}
}

// Execute captures every video of req into its own dataset. Videos are
// independent: one failing never stops or rolls back another. The registry
// is written once per successful video, after its last frame.
func (uc *CaptureDatasetsUseCase) Execute(ctx context.Context, req entity.CaptureRequest) *CaptureResult {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "CaptureDatasetsUseCase.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("capture.videos", len(req.Videos)),
		attribute.Bool("capture.tracking", trackingRequested(req.Template)),
	)

	result := &CaptureResult{Videos: make([]VideoOutcome, len(req.Videos))}
	if len(req.Videos) == 0 {
		return result
	}

	workDir, err := os.MkdirTemp(uc.cfg.TempDir, "capture-")
	if err != nil {
		for i, v := range req.Videos {
			result.Videos[i] = VideoOutcome{Video: videoName(v), Err: fmt.Errorf("create workdir: %w", err)}
		}
		return result
	}
	defer os.RemoveAll(workDir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.VideoConcurrency)
	for i, v := range req.Videos {
		g.Go(func() error {
			result.Videos[i] = uc.captureVideo(gctx, workDir, i, v, req.Template)
			return nil
		})
	}
	_ = g.Wait()

	return result
}

func (uc *CaptureDatasetsUseCase) captureVideo(
	ctx context.Context,
	workDir string,
	pos int,
	video entity.VideoSource,
	template *entity.TemplateSelection,
) VideoOutcome {
	tracer := otel.Tracer("usecase")
	name := videoName(video)
	ctx, span := tracer.Start(ctx, "capture_video")
	defer span.End()
	span.SetAttributes(attribute.String("video.name", name))

	log := uc.logger.With(zap.String("video", name))
	start := time.Now()
	outcome := VideoOutcome{Video: name}

	fail := func(err error) VideoOutcome {
		log.Error("video capture failed", zap.Error(err))
		metrics.DatasetsCapturedTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		outcome.Err = err
		return outcome
	}

	videoPath, err := uc.resolveVideo(ctx, workDir, pos, video)
	if err != nil {
		return fail(err)
	}

	dir, err := uc.store.CreateDataset(ctx)
	if err != nil {
		return fail(err)
	}
	outcome.Dataset = entity.Dataset{Name: name, Dir: dir}

	var persisted int
	if trackingRequested(template) {
		persisted, outcome.Skipped, err = uc.captureTracked(ctx, log, videoPath, dir, name, *template)
	} else {
		persisted, outcome.Skipped, err = uc.captureUntracked(ctx, log, videoPath, dir, name)
	}
	if err != nil {
		return fail(err)
	}
	if persisted == 0 {
		return fail(fmt.Errorf("%w: %s", entity.ErrEmptyDataset, name))
	}

	outcome.Dataset.FrameCount = persisted
	outcome.Dataset.CreatedAt = time.Now().UTC()
	if err := uc.registry.Register(ctx, outcome.Dataset); err != nil {
		return fail(fmt.Errorf("register dataset %s: %w", name, err))
	}

	metrics.DatasetsCapturedTotal.WithLabelValues("success").Inc()
	metrics.JobProcessingDuration.WithLabelValues("capture_video").Observe(time.Since(start).Seconds())
	log.Info("video captured",
		zap.String("dir", dir),
		zap.Int("frame_count", persisted),
		zap.Int("skipped", len(outcome.Skipped)),
	)
	return outcome
}

// captureTracked walks the frames in order, seeding the tracker on frame 0
// and persisting the tracked box of every frame until the object is lost.
func (uc *CaptureDatasetsUseCase) captureTracked(
	ctx context.Context,
	log *zap.Logger,
	videoPath, dir, dataset string,
	template entity.TemplateSelection,
) (int, []entity.SkippedItem, error) {
	frames, total, err := uc.sampler.Sequential(ctx, videoPath)
	if err != nil {
		return 0, nil, err
	}

	run := tracking.NewRun(uc.tracker, uc.cfg.Convention)
	defer run.Close()

	var skipped []entity.SkippedItem
	persisted := 0
	next := 0
	for f := range frames {
		next = f.Index + 1
		if f.Err != nil {
			skipped = append(skipped, entity.NewSkippedItem(dataset, frameItem(f.Index), f.Err))
			continue
		}
		if f.Index == 0 {
			px := coords.ToPixelSpace(template.Rect, template.DisplaySize, tracking.Size(f.Image))
			if err := run.Seed(f.Image, px); err != nil {
				log.Warn("tracking seed failed", zap.Error(err))
			}
		}

		box, err := run.Step(ctx, f.Index, f.Image)
		if err != nil {
			metrics.TrackingLostTotal.Inc()
			metrics.FramesSkippedTotal.WithLabelValues("tracking_lost").Inc()
			log.Warn("tracking lost", zap.Int("frame", f.Index), zap.Error(err))
			skipped = append(skipped, entity.NewSkippedItem(dataset, frameItem(f.Index), err))
			break
		}

		if ok := uc.persist(ctx, log, dir, dataset, f.Index, f.Image, box, "tracked", &skipped); ok {
			persisted++
		}
	}

	// Frames after the loss are never extracted; each still counts as skipped.
	if run.State() == tracking.StateLost {
		lostErr := fmt.Errorf("%w at frame %d", entity.ErrTrackingLost, run.LostAt())
		for i := next; i < total; i++ {
			metrics.FramesSkippedTotal.WithLabelValues("tracking_lost").Inc()
			skipped = append(skipped, entity.NewSkippedItem(dataset, frameItem(i), lostErr))
		}
	}
	if err := ctx.Err(); err != nil {
		return persisted, skipped, err
	}
	return persisted, skipped, nil
}

// captureUntracked extracts every frame concurrently and gives each the
// default centered box with an empty label.
func (uc *CaptureDatasetsUseCase) captureUntracked(
	ctx context.Context,
	log *zap.Logger,
	videoPath, dir, dataset string,
) (int, []entity.SkippedItem, error) {
	var (
		mu        sync.Mutex
		skipped   []entity.SkippedItem
		persisted int
	)
	_, err := uc.sampler.Batch(ctx, videoPath, func(f sampling.Frame) {
		if f.Err != nil {
			mu.Lock()
			skipped = append(skipped, entity.NewSkippedItem(dataset, frameItem(f.Index), f.Err))
			mu.Unlock()
			return
		}
		box := coords.DefaultAnnotation(tracking.Size(f.Image))

		var local []entity.SkippedItem
		ok := uc.persist(ctx, log, dir, dataset, f.Index, f.Image, box, "untracked", &local)

		mu.Lock()
		defer mu.Unlock()
		skipped = append(skipped, local...)
		if ok {
			persisted++
		}
	})
	if err != nil {
		return persisted, skipped, err
	}
	sortSkipped(skipped)
	return persisted, skipped, nil
}

func (uc *CaptureDatasetsUseCase) persist(
	ctx context.Context,
	log *zap.Logger,
	dir, dataset string,
	index int,
	img image.Image,
	box entity.Coordinates,
	mode string,
	skipped *[]entity.SkippedItem,
) bool {
	annotations := []entity.Annotation{{Label: "", Coordinates: box}}
	if _, err := uc.store.Write(ctx, dir, index, img, annotations); err != nil {
		log.Warn("frame write failed", zap.Int("frame", index), zap.Error(err))
		metrics.FramesSkippedTotal.WithLabelValues("write").Inc()
		*skipped = append(*skipped, entity.NewSkippedItem(dataset, frameItem(index), err))
		return false
	}
	metrics.FramesPersistedTotal.WithLabelValues(mode).Inc()
	return true
}

// resolveVideo returns a local path for video, downloading it into workDir
// first when it lives in object storage.
func (uc *CaptureDatasetsUseCase) resolveVideo(ctx context.Context, workDir string, pos int, video entity.VideoSource) (string, error) {
	switch {
	case video.ObjectKey != "":
		tracer := otel.Tracer("usecase")
		ctx, span := tracer.Start(ctx, "download_video")
		defer span.End()

		start := time.Now()
		dest := filepath.Join(workDir, fmt.Sprintf("%d-%s", pos, path.Base(video.ObjectKey)))
		if err := uc.objects.DownloadVideo(ctx, video.ObjectKey, dest); err != nil {
			return "", fmt.Errorf("download video %s: %w", video.ObjectKey, err)
		}
		metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())
		return dest, nil
	case video.Path != "":
		return video.Path, nil
	default:
		return "", fmt.Errorf("video has neither path nor object key")
	}
}

// trackingRequested reports whether sel describes an actual selection.
func trackingRequested(sel *entity.TemplateSelection) bool {
	return sel != nil && !sel.Rect.Empty() && !sel.DisplaySize.Empty()
}

func videoName(v entity.VideoSource) string {
	if v.Name != "" {
		return v.Name
	}
	handle := v.Path
	if v.ObjectKey != "" {
		handle = v.ObjectKey
	}
	base := path.Base(filepath.ToSlash(handle))
	if base == "." || base == "/" {
		return handle
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func frameItem(index int) string {
	return fmt.Sprintf("frame %d", index)
}
