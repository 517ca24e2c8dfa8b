// Package sampling turns a video into one frame per whole second of its
// duration: indices 0 .. floor(duration)-1.
package sampling

import (
	"context"
	"fmt"
	"image"
	"iter"
	"math"
	"sync/atomic"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Frame is one sampled second. Image is nil and Err wraps
// entity.ErrFrameExtraction when the frame could not be decoded.
type Frame struct {
	Index int
	Image image.Image
	Err   error
}

type Sampler struct {
	source  port.FrameSource
	workers int
	logger  *zap.Logger
}

func NewSampler(source port.FrameSource, workers int, logger *zap.Logger) *Sampler {
	if workers < 1 {
		workers = 1
	}
	return &Sampler{source: source, workers: workers, logger: logger}
}

// FrameCount is the number of whole seconds in duration.
func FrameCount(duration float64) int {
	if math.IsNaN(duration) || duration <= 0 {
		return 0
	}
	return int(math.Floor(duration))
}

// Sequential returns the frames of video in increasing index order. Each
// frame is decoded only when the consumer asks for it, so a caller can
// finish working on frame i before frame i+1 is extracted. The sequence can
// be ranged over once.
func (s *Sampler) Sequential(ctx context.Context, video string) (iter.Seq[Frame], int, error) {
	n, err := s.count(ctx, video)
	if err != nil {
		return nil, 0, err
	}

	var used atomic.Bool
	seq := func(yield func(Frame) bool) {
		if used.Swap(true) {
			return
		}
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return
			}
			if !yield(s.extract(ctx, video, i)) {
				return
			}
		}
	}
	return seq, n, nil
}

// Batch requests every frame of video concurrently and calls handle as each
// one completes. handle may run on several goroutines at once and sees frames
// in completion order. Batch returns once all frames were handled.
func (s *Sampler) Batch(ctx context.Context, video string, handle func(Frame)) (int, error) {
	n, err := s.count(ctx, video)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			handle(s.extract(gctx, video, i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return n, err
	}
	return n, nil
}

func (s *Sampler) count(ctx context.Context, video string) (int, error) {
	duration, err := s.source.Duration(ctx, video)
	if err != nil {
		return 0, fmt.Errorf("probe duration of %s: %w", video, err)
	}
	n := FrameCount(duration)
	s.logger.Debug("sampling video",
		zap.String("video", video),
		zap.Float64("duration_secs", duration),
		zap.Int("frames", n),
	)
	return n, nil
}

func (s *Sampler) extract(ctx context.Context, video string, index int) Frame {
	img, err := s.source.FrameAt(ctx, video, index)
	if err == nil && img == nil {
		err = fmt.Errorf("no image returned")
	}
	if err != nil {
		s.logger.Warn("frame extraction failed",
			zap.String("video", video),
			zap.Int("frame", index),
			zap.Error(err),
		)
		metrics.FramesSkippedTotal.WithLabelValues("extraction").Inc()
		return Frame{Index: index, Err: fmt.Errorf("%w: frame %d: %v", entity.ErrFrameExtraction, index, err)}
	}
	metrics.FramesSampledTotal.Inc()
	return Frame{Index: index, Image: img}
}
