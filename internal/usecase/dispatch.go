package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Capturer interface {
	Execute(ctx context.Context, req entity.CaptureRequest) *CaptureResult
}

type Exporter interface {
	Execute(ctx context.Context, req entity.ExportRequest) (*ExportResult, error)
}

type Relabeler interface {
	Execute(ctx context.Context, req entity.RelabelRequest) (*RelabelResult, error)
}

type Annotator interface {
	Execute(ctx context.Context, req entity.AnnotateRequest) (entity.DatasetStatus, error)
}

// DispatchUseCase is the request queue handler. It decodes the envelope,
// tracks the job and hands the body to the matching use case.
type DispatchUseCase struct {
	repo      port.JobRepository
	capture   Capturer
	export    Exporter
	relabel   Relabeler
	annotate  Annotator
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
}

func NewDispatchUseCase(
	repo port.JobRepository,
	capture Capturer,
	export Exporter,
	relabel Relabeler,
	annotate Annotator,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
) *DispatchUseCase {
	return &DispatchUseCase{
		repo:      repo,
		capture:   capture,
		export:    export,
		relabel:   relabel,
		annotate:  annotate,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
	}
}

// outcome is what a finished job reports on the status queue.
type outcome struct {
	datasets []entity.DatasetStatus
	archive  string
	frames   int
	skipped  int
}

// Execute handles one raw request. A returned error means the job record
// could not be kept; every processing failure is reported instead through
// the status queue, the DLQ and the notifier, and nil is returned.
func (uc *DispatchUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "DispatchUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.RequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("unknown", "dlq").Inc()
		return nil
	}
	if err := validate(msg); err != nil {
		uc.logger.Error("invalid request", zap.Error(err), zap.String("kind", string(msg.Kind)))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_request: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues(string(msg.Kind), "dlq").Inc()
		return nil
	}

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil || job == nil {
		job = entity.NewJob(msg.JobID, msg.Kind)
		if err := uc.repo.Create(ctx, job); err != nil {
			uc.logger.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.kind", string(msg.Kind)),
	)
	log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("kind", string(msg.Kind)))

	if job.Status == entity.JobStatusCompleted {
		log.Warn("job already completed, dropping redelivery")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	out, runErr := uc.run(ctx, msg, log)
	if runErr != nil {
		span.RecordError(runErr)
		uc.handleFailure(ctx, job, msg, rawMsg, out, runErr.Error(), log)
		return nil
	}

	job.MarkCompleted(len(out.datasets), out.frames, out.skipped, out.archive)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}
	uc.publishStatus(ctx, job, out, log)

	metrics.JobsProcessedTotal.WithLabelValues(string(msg.Kind), "completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	log.Info("job completed successfully",
		zap.Int("datasets", len(out.datasets)),
		zap.Int("frame_count", out.frames),
		zap.Int("skipped", out.skipped),
		zap.String("archive", out.archive),
	)
	return nil
}

func (uc *DispatchUseCase) run(ctx context.Context, msg entity.RequestMessage, log *zap.Logger) (outcome, error) {
	switch msg.Kind {
	case entity.JobKindCapture:
		res := uc.capture.Execute(ctx, *msg.Capture)
		out := outcome{frames: res.FrameCount(), skipped: res.SkippedCount()}
		var errs []error
		for _, v := range res.Videos {
			st := entity.DatasetStatus{
				Name:       v.Video,
				Dir:        v.Dataset.Dir,
				FrameCount: v.Dataset.FrameCount,
				Skipped:    len(v.Skipped),
			}
			if v.Err != nil {
				st.Error = v.Err.Error()
				errs = append(errs, fmt.Errorf("%s: %w", v.Video, v.Err))
			}
			out.datasets = append(out.datasets, st)
		}
		if res.Captured() == 0 {
			return out, fmt.Errorf("no video captured: %w", errors.Join(errs...))
		}
		if len(errs) > 0 {
			log.Warn("some videos failed to capture", zap.Error(errors.Join(errs...)))
		}
		return out, nil

	case entity.JobKindExport:
		res, err := uc.export.Execute(ctx, *msg.Export)
		if err != nil {
			return outcome{}, err
		}
		return outcome{
			datasets: res.Datasets,
			archive:  res.Archive,
			frames:   res.Entries,
			skipped:  len(res.Skipped),
		}, nil

	case entity.JobKindRelabel:
		res, err := uc.relabel.Execute(ctx, *msg.Relabel)
		if err != nil {
			return outcome{}, err
		}
		return outcome{datasets: res.Datasets, frames: res.Rewritten, skipped: len(res.Skipped)}, nil

	case entity.JobKindAnnotate:
		st, err := uc.annotate.Execute(ctx, *msg.Annotate)
		if err != nil {
			return outcome{}, err
		}
		return outcome{datasets: []entity.DatasetStatus{st}, frames: st.FrameCount}, nil
	}
	return outcome{}, fmt.Errorf("unsupported job kind %q", msg.Kind)
}

func (uc *DispatchUseCase) handleFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.RequestMessage,
	rawMsg []byte,
	out outcome,
	errMsg string,
	log *zap.Logger,
) {
	log.Error("job failed", zap.String("error", errMsg))

	job.MarkFailed(errMsg)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to FAILED", zap.Error(err))
	}

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)
	uc.publishStatus(ctx, job, out, log)

	metrics.JobsProcessedTotal.WithLabelValues(string(msg.Kind), "failed").Inc()

	if msg.UserEmail != "" {
		if err := uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), string(msg.Kind), errMsg); err != nil {
			log.Warn("failure notification not sent", zap.Error(err))
		}
	}
}

func (uc *DispatchUseCase) publishStatus(ctx context.Context, job *entity.Job, out outcome, log *zap.Logger) {
	status := entity.StatusMessage{
		JobID:        job.ID,
		Kind:         job.Kind,
		Status:       job.Status,
		Datasets:     out.datasets,
		Archive:      out.archive,
		FrameCount:   out.frames,
		SkippedCount: out.skipped,
		ErrorMessage: job.ErrorMessage,
	}
	if err := uc.publisher.PublishStatus(ctx, status); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func validate(msg entity.RequestMessage) error {
	switch msg.Kind {
	case entity.JobKindCapture:
		if msg.Capture == nil || len(msg.Capture.Videos) == 0 {
			return errors.New("capture request without videos")
		}
	case entity.JobKindExport:
		if msg.Export == nil {
			return errors.New("export request without body")
		}
	case entity.JobKindRelabel:
		if msg.Relabel == nil {
			return errors.New("relabel request without body")
		}
	case entity.JobKindAnnotate:
		if msg.Annotate == nil || msg.Annotate.Dataset == "" || msg.Annotate.Image == "" {
			return errors.New("annotate request without dataset or image")
		}
		if err := entity.CheckImageName(msg.Annotate.Image); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown job kind %q", msg.Kind)
	}
	return nil
}
