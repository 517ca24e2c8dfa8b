package usecase_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/coords"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/archive"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/email"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/filestore"
	miniostorage "github.com/fiapx/fiapx-dataset-service/internal/infra/minio"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/tracker"
	"github.com/fiapx/fiapx-dataset-service/internal/sampling"
	"github.com/fiapx/fiapx-dataset-service/internal/usecase"
	"github.com/fiapx/fiapx-dataset-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func TestCaptureThenExportEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	videoPath := filepath.Join(t.TempDir(), "clip.mp4")
	gen := exec.CommandContext(ctx, "ffmpeg", "-y", "-f", "lavfi",
		"-i", "testsrc=duration=3:size=320x240:rate=5",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", videoPath)
	out, err := gen.CombinedOutput()
	require.NoError(t, err, string(out))

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("datasets"),
		tcpostgres.WithUsername("dataset_user"),
		tcpostgres.WithPassword("dataset_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     minioEndpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UploadBucket: "uploads",
		ExportBucket: "exports",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)
	_, err = minioClient.FPutObject(ctx, "uploads", "user/clip.mp4", videoPath, miniogo.PutObjectOptions{ContentType: "video/mp4"})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "fiapx.dataset")
	require.NoError(t, err)
	defer pub.Close()

	log, _ := logger.New("debug")
	datasets := postgres.NewDatasetRegistry(pool)
	store, err := filestore.NewStore(t.TempDir(), filestore.FormatJPEG, log)
	require.NoError(t, err)
	source := ffmpeg.NewSource("ffmpeg", "ffprobe", log)

	capture := usecase.NewCaptureDatasetsUseCase(
		storage, sampling.NewSampler(source, 2, log), tracker.NewTemplateTracker(tracker.DefaultConfig()),
		store, datasets, log,
		usecase.CaptureConfig{TempDir: t.TempDir(), Convention: coords.ConventionLegacy},
	)
	export := usecase.NewExportDatasetsUseCase(
		datasets, store, archive.NewZipCreator(), archive.NewDestination(storage), log, t.TempDir(),
	)
	uc := usecase.NewDispatchUseCase(
		postgres.NewJobRepository(pool), capture, export,
		usecase.NewRelabelDatasetsUseCase(datasets, store, log),
		usecase.NewAnnotateFrameUseCase(datasets, store, log),
		rabbitmq.NewStatusPublisher(pub), rabbitmq.NewDLQPublisher(pub, "dataset.requests.dlq"),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
		log,
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "dataset.requests",
		Exchange:    "fiapx.dataset",
		DLQ:         "dataset.requests.dlq",
		StatusQueue: "dataset.status",
		Prefetch:    1,
		WorkerCount: 1,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()
	go consumer.Start(consumerCtx)

	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()
	statusMsgs, err := statusCh.Consume("dataset.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	waitStatus := func() entity.StatusMessage {
		t.Helper()
		select {
		case d := <-statusMsgs:
			var st entity.StatusMessage
			require.NoError(t, json.Unmarshal(d.Body, &st))
			return st
		case <-time.After(2 * time.Minute):
			t.Fatal("timeout waiting for status message")
			return entity.StatusMessage{}
		}
	}

	captureID := uuid.New()
	require.NoError(t, pub.PublishRequest(ctx, entity.RequestMessage{
		JobID:   captureID,
		Kind:    entity.JobKindCapture,
		Capture: &entity.CaptureRequest{Videos: []entity.VideoSource{{ObjectKey: "user/clip.mp4"}}},
	}))

	captured := waitStatus()
	require.Equal(t, captureID, captured.JobID)
	require.Equal(t, entity.JobStatusCompleted, captured.Status, captured.ErrorMessage)
	require.Len(t, captured.Datasets, 1)
	assert.Equal(t, "clip", captured.Datasets[0].Name)
	assert.Equal(t, 3, captured.FrameCount)

	exportID := uuid.New()
	require.NoError(t, pub.PublishRequest(ctx, entity.RequestMessage{
		JobID: exportID,
		Kind:  entity.JobKindExport,
		Export: &entity.ExportRequest{
			Datasets:    []string{"clip"},
			Destination: entity.ExportDestination{ObjectKey: "user/clip-export.zip"},
		},
	}))

	exported := waitStatus()
	require.Equal(t, exportID, exported.JobID)
	require.Equal(t, entity.JobStatusCompleted, exported.Status, exported.ErrorMessage)
	assert.Equal(t, "user/clip-export.zip", exported.Archive)

	obj, err := minioClient.GetObject(ctx, "exports", "user/clip-export.zip", miniogo.GetObjectOptions{})
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var images int
	var manifest bool
	for _, f := range zr.File {
		switch {
		case f.Name == usecase.ManifestName:
			manifest = true
		case strings.HasSuffix(f.Name, ".jpg"):
			images++
		}
	}
	assert.True(t, manifest)
	assert.Equal(t, 3, images)

	var dbStatus string
	var dbFrames int
	err = pool.QueryRow(ctx, "SELECT status, frame_count FROM dataset_jobs WHERE id=$1", captureID).Scan(&dbStatus, &dbFrames)
	require.NoError(t, err)
	assert.Equal(t, string(entity.JobStatusCompleted), dbStatus)
	assert.Equal(t, 3, dbFrames)

	_, err = os.Stat(captured.Datasets[0].Dir)
	assert.NoError(t, err)
}
