package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/coords"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/archive"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/config"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/email"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/filestore"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-dataset-service/internal/infra/minio"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/tracker"
	"github.com/fiapx/fiapx-dataset-service/internal/registry"
	"github.com/fiapx/fiapx-dataset-service/internal/sampling"
	"github.com/fiapx/fiapx-dataset-service/internal/usecase"
	"github.com/fiapx/fiapx-dataset-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-dataset-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath)
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	var datasets port.DatasetRegistry = postgres.NewDatasetRegistry(pool)
	if cfg.RegistryBackend == "memory" {
		log.Warn("using in-memory dataset registry, datasets are forgotten on restart")
		datasets = registry.NewMemory()
	}
	known, err := datasets.List(ctx)
	fatalOnErr(err, "list datasets")
	log.Info("dataset registry ready",
		zap.String("backend", cfg.RegistryBackend),
		zap.Int("datasets", len(known)),
	)

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		ExportBucket: cfg.MinIOExportBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Pipeline adapters
	convention, err := coords.ParseConvention(cfg.AnnotationYConvention)
	fatalOnErr(err, "parse annotation convention")

	source := ffmpeg.NewSource(cfg.FFmpegPath, cfg.FFprobePath, log)
	fatalOnErr(source.AssertReady(), "check ffmpeg")

	objectTracker, err := newTracker(cfg)
	fatalOnErr(err, "create tracker")

	store, err := filestore.NewStore(cfg.DatasetRoot, cfg.FrameFormat, log)
	fatalOnErr(err, "create dataset store")
	fatalOnErr(os.MkdirAll(cfg.TempDir, 0755), "create temp dir")

	repo := postgres.NewJobRepository(pool)
	sampler := sampling.NewSampler(source, cfg.SamplerWorkers, log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use cases
	capture := usecase.NewCaptureDatasetsUseCase(
		storage, sampler, objectTracker, store, datasets, log,
		usecase.CaptureConfig{
			TempDir:          cfg.TempDir,
			VideoConcurrency: cfg.CaptureVideoConcurrency,
			Convention:       convention,
		},
	)
	export := usecase.NewExportDatasetsUseCase(
		datasets, store, archive.NewZipCreator(), archive.NewDestination(storage), log, cfg.TempDir,
	)
	relabel := usecase.NewRelabelDatasetsUseCase(datasets, store, log)
	annotate := usecase.NewAnnotateFrameUseCase(datasets, store, log)

	uc := usecase.NewDispatchUseCase(
		repo, capture, export, relabel, annotate,
		statusPub, dlqPub, notifier,
		log,
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("fiapx-dataset-service started, consuming requests",
		zap.String("tracker", cfg.TrackerBackend),
		zap.String("convention", string(convention)),
		zap.String("dataset_root", cfg.DatasetRoot),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-dataset-service stopped")
}

func templateConfig(cfg *config.Config) tracker.Config {
	return tracker.Config{
		MinScore:     cfg.TrackerMinScore,
		SearchMargin: cfg.TrackerSearchMargin,
		TemplateSize: cfg.TrackerTemplateSize,
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
