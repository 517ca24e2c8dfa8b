package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_dataset_jobs_processed_total",
		Help: "Total number of dataset jobs processed, by kind and status",
	}, []string{"kind", "status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_dataset_job_duration_seconds",
		Help:    "Duration of dataset job stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_dataset_frames_sampled_total",
		Help: "Total number of frames decoded from videos",
	})

	FramesPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_dataset_frames_persisted_total",
		Help: "Total number of frame records written, by capture mode",
	}, []string{"mode"})

	FramesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_dataset_frames_skipped_total",
		Help: "Total number of frames skipped, by reason",
	}, []string{"reason"})

	TrackingLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_dataset_tracking_lost_total",
		Help: "Total number of tracking runs that lost the object",
	})

	DatasetsCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_dataset_datasets_captured_total",
		Help: "Total number of video captures, by outcome",
	}, []string{"outcome"})

	ExportEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_dataset_export_entries_total",
		Help: "Total number of export manifest entries, archive assets and name collisions",
	}, []string{"type"})

	RelabeledFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_dataset_relabeled_frames_total",
		Help: "Total number of sidecars rewritten by relabel jobs",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_dataset_active_jobs",
		Help: "Number of dataset jobs currently being processed",
	})
)
