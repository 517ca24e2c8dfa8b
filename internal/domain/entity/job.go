package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobKindCapture  JobKind = "capture"
	JobKindExport   JobKind = "export"
	JobKindRelabel  JobKind = "relabel"
	// JobKindAnnotate edits the box of a single frame.
	JobKindAnnotate JobKind = "annotate"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

type Job struct {
	ID           uuid.UUID
	Kind         JobKind
	Status       JobStatus
	DatasetCount int
	FrameCount   int
	SkippedCount int
	ArchiveKey   string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewJob(id uuid.UUID, kind JobKind) *Job {
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		Kind:      kind,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(datasets, frames, skipped int, archiveKey string) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.DatasetCount = datasets
	j.FrameCount = frames
	j.SkippedCount = skipped
	j.ArchiveKey = archiveKey
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}
