package entity

import "github.com/google/uuid"

// RequestMessage is the inbound envelope on the dataset request queue.
// Exactly one request body is set, matching Kind.
type RequestMessage struct {
	JobID     uuid.UUID        `json:"job_id"`
	Kind      JobKind          `json:"kind"`
	UserEmail string           `json:"user_email,omitempty"`
	Capture   *CaptureRequest  `json:"capture,omitempty"`
	Export    *ExportRequest   `json:"export,omitempty"`
	Relabel   *RelabelRequest  `json:"relabel,omitempty"`
	Annotate  *AnnotateRequest `json:"annotate,omitempty"`
}

// VideoSource is a video handle: either a local path or an object key in the
// upload bucket. Name defaults to the base name of the handle.
type VideoSource struct {
	Name      string `json:"name,omitempty"`
	Path      string `json:"path,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
}

// TemplateSelection is the user-drawn rectangle over the first-frame preview.
type TemplateSelection struct {
	Rect        Rect `json:"rect"`
	DisplaySize Size `json:"display_size"`
}

type CaptureRequest struct {
	Videos   []VideoSource      `json:"videos"`
	Template *TemplateSelection `json:"template,omitempty"`
}

// ExportDestination is where the finished archive goes: a local path or an
// object key in the export bucket.
type ExportDestination struct {
	Path      string `json:"path,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
}

type ExportRequest struct {
	Datasets    []string          `json:"datasets"`
	Destination ExportDestination `json:"destination"`
}

type RelabelRequest struct {
	Datasets []string `json:"datasets"`
	Label    string   `json:"label"`
}

// AnnotateRequest replaces the annotations of one frame of a dataset.
type AnnotateRequest struct {
	Dataset    string     `json:"dataset"`
	Image      string     `json:"image"`
	Annotation Annotation `json:"annotation"`
}

// DatasetStatus summarizes one dataset touched by a job.
type DatasetStatus struct {
	Name       string `json:"name"`
	Dir        string `json:"dir,omitempty"`
	FrameCount int    `json:"frame_count"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

// StatusMessage is published to the status queue when a job finishes.
type StatusMessage struct {
	JobID        uuid.UUID       `json:"job_id"`
	Kind         JobKind         `json:"kind"`
	Status       JobStatus       `json:"status"`
	Datasets     []DatasetStatus `json:"datasets,omitempty"`
	Archive      string          `json:"archive,omitempty"`
	FrameCount   int             `json:"frame_count"`
	SkippedCount int             `json:"skipped_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
}
