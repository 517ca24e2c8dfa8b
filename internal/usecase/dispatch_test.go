package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCapturer struct {
	result *CaptureResult
}

func (s *stubCapturer) Execute(context.Context, entity.CaptureRequest) *CaptureResult {
	return s.result
}

type stubExporter struct {
	result *ExportResult
	err    error
}

func (s *stubExporter) Execute(context.Context, entity.ExportRequest) (*ExportResult, error) {
	return s.result, s.err
}

type stubRelabeler struct {
	result *RelabelResult
	err    error
}

func (s *stubRelabeler) Execute(context.Context, entity.RelabelRequest) (*RelabelResult, error) {
	return s.result, s.err
}

type stubAnnotator struct {
	err error
}

func (s *stubAnnotator) Execute(_ context.Context, req entity.AnnotateRequest) (entity.DatasetStatus, error) {
	return entity.DatasetStatus{Name: req.Dataset, FrameCount: 1}, s.err
}

type dispatchFixture struct {
	repo     *fakeRepo
	status   *fakeStatusPublisher
	dlq      *fakeDLQ
	notifier *fakeNotifier
	capture  *stubCapturer
	export   *stubExporter
	relabel  *stubRelabeler
	annotate *stubAnnotator
	uc       *DispatchUseCase
}

func newDispatchFixture() *dispatchFixture {
	f := &dispatchFixture{
		repo:     newFakeRepo(),
		status:   &fakeStatusPublisher{},
		dlq:      &fakeDLQ{},
		notifier: &fakeNotifier{},
		capture:  &stubCapturer{result: &CaptureResult{}},
		export:   &stubExporter{result: &ExportResult{}},
		relabel:  &stubRelabeler{result: &RelabelResult{}},
		annotate: &stubAnnotator{},
	}
	f.uc = NewDispatchUseCase(f.repo, f.capture, f.export, f.relabel, f.annotate, f.status, f.dlq, f.notifier, zap.NewNop())
	return f
}

func encode(t *testing.T, msg entity.RequestMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestDispatchMalformedMessageGoesToDLQ(t *testing.T) {
	f := newDispatchFixture()

	err := f.uc.Execute(context.Background(), []byte("{not json"))
	require.NoError(t, err)

	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "unmarshal_error")
	assert.Empty(t, f.status.msgs)
	assert.Empty(t, f.repo.jobs)
}

func TestDispatchInvalidRequestGoesToDLQ(t *testing.T) {
	cases := []entity.RequestMessage{
		{JobID: uuid.New(), Kind: "train"},
		{JobID: uuid.New(), Kind: entity.JobKindCapture, Capture: &entity.CaptureRequest{}},
		{JobID: uuid.New(), Kind: entity.JobKindExport},
		{JobID: uuid.New(), Kind: entity.JobKindRelabel},
		{JobID: uuid.New(), Kind: entity.JobKindAnnotate, Annotate: &entity.AnnotateRequest{Dataset: "a"}},
		{JobID: uuid.New(), Kind: entity.JobKindAnnotate, Annotate: &entity.AnnotateRequest{Dataset: "a", Image: "../b/0.png"}},
	}
	for i, msg := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			f := newDispatchFixture()
			require.NoError(t, f.uc.Execute(context.Background(), encode(t, msg)))
			require.Len(t, f.dlq.reasons, 1)
			assert.Contains(t, f.dlq.reasons[0], "invalid_request")
			assert.Empty(t, f.repo.jobs)
		})
	}
}

func TestDispatchCaptureCompletes(t *testing.T) {
	f := newDispatchFixture()
	f.capture.result = &CaptureResult{Videos: []VideoOutcome{
		{Video: "a", Dataset: entity.Dataset{Name: "a", Dir: "/d/a", FrameCount: 3}},
		{Video: "b", Err: entity.ErrDirectoryCreation},
	}}
	jobID := uuid.New()

	err := f.uc.Execute(context.Background(), encode(t, entity.RequestMessage{
		JobID: jobID,
		Kind:  entity.JobKindCapture,
		Capture: &entity.CaptureRequest{Videos: []entity.VideoSource{
			{Path: "/v/a.mp4"}, {Path: "/v/b.mp4"},
		}},
	}))
	require.NoError(t, err)

	assert.Equal(t, []entity.JobStatus{entity.JobStatusPending, entity.JobStatusProcessing, entity.JobStatusCompleted}, f.repo.history)
	job := f.repo.jobs[jobID]
	assert.Equal(t, 2, job.DatasetCount)
	assert.Equal(t, 3, job.FrameCount)

	require.Len(t, f.status.msgs, 1)
	st := f.status.msgs[0]
	assert.Equal(t, entity.JobStatusCompleted, st.Status)
	assert.Equal(t, entity.JobKindCapture, st.Kind)
	require.Len(t, st.Datasets, 2)
	assert.Empty(t, st.Datasets[0].Error)
	assert.NotEmpty(t, st.Datasets[1].Error)
	assert.Empty(t, f.dlq.reasons)
}

func TestDispatchCaptureWithNoDatasetFails(t *testing.T) {
	f := newDispatchFixture()
	f.capture.result = &CaptureResult{Videos: []VideoOutcome{{Video: "a", Err: entity.ErrEmptyDataset}}}

	err := f.uc.Execute(context.Background(), encode(t, entity.RequestMessage{
		JobID:     uuid.New(),
		Kind:      entity.JobKindCapture,
		UserEmail: "user@example.com",
		Capture:   &entity.CaptureRequest{Videos: []entity.VideoSource{{Path: "/v/a.mp4"}}},
	}))
	require.NoError(t, err)

	require.Len(t, f.status.msgs, 1)
	assert.Equal(t, entity.JobStatusFailed, f.status.msgs[0].Status)
	assert.Contains(t, f.status.msgs[0].ErrorMessage, "no video captured")
	require.Len(t, f.dlq.reasons, 1)
	assert.Equal(t, []string{"user@example.com:capture"}, f.notifier.sent)
}

func TestDispatchExportFailureNotifies(t *testing.T) {
	f := newDispatchFixture()
	f.export.err = fmt.Errorf("%w: disk full", entity.ErrDestinationWrite)
	jobID := uuid.New()

	err := f.uc.Execute(context.Background(), encode(t, entity.RequestMessage{
		JobID:     jobID,
		Kind:      entity.JobKindExport,
		UserEmail: "user@example.com",
		Export:    &entity.ExportRequest{Datasets: []string{"a"}, Destination: entity.ExportDestination{Path: "/out.zip"}},
	}))
	require.NoError(t, err)

	assert.Equal(t, entity.JobStatusFailed, f.repo.jobs[jobID].Status)
	assert.Contains(t, f.repo.jobs[jobID].ErrorMessage, "disk full")
	require.Len(t, f.dlq.reasons, 1)
	assert.Equal(t, []string{"user@example.com:export"}, f.notifier.sent)
}

func TestDispatchExportReportsArchive(t *testing.T) {
	f := newDispatchFixture()
	f.export.result = &ExportResult{Archive: "exports/a.zip", Entries: 5, Assets: 5}

	err := f.uc.Execute(context.Background(), encode(t, entity.RequestMessage{
		JobID:  uuid.New(),
		Kind:   entity.JobKindExport,
		Export: &entity.ExportRequest{Datasets: []string{"a"}, Destination: entity.ExportDestination{ObjectKey: "exports/a.zip"}},
	}))
	require.NoError(t, err)

	require.Len(t, f.status.msgs, 1)
	assert.Equal(t, "exports/a.zip", f.status.msgs[0].Archive)
	assert.Equal(t, 5, f.status.msgs[0].FrameCount)
}

func TestDispatchRelabelAndAnnotate(t *testing.T) {
	f := newDispatchFixture()
	f.relabel.result = &RelabelResult{Rewritten: 4, Datasets: []entity.DatasetStatus{{Name: "a", FrameCount: 4}}}

	require.NoError(t, f.uc.Execute(context.Background(), encode(t, entity.RequestMessage{
		JobID:   uuid.New(),
		Kind:    entity.JobKindRelabel,
		Relabel: &entity.RelabelRequest{Datasets: []string{"a"}, Label: "dog"},
	})))
	require.NoError(t, f.uc.Execute(context.Background(), encode(t, entity.RequestMessage{
		JobID:    uuid.New(),
		Kind:     entity.JobKindAnnotate,
		Annotate: &entity.AnnotateRequest{Dataset: "a", Image: "0.jpg"},
	})))

	require.Len(t, f.status.msgs, 2)
	assert.Equal(t, 4, f.status.msgs[0].FrameCount)
	assert.Equal(t, entity.JobKindAnnotate, f.status.msgs[1].Kind)
	assert.Equal(t, entity.JobStatusCompleted, f.status.msgs[1].Status)

	f.annotate.err = errors.New("sidecar missing")
	require.NoError(t, f.uc.Execute(context.Background(), encode(t, entity.RequestMessage{
		JobID:    uuid.New(),
		Kind:     entity.JobKindAnnotate,
		Annotate: &entity.AnnotateRequest{Dataset: "a", Image: "0.jpg"},
	})))
	assert.Equal(t, entity.JobStatusFailed, f.status.msgs[2].Status)
	assert.Empty(t, f.notifier.sent)
}

func TestDispatchSkipsCompletedRedelivery(t *testing.T) {
	f := newDispatchFixture()
	f.relabel.result = &RelabelResult{Rewritten: 1}
	raw := encode(t, entity.RequestMessage{
		JobID:   uuid.New(),
		Kind:    entity.JobKindRelabel,
		Relabel: &entity.RelabelRequest{Datasets: []string{"a"}, Label: "dog"},
	})

	require.NoError(t, f.uc.Execute(context.Background(), raw))
	require.NoError(t, f.uc.Execute(context.Background(), raw))

	assert.Len(t, f.status.msgs, 1)
}
