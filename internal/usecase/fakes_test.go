package usecase

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/filestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource serves solid frames of a fixed size for a fixed duration.
type fakeSource struct {
	mu          sync.Mutex
	duration    float64
	durationErr error
	width       int
	height      int
	fail        map[int]bool
	calls       []int
	paths       []string
}

func (f *fakeSource) Duration(_ context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return f.duration, f.durationErr
}

func (f *fakeSource) FrameAt(_ context.Context, _ string, second int) (image.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, second)
	failed := f.fail[second]
	f.mu.Unlock()
	if failed {
		return nil, errors.New("decode error")
	}
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(second * 10), G: 80, B: 160, A: 255})
		}
	}
	return img, nil
}

func (f *fakeSource) extracted() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

// scriptedTracker finds the object on the first succeed frames it is shown.
type scriptedTracker struct {
	succeed int
}

func (t *scriptedTracker) NewSession(_ image.Image, _ entity.NormalizedRect) (port.TrackingSession, error) {
	return &scriptedSession{left: t.succeed}, nil
}

type scriptedSession struct {
	left int
}

func (s *scriptedSession) Track(_ context.Context, _ image.Image, prior entity.NormalizedRect) (entity.NormalizedRect, error) {
	if s.left == 0 {
		return entity.NormalizedRect{}, errors.New("object not found")
	}
	s.left--
	return prior, nil
}

func (s *scriptedSession) Close() error { return nil }

type fakeObjects struct {
	mu         sync.Mutex
	downloaded []string
	uploaded   map[string][]byte
}

func (f *fakeObjects) DownloadVideo(_ context.Context, key, dest string) error {
	f.mu.Lock()
	f.downloaded = append(f.downloaded, key)
	f.mu.Unlock()
	return os.WriteFile(dest, []byte("video"), 0644)
}

func (f *fakeObjects) UploadArchive(_ context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploaded == nil {
		f.uploaded = make(map[string][]byte)
	}
	f.uploaded[key] = data
	return nil
}

// flakyStore fails CreateDataset on the given call numbers (1-based).
type flakyStore struct {
	*filestore.Store
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (s *flakyStore) CreateDataset(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failOn[s.calls]
	s.mu.Unlock()
	if fail {
		return "", entity.ErrDirectoryCreation
	}
	return s.Store.CreateDataset(ctx)
}

func newStore(t *testing.T) *filestore.Store {
	t.Helper()
	s, err := filestore.NewStore(t.TempDir(), filestore.FormatPNG, zap.NewNop())
	require.NoError(t, err)
	return s
}

type fakeRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.Job
	// history records every status a job was saved with.
	history []entity.JobStatus
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: make(map[uuid.UUID]entity.Job)}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	r.history = append(r.history, job.Status)
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	r.history = append(r.history, job.Status)
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &job, nil
}

type fakeStatusPublisher struct {
	msgs []entity.StatusMessage
}

func (p *fakeStatusPublisher) PublishStatus(_ context.Context, msg entity.StatusMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeDLQ struct {
	reasons []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct {
	sent []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, email, _, kind, _ string) error {
	n.sent = append(n.sent, email+":"+kind)
	return nil
}
