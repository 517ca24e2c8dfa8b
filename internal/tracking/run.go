// Package tracking drives a single-object tracking capability across the
// frames of one capture run.
//
// A run starts Uninitialized, enters Tracking when it is seeded with the
// template rectangle on frame 0 and moves to Lost the first time the
// capability fails. Lost is absorbing: no later frame is handed to the
// capability again.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/coords"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
)

type State int

const (
	StateUninitialized State = iota
	StateTracking
	StateLost
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateTracking:
		return "tracking"
	case StateLost:
		return "lost"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Redetector is the hook for re-acquiring a lost object. Runs never call it
// today; losing the object ends the run.
type Redetector interface {
	Redetect(ctx context.Context, frame image.Image) (entity.NormalizedRect, bool)
}

var errNotSeeded = errors.New("tracking run not seeded")

// Run is the state of one tracking run. It is not safe for concurrent use:
// each step depends on the observation left by the previous one.
type Run struct {
	tracker    port.ObjectTracker
	convention coords.Convention

	session     port.TrackingSession
	state       State
	observation entity.NormalizedRect
	lostAt      int
	lostErr     error
}

func NewRun(tracker port.ObjectTracker, convention coords.Convention) *Run {
	return &Run{tracker: tracker, convention: convention, lostAt: -1}
}

func (r *Run) State() State { return r.state }

// Observation is the last successful observation, in tracker space.
func (r *Run) Observation() entity.NormalizedRect { return r.observation }

// LostAt is the index of the frame on which tracking was lost, or -1.
func (r *Run) LostAt() int { return r.lostAt }

// Seed converts the template rectangle to tracker space and opens a session
// on the first frame. A failed seed leaves the run Lost.
func (r *Run) Seed(first image.Image, template entity.Coordinates) error {
	if r.state != StateUninitialized {
		return fmt.Errorf("seed run in state %s", r.state)
	}
	if coords.IsNoSelection(template) {
		r.lose(0, fmt.Errorf("empty template rectangle"))
		return r.lostErr
	}

	size := Size(first)
	seed := coords.ToNormalizedTrackerSpace(template, size)
	session, err := r.tracker.NewSession(first, seed)
	if err != nil {
		r.lose(0, fmt.Errorf("open tracking session: %w", err))
		return r.lostErr
	}

	r.session = session
	r.observation = seed
	r.state = StateTracking
	return nil
}

// Step feeds frame index to the capability with the previous observation as
// prior and returns the new box in pixel space. Once the run is Lost every
// call returns an error wrapping entity.ErrTrackingLost.
func (r *Run) Step(ctx context.Context, index int, frame image.Image) (entity.Coordinates, error) {
	switch r.state {
	case StateUninitialized:
		r.lose(index, errNotSeeded)
		return entity.Coordinates{}, r.lostErr
	case StateLost:
		return entity.Coordinates{}, r.lostErr
	}

	next, err := r.session.Track(ctx, frame, r.observation)
	if err == nil && next.Empty() {
		err = errors.New("empty observation")
	}
	if err != nil {
		r.lose(index, err)
		return entity.Coordinates{}, r.lostErr
	}

	r.observation = next
	return r.convention.FromTracker(next, Size(frame)), nil
}

// Close releases the capability session.
func (r *Run) Close() error {
	if r.session == nil {
		return nil
	}
	err := r.session.Close()
	r.session = nil
	return err
}

func (r *Run) lose(index int, cause error) {
	r.state = StateLost
	r.lostAt = index
	r.lostErr = fmt.Errorf("%w at frame %d: %v", entity.ErrTrackingLost, index, cause)
	if r.session != nil {
		_ = r.session.Close()
		r.session = nil
	}
}

// Size is the pixel size of img.
func Size(img image.Image) entity.Size {
	b := img.Bounds()
	return entity.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}
