//go:build gocv

// Package opencv adapts OpenCV's MIL tracker to the tracking port. It needs
// OpenCV installed and is only compiled with the gocv build tag.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/coords"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"gocv.io/x/gocv"
)

var ErrObjectNotFound = errors.New("mil tracker lost the object")

type MILTracker struct{}

func NewMILTracker() *MILTracker {
	return &MILTracker{}
}

func (t *MILTracker) NewSession(first image.Image, seed entity.NormalizedRect) (port.TrackingSession, error) {
	mat, err := gocv.ImageToMatRGB(first)
	if err != nil {
		return nil, fmt.Errorf("convert first frame: %w", err)
	}
	defer mat.Close()

	size := sizeOf(first)
	box := coords.Clamp(coords.FromNormalizedTopLeft(seed, size), size)
	if box.Width <= 0 || box.Height <= 0 {
		return nil, fmt.Errorf("template rectangle %+v outside frame", box)
	}

	tr := gocv.NewTrackerMIL()
	if !tr.Init(mat, image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height)) {
		tr.Close()
		return nil, errors.New("mil tracker init failed")
	}
	return &milSession{tracker: tr}, nil
}

// milSession keeps its own model of the object, so the prior passed to
// Track is not used.
type milSession struct {
	tracker gocv.Tracker
}

func (s *milSession) Track(ctx context.Context, frame image.Image, _ entity.NormalizedRect) (entity.NormalizedRect, error) {
	if err := ctx.Err(); err != nil {
		return entity.NormalizedRect{}, err
	}
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return entity.NormalizedRect{}, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	rect, ok := s.tracker.Update(mat)
	if !ok || rect.Empty() {
		return entity.NormalizedRect{}, ErrObjectNotFound
	}

	size := sizeOf(frame)
	found := coords.Clamp(entity.Coordinates{
		X:      rect.Min.X,
		Y:      rect.Min.Y,
		Width:  rect.Dx(),
		Height: rect.Dy(),
	}, size)
	return coords.ToNormalizedTrackerSpace(found, size), nil
}

func (s *milSession) Close() error {
	return s.tracker.Close()
}

func sizeOf(img image.Image) entity.Size {
	b := img.Bounds()
	return entity.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}
