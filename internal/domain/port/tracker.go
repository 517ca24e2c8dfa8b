package port

import (
	"context"
	"image"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
)

// ObjectTracker is a single-object visual tracking capability. Every run
// opens its own session seeded on the first frame.
type ObjectTracker interface {
	NewSession(first image.Image, seed entity.NormalizedRect) (TrackingSession, error)
}

// TrackingSession propagates an observation from one frame to the next.
// Track returns an error when the object cannot be found in frame.
type TrackingSession interface {
	Track(ctx context.Context, frame image.Image, prior entity.NormalizedRect) (entity.NormalizedRect, error)
	Close() error
}
