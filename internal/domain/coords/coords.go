// Package coords converts bounding boxes between the three spaces the
// pipeline deals with: display space (a rectangle drawn over a scaled
// preview), normalized tracker space (bottom-left origin, 0..1) and pixel
// space (top-left origin, whole pixels), which is what sidecars store.
package coords

import (
	"fmt"
	"math"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
)

// Convention selects how tracker observations are mapped back to pixel space.
type Convention string

const (
	// ConventionLegacy scales the observation straight to pixels without
	// undoing the vertical flip applied on the way in. Stored boxes keep the
	// placement existing datasets were produced with.
	ConventionLegacy Convention = "legacy"
	// ConventionTopLeft undoes the flip, so a box survives the
	// pixel -> tracker -> pixel round trip unchanged.
	ConventionTopLeft Convention = "top-left"
)

// ParseConvention accepts the config spelling of a Convention. The empty
// string means ConventionLegacy.
func ParseConvention(s string) (Convention, error) {
	switch Convention(s) {
	case "", ConventionLegacy:
		return ConventionLegacy, nil
	case ConventionTopLeft:
		return ConventionTopLeft, nil
	default:
		return "", fmt.Errorf("unknown coordinate convention %q", s)
	}
}

// ToPixelSpace scales a rectangle drawn over a preview of displaySize to the
// native pixel grid of an image of imageSize. An empty selection, or an empty
// display size, yields the zero Coordinates: no selection was made.
func ToPixelSpace(display entity.Rect, displaySize, imageSize entity.Size) entity.Coordinates {
	if display.Empty() || displaySize.Empty() || imageSize.Empty() {
		return entity.Coordinates{}
	}
	scaleX := imageSize.Width / displaySize.Width
	scaleY := imageSize.Height / displaySize.Height
	return entity.Coordinates{
		X:      round(display.X * scaleX),
		Y:      round(display.Y * scaleY),
		Width:  round(display.Width * scaleX),
		Height: round(display.Height * scaleY),
	}
}

// ToNormalizedTrackerSpace divides by the image size and flips vertically:
// tracker space has its origin at the bottom-left corner.
func ToNormalizedTrackerSpace(px entity.Coordinates, imageSize entity.Size) entity.NormalizedRect {
	if imageSize.Empty() {
		return entity.NormalizedRect{}
	}
	normY := float64(px.Y) / imageSize.Height
	normH := float64(px.Height) / imageSize.Height
	return entity.NormalizedRect{
		X:      float64(px.X) / imageSize.Width,
		Y:      1 - normY - normH,
		Width:  float64(px.Width) / imageSize.Width,
		Height: normH,
	}
}

// FromNormalizedTrackerSpace is the legacy back-conversion: each axis is
// multiplied by the image size and truncated, and the vertical flip is NOT
// undone.
func FromNormalizedTrackerSpace(n entity.NormalizedRect, imageSize entity.Size) entity.Coordinates {
	return entity.Coordinates{
		X:      int(n.X * imageSize.Width),
		Y:      int(n.Y * imageSize.Height),
		Width:  int(n.Width * imageSize.Width),
		Height: int(n.Height * imageSize.Height),
	}
}

// FromNormalizedTopLeft is the exact inverse of ToNormalizedTrackerSpace.
func FromNormalizedTopLeft(n entity.NormalizedRect, imageSize entity.Size) entity.Coordinates {
	return entity.Coordinates{
		X:      round(n.X * imageSize.Width),
		Y:      round((1 - n.Y - n.Height) * imageSize.Height),
		Width:  round(n.Width * imageSize.Width),
		Height: round(n.Height * imageSize.Height),
	}
}

// FromTracker maps an observation back to pixel space under c.
func (c Convention) FromTracker(n entity.NormalizedRect, imageSize entity.Size) entity.Coordinates {
	if c == ConventionTopLeft {
		return FromNormalizedTopLeft(n, imageSize)
	}
	return FromNormalizedTrackerSpace(n, imageSize)
}

// Clamp fits c inside an image of imageSize. Width and height never go below zero.
func Clamp(c entity.Coordinates, imageSize entity.Size) entity.Coordinates {
	w, h := int(imageSize.Width), int(imageSize.Height)
	x0 := min(max(c.X, 0), w)
	y0 := min(max(c.Y, 0), h)
	x1 := min(max(c.X+c.Width, x0), w)
	y1 := min(max(c.Y+c.Height, y0), h)
	return entity.Coordinates{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// DefaultAnnotation is the box given to frames captured without tracking:
// half the image on each axis, centered.
func DefaultAnnotation(imageSize entity.Size) entity.Coordinates {
	w := int(imageSize.Width / 2)
	h := int(imageSize.Height / 2)
	return entity.Coordinates{
		X:      int((imageSize.Width - float64(w)) / 2),
		Y:      int((imageSize.Height - float64(h)) / 2),
		Width:  w,
		Height: h,
	}
}

func round(v float64) int {
	return int(math.Round(v))
}

// IsNoSelection reports whether c is the "nothing was selected" value
// produced by ToPixelSpace.
func IsNoSelection(c entity.Coordinates) bool {
	return c.IsZero() || c.Width <= 0 || c.Height <= 0
}
