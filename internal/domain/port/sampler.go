package port

import (
	"context"
	"image"
)

// FrameSource decodes single frames out of a video with exact seeking.
type FrameSource interface {
	Duration(ctx context.Context, videoPath string) (float64, error)
	FrameAt(ctx context.Context, videoPath string, second int) (image.Image, error)
}
