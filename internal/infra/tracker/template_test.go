package tracker

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/coords"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	frameW = 200
	frameH = 150
	block  = 20
)

// sceneWithBlock draws a 20x20 checkerboard with 4px cells at (x, y) on a
// flat gray background.
func sceneWithBlock(x, y int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frameW, frameH))
	for py := 0; py < frameH; py++ {
		for px := 0; px < frameW; px++ {
			img.Set(px, py, color.Gray{Y: 128})
		}
	}
	for py := 0; py < block; py++ {
		for px := 0; px < block; px++ {
			v := uint8(0)
			if (px/4+py/4)%2 == 0 {
				v = 255
			}
			img.Set(x+px, y+py, color.Gray{Y: v})
		}
	}
	return img
}

func flatScene() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frameW, frameH))
	for i := range img.Pix {
		img.Pix[i] = 128
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	return img
}

func seedAt(x, y int) entity.NormalizedRect {
	return coords.ToNormalizedTrackerSpace(
		entity.Coordinates{X: x, Y: y, Width: block, Height: block},
		entity.Size{Width: frameW, Height: frameH},
	)
}

func pixelBox(n entity.NormalizedRect) entity.Coordinates {
	return coords.FromNormalizedTopLeft(n, entity.Size{Width: frameW, Height: frameH})
}

func TestTrackFindsTemplateOnFirstFrame(t *testing.T) {
	first := sceneWithBlock(40, 30)
	seed := seedAt(40, 30)

	sess, err := NewTemplateTracker(DefaultConfig()).NewSession(first, seed)
	require.NoError(t, err)
	defer sess.Close()

	got, err := sess.Track(context.Background(), first, seed)
	require.NoError(t, err)
	assert.Equal(t, entity.Coordinates{X: 40, Y: 30, Width: block, Height: block}, pixelBox(got))
}

func TestTrackFollowsMovingObject(t *testing.T) {
	sess, err := NewTemplateTracker(DefaultConfig()).NewSession(sceneWithBlock(40, 30), seedAt(40, 30))
	require.NoError(t, err)

	prior := seedAt(40, 30)
	for _, pos := range [][2]int{{50, 35}, {58, 41}, {70, 41}} {
		next, err := sess.Track(context.Background(), sceneWithBlock(pos[0], pos[1]), prior)
		require.NoError(t, err)
		assert.Equal(t, entity.Coordinates{X: pos[0], Y: pos[1], Width: block, Height: block}, pixelBox(next))
		prior = next
	}
}

func TestTrackWithDownscaledTemplate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TemplateSize = 10 // halves the 20px block
	sess, err := NewTemplateTracker(cfg).NewSession(sceneWithBlock(40, 30), seedAt(40, 30))
	require.NoError(t, err)

	next, err := sess.Track(context.Background(), sceneWithBlock(48, 36), seedAt(40, 30))
	require.NoError(t, err)
	box := pixelBox(next)
	assert.InDelta(t, 48, box.X, 2)
	assert.InDelta(t, 36, box.Y, 2)
	assert.Equal(t, block, box.Width)
}

func TestTrackLosesObjectOnFlatFrame(t *testing.T) {
	sess, err := NewTemplateTracker(DefaultConfig()).NewSession(sceneWithBlock(40, 30), seedAt(40, 30))
	require.NoError(t, err)

	_, err = sess.Track(context.Background(), flatScene(), seedAt(40, 30))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestTrackLosesObjectThatLeftSearchWindow(t *testing.T) {
	sess, err := NewTemplateTracker(DefaultConfig()).NewSession(sceneWithBlock(10, 10), seedAt(10, 10))
	require.NoError(t, err)

	_, err = sess.Track(context.Background(), sceneWithBlock(170, 120), seedAt(10, 10))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNewSessionRejectsTemplateOutsideFrame(t *testing.T) {
	seed := coords.ToNormalizedTrackerSpace(
		entity.Coordinates{X: 500, Y: 500, Width: 10, Height: 10},
		entity.Size{Width: frameW, Height: frameH},
	)
	_, err := NewTemplateTracker(DefaultConfig()).NewSession(flatScene(), seed)
	assert.Error(t, err)
}

func TestTrackRespectsCancelledContext(t *testing.T) {
	sess, err := NewTemplateTracker(DefaultConfig()).NewSession(sceneWithBlock(40, 30), seedAt(40, 30))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sess.Track(ctx, sceneWithBlock(40, 30), seedAt(40, 30))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewTemplateTrackerFillsDefaults(t *testing.T) {
	tr := NewTemplateTracker(Config{})
	assert.Equal(t, DefaultConfig(), tr.cfg)
}
