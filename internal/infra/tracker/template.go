// Package tracker implements single-object tracking by normalized
// cross-correlation against a grayscale template cut from the first frame.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/coords"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"golang.org/x/image/draw"
)

// ErrObjectNotFound is returned when no position in the search window
// correlates with the template above MinScore.
var ErrObjectNotFound = errors.New("object not found in search window")

type Config struct {
	// MinScore is the lowest correlation (0..1] accepted as a match.
	MinScore float64
	// SearchMargin widens the prior box on every side by this fraction
	// of its width and height.
	SearchMargin float64
	// TemplateSize caps the longest side of the template, in pixels, after
	// downscaling. Matching cost grows with its square.
	TemplateSize int
}

func DefaultConfig() Config {
	return Config{MinScore: 0.5, SearchMargin: 1.0, TemplateSize: 32}
}

type TemplateTracker struct {
	cfg Config
}

func NewTemplateTracker(cfg Config) *TemplateTracker {
	def := DefaultConfig()
	if cfg.MinScore <= 0 || cfg.MinScore > 1 {
		cfg.MinScore = def.MinScore
	}
	if cfg.SearchMargin <= 0 {
		cfg.SearchMargin = def.SearchMargin
	}
	if cfg.TemplateSize <= 0 {
		cfg.TemplateSize = def.TemplateSize
	}
	return &TemplateTracker{cfg: cfg}
}

func (t *TemplateTracker) NewSession(first image.Image, seed entity.NormalizedRect) (port.TrackingSession, error) {
	size := imageSize(first)
	box := coords.Clamp(coords.FromNormalizedTopLeft(seed, size), size)
	if box.Width <= 0 || box.Height <= 0 {
		return nil, fmt.Errorf("template rectangle %+v outside %vx%v frame", box, size.Width, size.Height)
	}

	scale := math.Min(1, float64(t.cfg.TemplateSize)/float64(max(box.Width, box.Height)))
	tmpl := newTemplate(grayRegion(first, toRect(box), scale))

	return &session{
		cfg:    t.cfg,
		scale:  scale,
		width:  box.Width,
		height: box.Height,
		tmpl:   tmpl,
	}, nil
}

type session struct {
	cfg    Config
	scale  float64
	width  int
	height int
	tmpl   *template
}

// Close is a no-op; the template tracker holds no external resources.
func (s *session) Close() error { return nil }

func (s *session) Track(ctx context.Context, frame image.Image, prior entity.NormalizedRect) (entity.NormalizedRect, error) {
	if err := ctx.Err(); err != nil {
		return entity.NormalizedRect{}, err
	}

	size := imageSize(frame)
	at := coords.FromNormalizedTopLeft(prior, size)
	mx := int(math.Ceil(s.cfg.SearchMargin * float64(s.width)))
	my := int(math.Ceil(s.cfg.SearchMargin * float64(s.height)))
	window := coords.Clamp(entity.Coordinates{
		X:      at.X - mx,
		Y:      at.Y - my,
		Width:  s.width + 2*mx,
		Height: s.height + 2*my,
	}, size)
	if window.Width < s.width || window.Height < s.height {
		return entity.NormalizedRect{}, fmt.Errorf("%w: search window %+v smaller than object", ErrObjectNotFound, window)
	}

	win := grayRegion(frame, toRect(window), s.scale)
	bx, by, score := s.tmpl.bestMatch(win)
	if score < s.cfg.MinScore {
		return entity.NormalizedRect{}, fmt.Errorf("%w: best score %.3f", ErrObjectNotFound, score)
	}

	found := coords.Clamp(entity.Coordinates{
		X:      window.X + int(math.Round(float64(bx)/s.scale)),
		Y:      window.Y + int(math.Round(float64(by)/s.scale)),
		Width:  s.width,
		Height: s.height,
	}, size)
	return coords.ToNormalizedTrackerSpace(found, size), nil
}

// template keeps the mean-centered template pixels and their energy.
type template struct {
	w, h     int
	mean     float64
	centered []float64
	energy   float64
}

func newTemplate(g *image.Gray) *template {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	t := &template{w: w, h: h, centered: make([]float64, 0, w*h)}

	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum += float64(g.Pix[y*g.Stride+x])
		}
	}
	t.mean = sum / float64(w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := float64(g.Pix[y*g.Stride+x]) - t.mean
			t.centered = append(t.centered, c)
			t.energy += c * c
		}
	}
	return t
}

// bestMatch slides the template over win and returns the top-left offset
// of the highest correlation. The first maximum wins ties.
func (t *template) bestMatch(win *image.Gray) (int, int, float64) {
	ww, wh := win.Rect.Dx(), win.Rect.Dy()
	bestX, bestY, best := 0, 0, math.Inf(-1)
	for oy := 0; oy+t.h <= wh; oy++ {
		for ox := 0; ox+t.w <= ww; ox++ {
			if score := t.score(win, ox, oy); score > best {
				bestX, bestY, best = ox, oy, score
			}
		}
	}
	return bestX, bestY, best
}

func (t *template) score(win *image.Gray, ox, oy int) float64 {
	n := float64(t.w * t.h)
	var sum float64
	for y := 0; y < t.h; y++ {
		row := win.Pix[(oy+y)*win.Stride+ox:]
		for x := 0; x < t.w; x++ {
			sum += float64(row[x])
		}
	}
	mean := sum / n

	var num, energy float64
	i := 0
	for y := 0; y < t.h; y++ {
		row := win.Pix[(oy+y)*win.Stride+ox:]
		for x := 0; x < t.w; x++ {
			c := float64(row[x]) - mean
			num += c * t.centered[i]
			energy += c * c
			i++
		}
	}

	// Correlation is undefined on a flat patch: two flat patches match as
	// closely as their brightness does, a flat and a textured one never do.
	if t.energy == 0 || energy == 0 {
		if t.energy == 0 && energy == 0 {
			return 1 - math.Abs(mean-t.mean)/255
		}
		return 0
	}
	return num / math.Sqrt(energy*t.energy)
}

// grayRegion copies r out of img as grayscale, resized by scale.
func grayRegion(img image.Image, r image.Rectangle, scale float64) *image.Gray {
	r = r.Add(img.Bounds().Min)
	w := max(1, int(math.Round(float64(r.Dx())*scale)))
	h := max(1, int(math.Round(float64(r.Dy())*scale)))
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == r.Dx() && h == r.Dy() {
		draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, r, draw.Src, nil)
	return dst
}

func toRect(c entity.Coordinates) image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

func imageSize(img image.Image) entity.Size {
	b := img.Bounds()
	return entity.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}
