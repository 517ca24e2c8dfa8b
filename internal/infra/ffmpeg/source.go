package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Source decodes frames with the ffmpeg and ffprobe binaries.
type Source struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewSource(ffmpegPath, ffprobePath string, logger *zap.Logger) *Source {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Source{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

// AssertReady checks both binaries are on PATH.
func (s *Source) AssertReady() error {
	for _, bin := range []string{s.ffmpegPath, s.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q: %w", bin, err)
		}
	}
	return nil
}

func (s *Source) Duration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(output)
}

// FrameAt decodes the frame presented at exactly second seconds. The input
// seek is accurate (ffmpeg decodes up to the requested timestamp) and the
// display rotation of the stream is applied.
func (s *Source) FrameAt(ctx context.Context, videoPath string, second int) (image.Image, error) {
	cmd := exec.CommandContext(ctx, s.ffmpegPath, frameArgs(videoPath, second)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg error at %ds: %w, output: %s", second, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %ds", second)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame at %ds: %w", second, err)
	}

	s.logger.Debug("frame decoded",
		zap.String("video", videoPath),
		zap.Int("second", second),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)
	return img, nil
}

func frameArgs(videoPath string, second int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-accurate_seek",
		"-ss", strconv.Itoa(second),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	}
}

func parseDuration(output []byte) (float64, error) {
	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("negative duration %f", duration)
	}
	return duration, nil
}
