// Package filestore keeps datasets on the local filesystem: one directory per
// dataset, holding <index>.<ext> frame images next to <index>.json sidecars.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	FormatJPEG = "jpg"
	FormatPNG  = "png"

	sidecarExt  = ".json"
	jpegQuality = 90
)

type Store struct {
	root   string
	format string
	logger *zap.Logger
}

func NewStore(root, format string, logger *zap.Logger) (*Store, error) {
	switch format {
	case "", "jpeg":
		format = FormatJPEG
	case FormatJPEG, FormatPNG:
	default:
		return nil, fmt.Errorf("unsupported frame format %q", format)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve dataset root: %w", err)
	}
	return &Store{root: abs, format: format, logger: logger}, nil
}

// CreateDataset makes a fresh, uniquely named directory under the root.
func (s *Store) CreateDataset(_ context.Context) (string, error) {
	dir := filepath.Join(s.root, uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %s: %v", entity.ErrDirectoryCreation, dir, err)
	}
	return dir, nil
}

// Write stores img and its sidecar for frameIndex. Both files are staged
// under hidden temporary names and renamed into place; on any failure
// neither file is left behind.
func (s *Store) Write(ctx context.Context, dir string, frameIndex int, img image.Image, annotations []entity.Annotation) (entity.FrameRecord, error) {
	if err := ctx.Err(); err != nil {
		return entity.FrameRecord{}, err
	}
	if frameIndex < 0 {
		return entity.FrameRecord{}, fmt.Errorf("%w: negative frame index %d", entity.ErrFrameWrite, frameIndex)
	}

	base := strconv.Itoa(frameIndex)
	imageName := base + "." + s.format
	imagePath := filepath.Join(dir, imageName)

	absImage, err := filepath.Abs(imagePath)
	if err != nil {
		return entity.FrameRecord{}, fmt.Errorf("%w: %v", entity.ErrFrameWrite, err)
	}
	if annotations == nil {
		annotations = []entity.Annotation{}
	}
	rec := entity.FrameRecord{
		ImageName:   imageName,
		ImageURL:    fileURL(absImage),
		Annotations: annotations,
	}

	var encoded bytes.Buffer
	if err := s.encode(&encoded, img); err != nil {
		return entity.FrameRecord{}, fmt.Errorf("%w: encode %s: %v", entity.ErrFrameWrite, imageName, err)
	}
	sidecar, err := encodeSidecar(rec)
	if err != nil {
		return entity.FrameRecord{}, fmt.Errorf("%w: encode sidecar for %s: %v", entity.ErrFrameWrite, imageName, err)
	}

	imgTmp, err := stage(dir, encoded.Bytes())
	if err != nil {
		return entity.FrameRecord{}, fmt.Errorf("%w: %s: %v", entity.ErrFrameWrite, imageName, err)
	}
	sidecarTmp, err := stage(dir, sidecar)
	if err != nil {
		os.Remove(imgTmp)
		return entity.FrameRecord{}, fmt.Errorf("%w: %s: %v", entity.ErrFrameWrite, base+sidecarExt, err)
	}

	sidecarPath := filepath.Join(dir, base+sidecarExt)
	if err := os.Rename(imgTmp, imagePath); err != nil {
		os.Remove(imgTmp)
		os.Remove(sidecarTmp)
		return entity.FrameRecord{}, fmt.Errorf("%w: %s: %v", entity.ErrFrameWrite, imageName, err)
	}
	if err := os.Rename(sidecarTmp, sidecarPath); err != nil {
		os.Remove(imagePath)
		os.Remove(sidecarTmp)
		return entity.FrameRecord{}, fmt.Errorf("%w: %s: %v", entity.ErrFrameWrite, base+sidecarExt, err)
	}
	return rec, nil
}

// ReadAll loads every frame of dir that has both an image and a decodable
// sidecar. Frames that do not are returned as skipped items. Frames come
// back ordered by numeric index, then by name.
func (s *Store) ReadAll(ctx context.Context, dir string) ([]port.LoadedFrame, []entity.SkippedItem, error) {
	images, sidecars, err := scan(dir)
	if err != nil {
		return nil, nil, err
	}
	dataset := filepath.Base(dir)

	var frames []port.LoadedFrame
	var skipped []entity.SkippedItem
	for _, name := range images {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		sidecarName, ok := sidecars[base]
		if !ok {
			skipped = append(skipped, s.skip(dataset, name, fmt.Errorf("%w: %s", entity.ErrSidecarMissing, base+sidecarExt)))
			continue
		}
		delete(sidecars, base)

		rec, err := readSidecar(filepath.Join(dir, sidecarName))
		if err != nil {
			skipped = append(skipped, s.skip(dataset, name, err))
			continue
		}
		frames = append(frames, port.LoadedFrame{
			Record:    rec,
			ImagePath: filepath.Join(dir, name),
			Index:     frameIndex(base),
		})
	}

	orphans := make([]string, 0, len(sidecars))
	for _, name := range sidecars {
		orphans = append(orphans, name)
	}
	sortNames(orphans)
	for _, name := range orphans {
		skipped = append(skipped, s.skip(dataset, name, fmt.Errorf("%w: %s", entity.ErrImageMissing, name)))
	}
	return frames, skipped, nil
}

// Assets lists every non-sidecar file of dir, ordered like ReadAll.
func (s *Store) Assets(_ context.Context, dir string) ([]string, error) {
	images, _, err := scan(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(images))
	for i, name := range images {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// RewriteLabels sets the label of every annotation in dir and rewrites the
// sidecars. Images are not touched. Running it twice with the same label
// leaves byte-identical sidecars.
func (s *Store) RewriteLabels(ctx context.Context, dir string, label string) (int, []entity.SkippedItem, error) {
	frames, skipped, err := s.ReadAll(ctx, dir)
	if err != nil {
		return 0, nil, err
	}
	dataset := filepath.Base(dir)

	rewritten := 0
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return rewritten, skipped, err
		}
		rec := f.Record
		rec.Relabel(label)
		if err := writeSidecar(sidecarPathFor(f.ImagePath), rec); err != nil {
			skipped = append(skipped, s.skip(dataset, rec.ImageName, err))
			continue
		}
		rewritten++
	}
	return rewritten, skipped, nil
}

// UpdateAnnotation replaces the annotations of a single frame with annotation.
func (s *Store) UpdateAnnotation(ctx context.Context, dir string, imageName string, annotation entity.Annotation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entity.CheckImageName(imageName); err != nil {
		return err
	}
	if annotation.Coordinates.Width < 0 || annotation.Coordinates.Height < 0 {
		return fmt.Errorf("annotation for %s has negative size", imageName)
	}
	if _, err := os.Stat(filepath.Join(dir, imageName)); err != nil {
		return fmt.Errorf("%w: %s", entity.ErrImageMissing, imageName)
	}

	path := sidecarPathFor(filepath.Join(dir, imageName))
	rec, err := readSidecar(path)
	if err != nil {
		return err
	}
	rec.Annotations = []entity.Annotation{annotation}
	return writeSidecar(path, rec)
}

func (s *Store) encode(buf *bytes.Buffer, img image.Image) error {
	if img == nil {
		return errors.New("nil image")
	}
	if s.format == FormatPNG {
		return png.Encode(buf, img)
	}
	return jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality})
}

func (s *Store) skip(dataset, item string, err error) entity.SkippedItem {
	s.logger.Warn("skipping frame",
		zap.String("dataset", dataset),
		zap.String("item", item),
		zap.Error(err),
	)
	return entity.NewSkippedItem(dataset, item, err)
}

// scan splits the visible files of dir into images (ordered) and sidecars
// keyed by base name. Hidden files are staging leftovers and are ignored.
func scan(dir string) ([]string, map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset directory %s: %w", dir, err)
	}
	var images []string
	sidecars := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		if strings.EqualFold(ext, sidecarExt) {
			sidecars[strings.TrimSuffix(name, ext)] = name
			continue
		}
		images = append(images, name)
	}
	sortNames(images)
	return images, sidecars, nil
}

// sortNames orders numerically named files by index first, then the rest
// lexically.
func sortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a := frameIndex(strings.TrimSuffix(names[i], filepath.Ext(names[i])))
		b := frameIndex(strings.TrimSuffix(names[j], filepath.Ext(names[j])))
		switch {
		case a >= 0 && b >= 0 && a != b:
			return a < b
		case a >= 0 && b < 0:
			return true
		case a < 0 && b >= 0:
			return false
		}
		return names[i] < names[j]
	})
}

func frameIndex(base string) int {
	n, err := strconv.Atoi(base)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func sidecarPathFor(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + sidecarExt
}

func readSidecar(path string) (entity.FrameRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entity.FrameRecord{}, fmt.Errorf("%w: %s", entity.ErrSidecarMissing, filepath.Base(path))
	}
	if err != nil {
		return entity.FrameRecord{}, fmt.Errorf("%w: %s: %v", entity.ErrSidecarDecode, filepath.Base(path), err)
	}
	var rec entity.FrameRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return entity.FrameRecord{}, fmt.Errorf("%w: %s: %v", entity.ErrSidecarDecode, filepath.Base(path), err)
	}
	return rec, nil
}

func writeSidecar(path string, rec entity.FrameRecord) error {
	data, err := encodeSidecar(rec)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", entity.ErrFrameWrite, filepath.Base(path), err)
	}
	tmp, err := stage(filepath.Dir(path), data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", entity.ErrFrameWrite, filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %s: %v", entity.ErrFrameWrite, filepath.Base(path), err)
	}
	return nil
}

func encodeSidecar(rec entity.FrameRecord) ([]byte, error) {
	if rec.Annotations == nil {
		rec.Annotations = []entity.Annotation{}
	}
	return json.Marshal(rec)
}

// stage writes data to a hidden temporary file in dir and returns its path.
func stage(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".stage-*")
	if err != nil {
		return "", err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
