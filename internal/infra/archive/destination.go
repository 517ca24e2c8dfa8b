package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
)

// Destination delivers archives to a local path or, when an object key is
// given, to the export bucket. A path naming an existing directory receives
// the archive under its own file name.
type Destination struct {
	objects port.ObjectStorage
}

// NewDestination accepts a nil object storage; object key destinations then fail.
func NewDestination(objects port.ObjectStorage) *Destination {
	return &Destination{objects: objects}
}

func (d *Destination) Deliver(ctx context.Context, archivePath string, dest entity.ExportDestination) (string, error) {
	switch {
	case dest.ObjectKey != "":
		if d.objects == nil {
			return "", fmt.Errorf("object storage not configured for key %s", dest.ObjectKey)
		}
		return dest.ObjectKey, d.upload(ctx, archivePath, dest.ObjectKey)
	case dest.Path != "":
		target := dest.Path
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			target = filepath.Join(target, filepath.Base(archivePath))
		}
		return target, moveFile(archivePath, target)
	default:
		return "", errors.New("export destination is empty")
	}
}

func (d *Destination) upload(ctx context.Context, archivePath, key string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	if err := d.objects.UploadArchive(ctx, key, f, stat.Size()); err != nil {
		return err
	}
	return os.Remove(archivePath)
}

// moveFile renames src to dst, falling back to copy-and-remove when the two
// paths live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("move archive: %w", err)
	}

	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return fmt.Errorf("copy archive: %w", err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
