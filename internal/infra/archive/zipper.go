package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
)

type ZipCreator struct{}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{}
}

// CreateArchive writes entries in order. Entry names are used verbatim, so
// callers resolve duplicates before calling. A partially written archive is
// removed on failure.
func (z *ZipCreator) CreateArchive(ctx context.Context, entries []port.ArchiveEntry, outputPath string) (err error) {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer func() {
		if cerr := zipFile.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close zip file: %w", cerr)
		}
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	zipWriter := zip.NewWriter(zipFile)

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			zipWriter.Close()
			return ctx.Err()
		default:
		}

		if err := addFileToZip(zipWriter, entry); err != nil {
			zipWriter.Close()
			return fmt.Errorf("add %s to zip: %w", entry.Path, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

func addFileToZip(zw *zip.Writer, entry port.ArchiveEntry) error {
	file, err := os.Open(entry.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = entry.Name
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
