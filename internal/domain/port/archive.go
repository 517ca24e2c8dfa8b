package port

import (
	"context"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
)

// ArchiveEntry is one file added to an archive under Name.
type ArchiveEntry struct {
	Name string
	Path string
}

type Archiver interface {
	CreateArchive(ctx context.Context, entries []ArchiveEntry, outputPath string) error
}

// ArchiveDestination moves a finished archive to where the caller asked for
// it and returns the final location.
type ArchiveDestination interface {
	Deliver(ctx context.Context, archivePath string, dest entity.ExportDestination) (string, error)
}
