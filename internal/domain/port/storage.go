package port

import (
	"context"
	"io"
)

// ObjectStorage moves videos in and export archives out of the object store.
type ObjectStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}
