package entity

import "errors"

var (
	// ErrFrameExtraction marks a single frame that could not be decoded. The
	// frame is skipped.
	ErrFrameExtraction = errors.New("frame extraction failed")
	// ErrTrackingLost marks the end of a tracking run. Every later frame of
	// the run is skipped.
	ErrTrackingLost = errors.New("tracking lost")
	// ErrDirectoryCreation is fatal for the capture of one video.
	ErrDirectoryCreation = errors.New("dataset directory creation failed")
	// ErrSidecarMissing and ErrSidecarDecode exclude a frame from reads.
	ErrSidecarMissing = errors.New("sidecar missing")
	ErrSidecarDecode  = errors.New("sidecar decode failed")
	// ErrImageMissing marks a sidecar whose image is gone.
	ErrImageMissing = errors.New("frame image missing")
	// ErrInvalidImageName rejects an image name that is not a plain file
	// name inside its dataset directory.
	ErrInvalidImageName = errors.New("invalid image name")
	// ErrFrameWrite marks a frame whose image or sidecar could not be written.
	ErrFrameWrite = errors.New("frame write failed")
	// ErrArchiveWrite and ErrDestinationWrite are fatal for an export.
	ErrArchiveWrite     = errors.New("archive write failed")
	ErrDestinationWrite = errors.New("destination write failed")
	// ErrEmptyDataset is reported when a capture produced no frames at all.
	ErrEmptyDataset = errors.New("no frames captured")
	// ErrUnknownDataset is reported for a selected name missing from the registry.
	ErrUnknownDataset = errors.New("unknown dataset")
)
