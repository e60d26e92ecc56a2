package services

import "context"

// Background job kinds.
const (
	JobThumbnailPrewarm = "thumbnail.prewarm"
	JobGCSweep          = "gc.sweep"
)

// Enqueuer hands work to the background job pool. Delivery is at least once.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any) error
}

// ThumbnailJob asks for the default preview of a freshly committed version.
type ThumbnailJob struct {
	FileID    string `cbor:"1,keyasint"`
	VersionID string `cbor:"2,keyasint"`
}

// GCSweepJob triggers one maintenance sweep.
type GCSweepJob struct {
	ScheduledAt int64 `cbor:"1,keyasint"`
}
