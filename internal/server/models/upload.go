package models

import "time"

// UploadSession tracks one chunked upload. It is mutated once per accepted
// chunk and becomes immutable when CompletedAt is set.
type UploadSession struct {
	ID                 string
	OwnerID            string
	GroupFolderID      string
	DeclaredFilename   string
	OriginalName       string
	Mime               string
	DeclaredSize       int64
	TotalChunks        int
	IsVault            bool
	IVBase64           string
	ReplaceFileID      string
	ReceivedChunkCount int
	CreatedAt          time.Time
	CompletedAt        *time.Time
}

// IsCompleted reports whether the session has already been assembled.
func (s *UploadSession) IsCompleted() bool { return s.CompletedAt != nil }

// ProgressPercent returns the share of chunks received, 0..100.
func (s *UploadSession) ProgressPercent() int {
	if s.TotalChunks <= 0 {
		return 0
	}
	return s.ReceivedChunkCount * 100 / s.TotalChunks
}
