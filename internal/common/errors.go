// Package common defines shared constants and sentinel errors used across
// client and server layers of homecloud. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Upload client errors. Rejected synchronously, nothing is committed.
	ErrInvalidUpload     = errors.New("invalid upload request")
	ErrIVRequired        = errors.New("iv required for vault upload")
	ErrChunkOutOfRange   = errors.New("chunk index out of range")
	ErrChunkTooLarge     = errors.New("chunk too large")
	ErrIncompleteUpload  = errors.New("upload incomplete")
	ErrAlreadyCompleted  = errors.New("upload already completed")
	ErrVaultFlagMismatch = errors.New("vault flag does not match target file")

	// ErrIntegrity is returned when assembled content does not match what
	// the client declared. The session is left in place.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrBackendUnavailable marks storage failures and timeouts. Callers may retry.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// Thumbnail errors.
	ErrVaultThumbnail   = errors.New("thumbnails are not available for vault files")
	ErrUnsupportedMime  = errors.New("unsupported mime type")
	ErrInvalidThumbSize = errors.New("invalid thumbnail size")

	// Vault errors. A failed unwrap is ErrWrongPassphrase and never leads to
	// first-time setup, which would overwrite the envelope.
	ErrWrongPassphrase = errors.New("wrong passphrase")
	ErrEnvelopeExists  = errors.New("vault envelope already exists")
	ErrVaultLocked     = errors.New("vault is locked")
	ErrInvalidEnvelope = errors.New("invalid vault envelope")

	// Journal errors.
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrUnknownAction     = errors.New("unknown journal action")
)

// SizeLimitError is returned when a declared upload size exceeds the
// configured hard cap. It matches ErrInvalidUpload via errors.Is.
type SizeLimitError struct {
	Size int64
	Max  int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("declared size %d exceeds maximum %d", e.Size, e.Max)
}

func (e *SizeLimitError) Is(target error) bool {
	return target == ErrInvalidUpload
}
