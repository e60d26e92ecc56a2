package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Namespaces.
const (
	UploadsPrefix    = "uploads/"
	VersionsPrefix   = "versions/"
	ThumbnailsPrefix = "thumbnails/"
)

// ChunkKey is the blob key of one received chunk. The index is zero padded
// so List returns chunks in assembly order.
func ChunkKey(sessionID string, index int) string {
	return fmt.Sprintf("%s%s/%08d", UploadsPrefix, sessionID, index)
}

// ChunkPrefix covers every chunk of a session.
func ChunkPrefix(sessionID string) string {
	return UploadsPrefix + sessionID + "/"
}

func VersionKey(fileID, versionID string) string {
	return VersionsPrefix + fileID + "/" + versionID
}

func ThumbnailKey(fileID, versionID string, size int) string {
	return fmt.Sprintf("%s%s/%s/%d.webp", ThumbnailsPrefix, fileID, versionID, size)
}

// SessionFromChunkKey extracts the session id from a chunk key.
func SessionFromChunkKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, UploadsPrefix)
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "/")
	return id, ok && id != ""
}

// ParseThumbnailKey splits a thumbnail key into its file id, version id and
// pixel size.
func ParseThumbnailKey(key string) (fileID, versionID string, size int, ok bool) {
	rest, found := strings.CutPrefix(key, ThumbnailsPrefix)
	if !found {
		return "", "", 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return "", "", 0, false
	}
	px, found := strings.CutSuffix(parts[2], ".webp")
	if !found {
		return "", "", 0, false
	}
	n, err := strconv.Atoi(px)
	if err != nil {
		return "", "", 0, false
	}
	return parts[0], parts[1], n, true
}
