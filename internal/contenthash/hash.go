// Package contenthash computes the content digest used for integrity headers
// and deduplication signals. The digest depends only on the bytes, never on
// the storage backend that held them.
package contenthash

import (
	"encoding/hex"
	"hash"
	"io"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Sum returns the hex-encoded BLAKE3-256 digest of data.
func Sum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hasher is a streaming digest that also counts the bytes written.
// It implements io.Writer so it can sit behind io.Copy or io.TeeReader.
type Hasher struct {
	h hash.Hash
	n int64
}

func NewHasher() *Hasher {
	return &Hasher{h: blake3.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.h.Write(p)
	h.n += int64(n)
	return n, err
}

// Size returns the number of bytes hashed so far.
func (h *Hasher) Size() int64 { return h.n }

// Sum returns the hex digest of everything written so far.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// FromReader consumes r and returns its digest and length.
func FromReader(r io.Reader) (string, int64, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return "", h.Size(), err
	}
	return h.Sum(), h.Size(), nil
}
