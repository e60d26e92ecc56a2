package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebp "golang.org/x/image/webp"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// uploadImage stores an image in chunks no larger than the test chunk cap.
func uploadImage(t *testing.T, e *env, owner string, req StartUploadRequest, data []byte) (string, string) {
	t.Helper()
	var chunks [][]byte
	for len(data) > 0 {
		n := min(len(data), 1<<10)
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	f, v := e.upload(owner, req, chunks...)
	return f.ID, v.ID
}

func TestGetOrGenerate_RendersAndCaches(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	fileID, versionID := uploadImage(t, e, "u1", StartUploadRequest{Filename: "p.png", Mime: "image/png"}, pngBytes(t, 80, 40))

	out, err := e.thumbs.GetOrGenerate(ctx, "u1", fileID, 32)
	require.NoError(t, err)
	cfg, err := xwebp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 16, cfg.Height)

	ok, err := e.mem.Exists(ctx, storage.ThumbnailKey(fileID, versionID, 32))
	require.NoError(t, err)
	assert.True(t, ok)

	e.thumbs.render = func(io.Reader, int) ([]byte, error) {
		t.Fatal("cached preview rendered again")
		return nil, nil
	}
	cached, err := e.thumbs.GetOrGenerate(ctx, "u1", fileID, 32)
	require.NoError(t, err)
	assert.Equal(t, out, cached)
}

func TestGetOrGenerate_DefaultSize(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	fileID, versionID := uploadImage(t, e, "u1", StartUploadRequest{Filename: "p.png", Mime: "image/png"}, pngBytes(t, 100, 100))

	_, err := e.thumbs.GetOrGenerate(ctx, "u1", fileID, 0)
	require.NoError(t, err)
	ok, err := e.mem.Exists(ctx, storage.ThumbnailKey(fileID, versionID, 64))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetOrGenerate_NewVersionGetsFreshPreview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	fileID, v1 := uploadImage(t, e, "u1", StartUploadRequest{Filename: "p.png", Mime: "image/png"}, pngBytes(t, 40, 40))
	_, err := e.thumbs.GetOrGenerate(ctx, "u1", fileID, 16)
	require.NoError(t, err)

	_, v2 := uploadImage(t, e, "u1", StartUploadRequest{Filename: "p.png", Mime: "image/png", ReplaceFileID: fileID}, pngBytes(t, 20, 60))
	out, err := e.thumbs.GetOrGenerate(ctx, "u1", fileID, 16)
	require.NoError(t, err)

	cfg, err := xwebp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Width)
	assert.Equal(t, 16, cfg.Height)

	for _, vid := range []string{v1, v2} {
		ok, err := e.mem.Exists(ctx, storage.ThumbnailKey(fileID, vid, 16))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestGetOrGenerate_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	img, _ := uploadImage(t, e, "u1", StartUploadRequest{Filename: "p.png", Mime: "image/png"}, pngBytes(t, 20, 20))
	text, _ := uploadImage(t, e, "u1", StartUploadRequest{Filename: "a.txt", Mime: "text/plain"}, []byte("hello"))
	broken, _ := uploadImage(t, e, "u1", StartUploadRequest{Filename: "b.png", Mime: "image/png"}, []byte("not a png"))

	tests := []struct {
		name   string
		user   string
		fileID string
		size   int
		want   error
	}{
		{"too small", "u1", img, 8, common.ErrInvalidThumbSize},
		{"too large", "u1", img, 1024, common.ErrInvalidThumbSize},
		{"not an image", "u1", text, 64, common.ErrUnsupportedMime},
		{"undecodable image", "u1", broken, 64, common.ErrUnsupportedMime},
		{"other user", "u2", img, 64, common.ErrForbidden},
		{"unknown file", "u1", uuid.NewString(), 64, common.ErrorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.thumbs.GetOrGenerate(ctx, tt.user, tt.fileID, tt.size)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	thumbs, err := e.mem.List(ctx, storage.ThumbnailsPrefix)
	require.NoError(t, err)
	assert.Empty(t, thumbs)
}

func TestPrewarm(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	img, imgV := uploadImage(t, e, "u1", StartUploadRequest{Filename: "p.png", Mime: "image/png"}, pngBytes(t, 30, 30))
	text, textV := uploadImage(t, e, "u1", StartUploadRequest{Filename: "a.txt", Mime: "text/plain"}, []byte("hello"))
	vault, vaultV := uploadImage(t, e, "u1", StartUploadRequest{Filename: "v", Mime: "image/png", Vault: true, IVBase64: testIV}, []byte("sealed"))

	require.NoError(t, e.thumbs.Prewarm(ctx, img, imgV))
	require.NoError(t, e.thumbs.Prewarm(ctx, text, textV))
	require.NoError(t, e.thumbs.Prewarm(ctx, vault, vaultV))
	require.NoError(t, e.thumbs.Prewarm(ctx, uuid.NewString(), uuid.NewString()))
	require.NoError(t, e.thumbs.Prewarm(ctx, img, uuid.NewString()))

	thumbs, err := e.mem.List(ctx, storage.ThumbnailsPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{storage.ThumbnailKey(img, imgV, 64)}, thumbs)
}

func TestPrewarm_BackendFailureIsRetryable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	img, imgV := uploadImage(t, e, "u1", StartUploadRequest{Filename: "p.png", Mime: "image/png"}, pngBytes(t, 30, 30))

	e.backend.getErr = assert.AnError
	err := e.thumbs.Prewarm(ctx, img, imgV)
	assert.ErrorIs(t, err, common.ErrBackendUnavailable)
}
