package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/client/models"
	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/contenthash"
	"github.com/dmitrijs2005/homecloud/internal/filex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalChunks(t *testing.T) {
	tests := []struct {
		size  int64
		chunk int
		want  int
	}{
		{0, 4, 1},
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{12, 4, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, totalChunks(tt.size, tt.chunk), "size %d", tt.size)
	}
}

func TestUpload_SplitsIntoChunks(t *testing.T) {
	fc := &fakeClient{}
	s := NewFileService(fc, &xorCryptor{}, 4)
	data := []byte("hello world")

	var progress []int
	res, err := s.Upload(context.Background(), bytes.NewReader(data), int64(len(data)), UploadOptions{
		Name:           "a.txt",
		Mime:           "text/plain",
		TargetFolderID: "docs",
		Progress:       func(p int) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, "f1", res.File.ID)
	assert.Equal(t, 3, fc.startReq.TotalChunks)
	assert.Equal(t, int64(11), fc.startReq.Size)
	assert.False(t, fc.startReq.Vault)
	assert.Empty(t, fc.startReq.IVBase64)
	assert.Len(t, fc.chunks, 3)
	assert.Equal(t, data, fc.joined())
	assert.Equal(t, []int{33, 66, 100}, progress)
	assert.Equal(t, "docs", fc.target)
}

func TestUpload_EmptyFileIsOneChunk(t *testing.T) {
	fc := &fakeClient{}
	s := NewFileService(fc, nil, 0)

	_, err := s.Upload(context.Background(), bytes.NewReader(nil), 0, UploadOptions{Name: "empty"})
	require.NoError(t, err)
	assert.Equal(t, 1, fc.startReq.TotalChunks)
	assert.Len(t, fc.chunks, 1)
	assert.Empty(t, fc.chunks[0])
}

func TestUpload_VaultEncryptsBeforeSending(t *testing.T) {
	fc := &fakeClient{}
	s := NewFileService(fc, &xorCryptor{}, 4)
	data := []byte("secret")

	_, err := s.Upload(context.Background(), bytes.NewReader(data), int64(len(data)), UploadOptions{Name: "s.bin", Vault: true})
	require.NoError(t, err)

	assert.True(t, fc.startReq.Vault)
	assert.NotEmpty(t, fc.startReq.IVBase64)
	assert.Equal(t, int64(len(data)+4), fc.startReq.Size)
	assert.NotContains(t, string(fc.joined()), "secret")
	assert.Equal(t, "vault-folder", fc.target)
}

func TestUpload_LockedVaultSendsNothing(t *testing.T) {
	fc := &fakeClient{}
	s := NewFileService(fc, &xorCryptor{locked: true}, 4)

	_, err := s.Upload(context.Background(), bytes.NewReader([]byte("x")), 1, UploadOptions{Name: "x", Vault: true})
	require.ErrorIs(t, err, common.ErrVaultLocked)
	assert.Empty(t, fc.startReq.Filename)
}

func TestUpload_ShortReader(t *testing.T) {
	fc := &fakeClient{}
	s := NewFileService(fc, nil, 4)

	_, err := s.Upload(context.Background(), bytes.NewReader([]byte("abc")), 10, UploadOptions{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read chunk")
}

func TestUpload_ErrorsWrapped(t *testing.T) {
	fc := &fakeClient{startErr: &common.SizeLimitError{Size: 10, Max: 5}}
	s := NewFileService(fc, nil, 4)

	_, err := s.Upload(context.Background(), bytes.NewReader(make([]byte, 10)), 10, UploadOptions{Name: "x"})
	var sle *common.SizeLimitError
	require.ErrorAs(t, err, &sle)
	assert.Equal(t, int64(5), sle.Max)

	fc = &fakeClient{chunkErr: common.ErrChunkTooLarge}
	s = NewFileService(fc, nil, 4)
	_, err = s.Upload(context.Background(), bytes.NewReader(make([]byte, 10)), 10, UploadOptions{Name: "x"})
	require.ErrorIs(t, err, common.ErrChunkTooLarge)
}

func TestDownload_Plain(t *testing.T) {
	data := []byte("plain content")
	fc := &fakeClient{download: &models.Download{ContentHash: contenthash.Sum(data), Version: 3, Body: body(data)}}
	s := NewFileService(fc, nil, 4)

	var out bytes.Buffer
	d, err := s.Download(context.Background(), "f1", 0, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Version)
	assert.Equal(t, data, out.Bytes())
}

func TestDownload_HashMismatch(t *testing.T) {
	fc := &fakeClient{download: &models.Download{ContentHash: contenthash.Sum([]byte("other")), Body: body([]byte("data"))}}
	s := NewFileService(fc, nil, 4)

	dest := filepath.Join(t.TempDir(), "out.bin")
	err := filex.WriteAtomic(dest, func(w io.Writer) error {
		_, err := s.Download(context.Background(), "f1", 0, w)
		return err
	})
	require.ErrorIs(t, err, common.ErrIntegrity)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "unverified content is not kept")
}

func TestDownload_VaultHashMismatchWritesNothing(t *testing.T) {
	cr := &xorCryptor{}
	ct, iv, err := cr.EncryptFile([]byte("secret"))
	require.NoError(t, err)
	fc := &fakeClient{download: &models.Download{ContentHash: contenthash.Sum([]byte("other")), VaultIV: iv, Body: body(ct)}}
	s := NewFileService(fc, cr, 4)

	var out bytes.Buffer
	_, err = s.Download(context.Background(), "f1", 0, &out)
	require.ErrorIs(t, err, common.ErrIntegrity)
	assert.Zero(t, out.Len())
}

// firstWriteSignal closes first on the first write it receives.
type firstWriteSignal struct {
	bytes.Buffer
	first chan struct{}
	once  sync.Once
}

func (w *firstWriteSignal) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.first) })
	return w.Buffer.Write(p)
}

func TestDownload_PlainIsStreamed(t *testing.T) {
	data := []byte("first part|second part")
	pr, pw := io.Pipe()
	fc := &fakeClient{download: &models.Download{ContentHash: contenthash.Sum(data), Body: pr}}
	s := NewFileService(fc, nil, 4)

	out := &firstWriteSignal{first: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := s.Download(context.Background(), "f1", 0, out)
		done <- err
	}()

	_, err := pw.Write(data[:11])
	require.NoError(t, err)
	select {
	case <-out.first:
	case <-time.After(time.Second):
		t.Fatal("nothing written before the body ended")
	}
	_, err = pw.Write(data[11:])
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	require.NoError(t, <-done)
	assert.Equal(t, data, out.Bytes())
}

func TestDownload_VaultDecrypts(t *testing.T) {
	cr := &xorCryptor{}
	ct, iv, err := cr.EncryptFile([]byte("secret"))
	require.NoError(t, err)

	fc := &fakeClient{download: &models.Download{ContentHash: contenthash.Sum(ct), VaultIV: iv, Body: body(ct)}}
	s := NewFileService(fc, cr, 4)

	var out bytes.Buffer
	_, err = s.Download(context.Background(), "f1", 0, &out)
	require.NoError(t, err)
	assert.Equal(t, "secret", out.String())
}

func TestDownload_VaultLocked(t *testing.T) {
	fc := &fakeClient{download: &models.Download{VaultIV: "aXY=", Body: body([]byte("ENC:xx"))}}
	s := NewFileService(fc, &xorCryptor{locked: true}, 4)

	var out bytes.Buffer
	_, err := s.Download(context.Background(), "f1", 0, &out)
	require.ErrorIs(t, err, common.ErrVaultLocked)
	assert.Zero(t, out.Len())
}

func TestDownload_ClientError(t *testing.T) {
	fc := &fakeClient{downloadErr: common.ErrorNotFound}
	s := NewFileService(fc, nil, 4)

	_, err := s.Download(context.Background(), "f1", 0, &bytes.Buffer{})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDownload_WriteError(t *testing.T) {
	data := []byte("x")
	fc := &fakeClient{download: &models.Download{ContentHash: contenthash.Sum(data), Body: body(data)}}
	s := NewFileService(fc, nil, 4)

	_, err := s.Download(context.Background(), "f1", 0, failWriter{})
	require.ErrorContains(t, err, "disk full")
}

func TestLifecycleDelegates(t *testing.T) {
	fc := &fakeClient{}
	s := NewFileService(fc, nil, 4)
	ctx := context.Background()

	v, err := s.Versions(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, v, 2)
	require.NoError(t, s.Delete(ctx, "f1", false))
	require.NoError(t, s.Restore(ctx, "f1"))
	require.NoError(t, s.Move(ctx, "f1", "docs"))
	require.NoError(t, s.Delete(ctx, "f1", true))
	require.Error(t, s.Move(ctx, "f1", ""))

	assert.Equal(t, []string{"versions:f1", "delete:f1", "restore:f1", "move:f1->docs", "purge:f1"}, fc.calls)
}
