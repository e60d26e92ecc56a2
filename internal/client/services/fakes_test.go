package services

import (
	"bytes"
	"context"
	"io"

	"github.com/dmitrijs2005/homecloud/internal/client/client"
	"github.com/dmitrijs2005/homecloud/internal/client/models"
	"github.com/dmitrijs2005/homecloud/internal/common"
)

type fakeClient struct {
	client.Client

	startReq models.UploadRequest
	startErr error
	chunks   [][]byte
	chunkErr error
	target   string

	download    *models.Download
	downloadErr error

	calls []string
}

func (f *fakeClient) StartUpload(ctx context.Context, req models.UploadRequest) (string, error) {
	f.startReq = req
	if f.startErr != nil {
		return "", f.startErr
	}
	return "up-1", nil
}

func (f *fakeClient) PutChunk(ctx context.Context, uploadID string, index int, data []byte) (int, error) {
	if f.chunkErr != nil {
		return 0, f.chunkErr
	}
	f.chunks = append(f.chunks, append([]byte(nil), data...))
	return (index + 1) * 100 / f.startReq.TotalChunks, nil
}

func (f *fakeClient) CompleteUpload(ctx context.Context, uploadID, targetFolderID string) (*models.Upload, error) {
	f.target = targetFolderID
	return &models.Upload{File: models.File{ID: "f1", Name: f.startReq.Filename}, Version: models.Version{Version: 1}}, nil
}

func (f *fakeClient) Download(ctx context.Context, fileID string, version int64) (*models.Download, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.download, nil
}

func (f *fakeClient) Versions(ctx context.Context, fileID string) ([]models.Version, error) {
	f.calls = append(f.calls, "versions:"+fileID)
	return []models.Version{{FileID: fileID, Version: 2}, {FileID: fileID, Version: 1}}, nil
}

func (f *fakeClient) DeleteFile(ctx context.Context, fileID string, purge bool) error {
	if purge {
		f.calls = append(f.calls, "purge:"+fileID)
	} else {
		f.calls = append(f.calls, "delete:"+fileID)
	}
	return nil
}

func (f *fakeClient) RestoreFile(ctx context.Context, fileID string) error {
	f.calls = append(f.calls, "restore:"+fileID)
	return nil
}

func (f *fakeClient) MoveFile(ctx context.Context, fileID, folderID string) error {
	f.calls = append(f.calls, "move:"+fileID+"->"+folderID)
	return nil
}

func (f *fakeClient) joined() []byte {
	return bytes.Join(f.chunks, nil)
}

// xorCryptor stands in for the vault: it flips every byte and prefixes a marker.
type xorCryptor struct {
	locked bool
}

func (c *xorCryptor) EncryptFile(p []byte) ([]byte, string, error) {
	if c.locked {
		return nil, "", common.ErrVaultLocked
	}
	out := append([]byte("ENC:"), p...)
	for i := 4; i < len(out); i++ {
		out[i] ^= 0xff
	}
	return out, "aXYtMTIzNDU2Nzg=", nil
}

func (c *xorCryptor) DecryptFile(ct []byte, iv string) ([]byte, error) {
	if c.locked {
		return nil, common.ErrVaultLocked
	}
	out := append([]byte(nil), ct[4:]...)
	for i := range out {
		out[i] ^= 0xff
	}
	return out, nil
}

func (c *xorCryptor) FolderID() string { return "vault-folder" }

func body(b []byte) io.ReadCloser { return io.NopCloser(bytes.NewReader(b)) }
