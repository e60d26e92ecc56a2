package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/homecloud/internal/client/client"
	"github.com/dmitrijs2005/homecloud/internal/client/models"
	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/contenthash"
)

// DefaultChunkSize is used when the configured chunk size is not positive.
const DefaultChunkSize = 4 << 20

// Cryptor seals and opens vault file content.
type Cryptor interface {
	EncryptFile(plaintext []byte) ([]byte, string, error)
	DecryptFile(cipherText []byte, ivBase64 string) ([]byte, error)
	FolderID() string
}

type UploadOptions struct {
	Name           string
	Mime           string
	Vault          bool
	ReplaceFileID  string
	GroupFolderID  string
	TargetFolderID string
	// Progress receives the server reported percentage after each chunk.
	Progress func(percent int)
}

type FileService interface {
	Upload(ctx context.Context, r io.Reader, size int64, opts UploadOptions) (*models.Upload, error)
	Download(ctx context.Context, fileID string, version int64, w io.Writer) (*models.Download, error)
	Versions(ctx context.Context, fileID string) ([]models.Version, error)
	Delete(ctx context.Context, fileID string, purge bool) error
	Restore(ctx context.Context, fileID string) error
	Move(ctx context.Context, fileID, folderID string) error
}

type fileService struct {
	client    client.Client
	vault     Cryptor
	chunkSize int
}

func NewFileService(c client.Client, vault Cryptor, chunkSize int) FileService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &fileService{client: c, vault: vault, chunkSize: chunkSize}
}

func totalChunks(size int64, chunkSize int) int {
	if size == 0 {
		return 1
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}

// Upload sends size bytes from r in chunks. Vault content is encrypted as a
// whole before the session is opened, so the declared size is the ciphertext size.
func (s *fileService) Upload(ctx context.Context, r io.Reader, size int64, opts UploadOptions) (*models.Upload, error) {
	req := models.UploadRequest{
		Filename:      opts.Name,
		OriginalName:  opts.Name,
		Size:          size,
		Mime:          opts.Mime,
		Vault:         opts.Vault,
		ReplaceFileID: opts.ReplaceFileID,
		GroupFolderID: opts.GroupFolderID,
	}
	target := opts.TargetFolderID

	if opts.Vault {
		plain, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		cipherText, iv, err := s.vault.EncryptFile(plain)
		common.WipeByteArray(plain)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(cipherText)
		req.Size = int64(len(cipherText))
		req.IVBase64 = iv
		if target == "" {
			target = s.vault.FolderID()
		}
	}
	req.TotalChunks = totalChunks(req.Size, s.chunkSize)

	uploadID, err := s.client.StartUpload(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start upload: %w", err)
	}

	buf := make([]byte, s.chunkSize)
	remaining := req.Size
	for i := 0; i < req.TotalChunks; i++ {
		n := int64(s.chunkSize)
		if remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", i, err)
		}
		remaining -= n

		percent, err := s.client.PutChunk(ctx, uploadID, i, buf[:n])
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if opts.Progress != nil {
			opts.Progress(percent)
		}
	}

	res, err := s.client.CompleteUpload(ctx, uploadID, target)
	if err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}
	return res, nil
}

// Download writes the requested version to w and checks the content hash of
// the received bytes. A zero version means the current one.
//
// Plain content is streamed to w as it arrives, so on error w may hold a
// partial or unverified copy and must be discarded; filex.WriteAtomic does
// that. Vault content is verified and decrypted in memory, and nothing is
// written unless both succeed.
func (s *fileService) Download(ctx context.Context, fileID string, version int64, w io.Writer) (*models.Download, error) {
	d, err := s.client.Download(ctx, fileID, version)
	if err != nil {
		return nil, err
	}
	defer d.Body.Close()

	if d.VaultIV != "" {
		if err := s.downloadVault(d, w); err != nil {
			return nil, err
		}
		return d, nil
	}

	h := contenthash.NewHasher()
	if _, err := io.Copy(io.MultiWriter(w, h), d.Body); err != nil {
		return nil, fmt.Errorf("download content: %w", err)
	}
	if err := checkHash(h, d.ContentHash); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *fileService) downloadVault(d *models.Download, w io.Writer) error {
	if s.vault == nil {
		return common.ErrVaultLocked
	}

	h := contenthash.NewHasher()
	var sealed bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&sealed, h), d.Body); err != nil {
		return fmt.Errorf("read content: %w", err)
	}
	if err := checkHash(h, d.ContentHash); err != nil {
		return err
	}

	plain, err := s.vault.DecryptFile(sealed.Bytes(), d.VaultIV)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plain)

	if _, err := w.Write(plain); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

func checkHash(h *contenthash.Hasher, want string) error {
	if want != "" && h.Sum() != want {
		return fmt.Errorf("%w: got %s, server sent %s", common.ErrIntegrity, h.Sum(), want)
	}
	return nil
}

func (s *fileService) Versions(ctx context.Context, fileID string) ([]models.Version, error) {
	return s.client.Versions(ctx, fileID)
}

func (s *fileService) Delete(ctx context.Context, fileID string, purge bool) error {
	return s.client.DeleteFile(ctx, fileID, purge)
}

func (s *fileService) Restore(ctx context.Context, fileID string) error {
	return s.client.RestoreFile(ctx, fileID)
}

func (s *fileService) Move(ctx context.Context, fileID, folderID string) error {
	if folderID == "" {
		return errors.New("folder id is required")
	}
	return s.client.MoveFile(ctx, fileID, folderID)
}
