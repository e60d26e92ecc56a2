package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/client/models"
	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/netx"
)

// HTTPClient talks to the homecloud HTTP API with a bearer token.
type HTTPClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
}

// NewHTTPClient returns a client for baseURL (e.g. "http://127.0.0.1:8080").
// timeout bounds every request except downloads, whose bodies are streamed.
func NewHTTPClient(baseURL, accessToken string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return req, nil
}

// doJSON sends in as a JSON body (when not nil) and decodes the response
// into out (when not nil).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any, ok ...int) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := netx.Do(c.http, req, ok...)
	if err != nil {
		return convertError(err)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/api/ping", nil, nil)
}

func (c *HTTPClient) VaultStatus(ctx context.Context) (*models.VaultStatus, error) {
	var st models.VaultStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/vault", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) SaveEnvelope(ctx context.Context, cipher, iv, salt string) error {
	in := map[string]string{"cipher": cipher, "iv": iv, "salt": salt}
	return c.doJSON(ctx, http.MethodPut, "/api/vault/envelope", in, nil)
}

func (c *HTTPClient) StartUpload(ctx context.Context, req models.UploadRequest) (string, error) {
	var out struct {
		UploadID string `json:"uploadId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/uploads", req, &out, http.StatusCreated); err != nil {
		return "", err
	}
	return out.UploadID, nil
}

func (c *HTTPClient) PutChunk(ctx context.Context, uploadID string, index int, data []byte) (int, error) {
	path := fmt.Sprintf("/api/uploads/%s/chunks/%d", url.PathEscape(uploadID), index)
	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := netx.Do(c.http, req)
	if err != nil {
		return 0, convertError(err)
	}
	defer resp.Body.Close()

	var out struct {
		ProgressPercent int `json:"progressPercent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.ProgressPercent, nil
}

func (c *HTTPClient) CompleteUpload(ctx context.Context, uploadID, targetFolderID string) (*models.Upload, error) {
	in := map[string]string{"targetFolderId": targetFolderID}
	var out models.Upload
	if err := c.doJSON(ctx, http.MethodPost, "/api/uploads/"+url.PathEscape(uploadID)+"/complete", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download opens version (0 for the latest) of a file. The body is streamed;
// the caller closes it.
func (c *HTTPClient) Download(ctx context.Context, fileID string, version int64) (*models.Download, error) {
	path := "/api/files/" + url.PathEscape(fileID) + "/content"
	if version > 0 {
		path += "?version=" + strconv.FormatInt(version, 10)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	// Content may be large; only the context bounds the transfer.
	streaming := &http.Client{Transport: c.http.Transport}
	resp, err := netx.Do(streaming, req)
	if err != nil {
		return nil, convertError(err)
	}

	n, _ := strconv.ParseInt(resp.Header.Get(common.HeaderFileVersion), 10, 64)
	return &models.Download{
		ContentType: resp.Header.Get("Content-Type"),
		ContentHash: resp.Header.Get(common.HeaderContentHash),
		Version:     n,
		VaultIV:     resp.Header.Get(common.HeaderVaultIV),
		Body:        resp.Body,
	}, nil
}

func (c *HTTPClient) Versions(ctx context.Context, fileID string) ([]models.Version, error) {
	var out struct {
		Versions []models.Version `json:"versions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/files/"+url.PathEscape(fileID)+"/versions", nil, &out); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

func (c *HTTPClient) DeleteFile(ctx context.Context, fileID string, purge bool) error {
	path := "/api/files/" + url.PathEscape(fileID)
	if purge {
		path += "?purge=true"
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, http.StatusNoContent)
}

func (c *HTTPClient) RestoreFile(ctx context.Context, fileID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/files/"+url.PathEscape(fileID)+"/restore", nil, nil, http.StatusNoContent)
}

func (c *HTTPClient) MoveFile(ctx context.Context, fileID, folderID string) error {
	in := map[string]string{"folderId": folderID}
	return c.doJSON(ctx, http.MethodPost, "/api/files/"+url.PathEscape(fileID)+"/move", in, nil, http.StatusNoContent)
}

func (c *HTTPClient) Pull(ctx context.Context, cursor int64) ([]models.SyncEvent, error) {
	var out struct {
		Events []models.SyncEvent `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/sync?cursor="+strconv.FormatInt(cursor, 10), nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}
