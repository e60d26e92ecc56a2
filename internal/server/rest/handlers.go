package rest

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const thumbnailCacheControl = "public, max-age=31536000, immutable"

func (s *HTTPServer) ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "OK"})
}

func (s *HTTPServer) startUpload(c *fiber.Ctx) error {
	var req services.StartUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fmt.Errorf("%w: %v", common.ErrInvalidUpload, err))
	}

	id, err := s.deps.Uploads.StartSession(c.UserContext(), userID(c), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(startUploadResponse{UploadID: id})
}

func (s *HTTPServer) putChunk(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return s.fail(c, fmt.Errorf("%w: %q", common.ErrChunkOutOfRange, c.Params("index")))
	}

	var (
		body io.Reader
		size int64
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("chunk")
		if err != nil {
			return s.fail(c, fmt.Errorf("%w: missing chunk field", common.ErrInvalidUpload))
		}
		f, err := fh.Open()
		if err != nil {
			return s.fail(c, err)
		}
		defer f.Close()
		body, size = f, fh.Size
	} else {
		raw := c.Body()
		body, size = bytes.NewReader(raw), int64(len(raw))
	}

	progress, err := s.deps.Uploads.PutChunk(c.UserContext(), userID(c), c.Params("id"), index, body, size)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(chunkResponse{ProgressPercent: progress})
}

func (s *HTTPServer) completeUpload(c *fiber.Ctx) error {
	var req completeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return s.fail(c, fmt.Errorf("%w: %v", common.ErrInvalidUpload, err))
		}
	}

	// the id becomes a map key in the upload service
	f, v, err := s.deps.Uploads.CompleteSession(c.UserContext(), userID(c), utils.CopyString(c.Params("id")), req.TargetFolderID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(completeResponse{File: toFileResponse(f), Version: toVersionResponse(v)})
}

func (s *HTTPServer) download(c *fiber.Ctx) error {
	d, err := s.deps.Files.Open(c.UserContext(), userID(c), c.Params("id"), int64(c.QueryInt("version", 0)))
	if err != nil {
		return s.fail(c, err)
	}

	contentType := d.Version.Mime
	if d.File.IsVault || contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(common.HeaderContentHash, d.Version.ContentHash)
	c.Set(common.HeaderFileVersion, strconv.FormatInt(d.Version.VersionNumber, 10))
	if d.File.IsVault {
		c.Set(common.HeaderVaultIV, d.Version.IVBase64)
	}
	return c.SendStream(d.Body, int(d.Version.Size))
}

func (s *HTTPServer) thumbnail(c *fiber.Ctx) error {
	data, err := s.deps.Thumbnails.GetOrGenerate(c.UserContext(), userID(c), c.Params("id"), c.QueryInt("size", 0))
	if err != nil {
		return s.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "image/webp")
	c.Set(fiber.HeaderCacheControl, thumbnailCacheControl)
	return c.Send(data)
}

func (s *HTTPServer) listVersions(c *fiber.Ctx) error {
	vs, err := s.deps.Files.ListVersions(c.UserContext(), userID(c), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}

	resp := versionsResponse{Versions: make([]versionResponse, 0, len(vs))}
	for _, v := range vs {
		resp.Versions = append(resp.Versions, toVersionResponse(v))
	}
	return c.JSON(resp)
}

func (s *HTTPServer) deleteFile(c *fiber.Ctx) error {
	remove := s.deps.Files.SoftDelete
	if c.QueryBool("purge", false) {
		remove = s.deps.Files.Purge
	}
	if err := remove(c.UserContext(), userID(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *HTTPServer) restoreFile(c *fiber.Ctx) error {
	if err := s.deps.Files.Restore(c.UserContext(), userID(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *HTTPServer) moveFile(c *fiber.Ctx) error {
	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: "invalid move request"})
	}

	if err := s.deps.Files.Move(c.UserContext(), userID(c), c.Params("id"), req.FolderID); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *HTTPServer) pull(c *fiber.Ctx) error {
	var cursor int64
	if raw := c.Query("cursor"); raw != "" {
		var err error
		if cursor, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: "invalid cursor"})
		}
	}

	events, err := s.deps.Journal.Pull(c.UserContext(), userID(c), cursor, c.QueryInt("limit", 0))
	if err != nil {
		return s.fail(c, err)
	}
	if events == nil {
		events = []models.SyncEvent{}
	}
	return c.JSON(syncResponse{Events: events})
}

func (s *HTTPServer) vaultStatus(c *fiber.Ctx) error {
	st, err := s.deps.Vault.Status(c.UserContext(), userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(st)
}

func (s *HTTPServer) saveEnvelope(c *fiber.Ctx) error {
	var req envelopeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fmt.Errorf("%w: %v", common.ErrInvalidEnvelope, err))
	}

	if _, err := s.deps.Vault.SaveEnvelope(c.UserContext(), userID(c), req.Cipher, req.IV, req.Salt); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(okResponse{OK: true})
}
