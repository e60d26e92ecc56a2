package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/contenthash"
	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/config"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
	"github.com/google/uuid"
)

const defaultMime = "application/octet-stream"

// StartUploadRequest declares an upload before any bytes are sent.
type StartUploadRequest struct {
	Filename      string `json:"filename"`
	OriginalName  string `json:"originalName"`
	Size          int64  `json:"size"`
	Mime          string `json:"mime"`
	TotalChunks   int    `json:"totalChunks"`
	Vault         bool   `json:"vault"`
	IVBase64      string `json:"ivBase64,omitempty"`
	ReplaceFileID string `json:"replaceFileId,omitempty"`
	GroupFolderID string `json:"groupFolderId,omitempty"`
}

// UploadLimits are the hard caps applied to every session.
type UploadLimits struct {
	MaxUploadSize int64
	MaxChunkSize  int64
	MinIVLength   int
}

func LimitsFromConfig(cfg *config.Config) UploadLimits {
	return UploadLimits{MaxUploadSize: cfg.MaxUploadSize, MaxChunkSize: cfg.MaxChunkSize, MinIVLength: cfg.MinIVLength}
}

// UploadService assembles chunked uploads into file versions.
//
// Chunks may arrive in any order and concurrently. Completion is serialized
// per session, in process by a mutex and across processes by the
// completed_at guard on the session row.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	access      *AccessChecker
	journal     *JournalService
	jobs        Enqueuer
	limits      UploadLimits
	logger      logging.Logger
	now         func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// sessionLock serializes completion of one session. It is dropped from
// UploadService.locks once nobody holds or waits for it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewUploadService(db *sql.DB, m repomanager.RepositoryManager, backend storage.Backend, access *AccessChecker,
	journal *JournalService, jobs Enqueuer, limits UploadLimits, logger logging.Logger) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: m,
		backend:     backend,
		access:      access,
		journal:     journal,
		jobs:        jobs,
		limits:      limits,
		logger:      logger,
		now:         time.Now,
		locks:       make(map[string]*sessionLock),
	}
}

// StartSession validates the declaration and opens a session. Nothing is
// persisted when validation fails.
func (s *UploadService) StartSession(ctx context.Context, ownerID string, req StartUploadRequest) (string, error) {
	if req.Size > s.limits.MaxUploadSize {
		return "", &common.SizeLimitError{Size: req.Size, Max: s.limits.MaxUploadSize}
	}
	if req.Size < 0 || req.TotalChunks < 1 || strings.TrimSpace(req.Filename) == "" {
		return "", fmt.Errorf("%w: size %d, %d chunks", common.ErrInvalidUpload, req.Size, req.TotalChunks)
	}
	if s.limits.MaxChunkSize > 0 && int64(req.TotalChunks) > 0 && req.Size > int64(req.TotalChunks)*s.limits.MaxChunkSize {
		return "", fmt.Errorf("%w: %d chunks cannot carry %d bytes", common.ErrInvalidUpload, req.TotalChunks, req.Size)
	}

	iv := ""
	if req.Vault {
		raw, err := base64.StdEncoding.DecodeString(req.IVBase64)
		if req.IVBase64 == "" || err != nil || len(raw) < s.limits.MinIVLength {
			return "", common.ErrIVRequired
		}
		iv = req.IVBase64
	}

	sess := &models.UploadSession{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		GroupFolderID:    req.GroupFolderID,
		DeclaredFilename: req.Filename,
		OriginalName:     req.OriginalName,
		Mime:             req.Mime,
		DeclaredSize:     req.Size,
		TotalChunks:      req.TotalChunks,
		IsVault:          req.Vault,
		IVBase64:         iv,
		ReplaceFileID:    req.ReplaceFileID,
	}
	if sess.OriginalName == "" {
		sess.OriginalName = sess.DeclaredFilename
	}
	if sess.Mime == "" {
		sess.Mime = defaultMime
	}

	if req.ReplaceFileID != "" {
		f, err := s.repomanager.Files(s.db).Get(ctx, req.ReplaceFileID)
		if err != nil {
			return "", err
		}
		if err := s.access.CheckFile(ctx, s.db, ownerID, f); err != nil {
			return "", err
		}
		if f.IsDeleted {
			return "", fmt.Errorf("%w: file %s is deleted", common.ErrorNotFound, f.ID)
		}
		if f.IsVault != req.Vault {
			return "", common.ErrVaultFlagMismatch
		}
		sess.GroupFolderID = f.GroupFolderID
	} else if req.GroupFolderID != "" {
		if err := s.access.CheckScope(ctx, s.db, ownerID, models.Scope{GroupFolderID: req.GroupFolderID}); err != nil {
			return "", err
		}
	}

	if err := s.repomanager.Uploads(s.db).Create(ctx, sess); err != nil {
		return "", err
	}

	s.logger.Info(ctx, "upload session started", "session_id", sess.ID, "owner_id", ownerID,
		"size", sess.DeclaredSize, "chunks", sess.TotalChunks, "vault", sess.IsVault)
	return sess.ID, nil
}

func (s *UploadService) session(ctx context.Context, ownerID, sessionID string) (*models.UploadSession, error) {
	sess, err := s.repomanager.Uploads(s.db).Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerID {
		return nil, common.ErrForbidden
	}
	return sess, nil
}

// PutChunk stores chunk index of a session and returns the upload progress
// in percent. Re-sending an index overwrites the stored chunk and does not
// count twice. size may be -1 when the length is not known up front.
func (s *UploadService) PutChunk(ctx context.Context, ownerID, sessionID string, index int, r io.Reader, size int64) (int, error) {
	sess, err := s.session(ctx, ownerID, sessionID)
	if err != nil {
		return 0, err
	}
	if sess.IsCompleted() {
		return 0, common.ErrAlreadyCompleted
	}
	if index < 0 || index >= sess.TotalChunks {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", common.ErrChunkOutOfRange, index, sess.TotalChunks)
	}
	if s.limits.MaxChunkSize > 0 && size > s.limits.MaxChunkSize {
		return 0, common.ErrChunkTooLarge
	}

	counter := &countingReader{r: r, limit: s.limits.MaxChunkSize}
	if err := s.backend.Put(ctx, storage.ChunkKey(sessionID, index), counter, size); err != nil {
		// S3 uploads do not always keep the reader's error in the chain
		switch {
		case counter.over || errors.Is(err, common.ErrChunkTooLarge):
			return 0, common.ErrChunkTooLarge
		case counter.mismatch(size) || errors.Is(err, storage.ErrSizeMismatch):
			return 0, fmt.Errorf("%w: chunk %d is not the declared %d bytes", common.ErrInvalidUpload, index, size)
		}
		return 0, fmt.Errorf("%w: store chunk: %w", common.ErrBackendUnavailable, err)
	}

	var received int
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		received, err = s.repomanager.Uploads(tx).RecordChunk(ctx, sessionID, index, counter.n)
		return err
	})
	if err != nil {
		return 0, err
	}

	sess.ReceivedChunkCount = received
	return sess.ProgressPercent(), nil
}

// countingReader counts bytes and fails once more than limit bytes arrive.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
	over  bool
	eof   bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		c.over = true
		return n, common.ErrChunkTooLarge
	}
	if err == io.EOF {
		c.eof = true
	}
	return n, err
}

// mismatch reports whether the stream was seen to differ from size bytes.
func (c *countingReader) mismatch(size int64) bool {
	if size < 0 {
		return false
	}
	return c.n > size || (c.eof && c.n != size)
}

func (s *UploadService) lockSession(id string) (unlock func()) {
	id = strings.Clone(id)

	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		defer s.locksMu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
	}
}

// CompleteSession assembles the chunks in index order and commits them as a
// new file or as the next version of the replaced file.
//
// The commit order is hash, store bytes, write version row, append journal.
// Nothing is committed on a size mismatch or backend failure and the session
// stays open, so the client may re-drive completion.
func (s *UploadService) CompleteSession(ctx context.Context, ownerID, sessionID, targetFolderID string) (*models.File, *models.FileVersion, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, err := s.session(ctx, ownerID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.IsCompleted() {
		return nil, nil, common.ErrAlreadyCompleted
	}
	if sess.ReceivedChunkCount != sess.TotalChunks {
		return nil, nil, fmt.Errorf("%w: %d of %d chunks", common.ErrIncompleteUpload, sess.ReceivedChunkCount, sess.TotalChunks)
	}

	hash, err := s.hashChunks(ctx, sess)
	if err != nil {
		return nil, nil, err
	}

	fileID := sess.ReplaceFileID
	if fileID == "" {
		fileID = uuid.NewString()
	}
	version := &models.FileVersion{
		ID:          uuid.NewString(),
		FileID:      fileID,
		Size:        sess.DeclaredSize,
		Mime:        sess.Mime,
		ContentHash: hash,
		IVBase64:    sess.IVBase64,
	}

	versionKey := storage.VersionKey(fileID, version.ID)
	if err := s.storeVersion(ctx, sess, versionKey, hash); err != nil {
		return nil, nil, err
	}

	var file *models.File
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		file, err = s.commit(ctx, tx, sess, version, targetFolderID)
		return err
	})
	if err != nil {
		if delErr := s.backend.Delete(context.WithoutCancel(ctx), versionKey); delErr != nil {
			s.logger.Warn(ctx, "orphaned version blob", "key", versionKey, "error", delErr)
		}
		return nil, nil, err
	}

	s.logger.Info(ctx, "upload completed", "session_id", sessionID, "file_id", file.ID,
		"version", version.VersionNumber, "size", version.Size)

	s.cleanupChunks(ctx, sess)
	if !file.IsVault {
		job := ThumbnailJob{FileID: file.ID, VersionID: version.ID}
		if err := s.jobs.Enqueue(ctx, JobThumbnailPrewarm, job); err != nil {
			s.logger.Warn(ctx, "thumbnail job not enqueued", "file_id", file.ID, "error", err)
		}
	}
	return file, version, nil
}

// readChunks streams every chunk of sess in index order into w.
func (s *UploadService) readChunks(ctx context.Context, sess *models.UploadSession, w io.Writer) error {
	for i := 0; i < sess.TotalChunks; i++ {
		rc, err := s.backend.Get(ctx, storage.ChunkKey(sess.ID, i))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: chunk %d missing", common.ErrIncompleteUpload, i)
			}
			return fmt.Errorf("%w: read chunk %d: %w", common.ErrBackendUnavailable, i, err)
		}
		_, err = io.Copy(w, rc)
		_ = rc.Close()
		if err != nil {
			var we *writeError
			if errors.As(err, &we) {
				return we.err
			}
			return fmt.Errorf("%w: read chunk %d: %w", common.ErrBackendUnavailable, i, err)
		}
	}
	return nil
}

func (s *UploadService) hashChunks(ctx context.Context, sess *models.UploadSession) (string, error) {
	h := contenthash.NewHasher()
	if err := s.readChunks(ctx, sess, h); err != nil {
		return "", err
	}
	if h.Size() != sess.DeclaredSize {
		return "", fmt.Errorf("%w: assembled %d bytes, declared %d", common.ErrIntegrity, h.Size(), sess.DeclaredSize)
	}
	return h.Sum(), nil
}

// writeError marks failures of the writing side of a pipe copy so they are
// not mistaken for chunk read errors.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }

type pipeWriter struct{ pw *io.PipeWriter }

func (p pipeWriter) Write(b []byte) (int, error) {
	n, err := p.pw.Write(b)
	if err != nil {
		return n, &writeError{err: err}
	}
	return n, nil
}

// storeVersion streams the chunks a second time into the version key. The
// bytes written must hash to the digest of the first pass.
func (s *UploadService) storeVersion(ctx context.Context, sess *models.UploadSession, key, wantHash string) error {
	h := contenthash.NewHasher()
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.readChunks(ctx, sess, io.MultiWriter(pipeWriter{pw: pw}, h)))
	}()

	err := s.backend.Put(ctx, key, pr, sess.DeclaredSize)
	_ = pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		if errors.Is(err, common.ErrIncompleteUpload) || errors.Is(err, common.ErrBackendUnavailable) {
			return err
		}
		return fmt.Errorf("%w: store version: %w", common.ErrBackendUnavailable, err)
	}

	if got := h.Sum(); got != wantHash {
		if err := s.backend.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn(ctx, "orphaned version blob", "key", key, "error", err)
		}
		return fmt.Errorf("%w: chunks changed during assembly", common.ErrIntegrity)
	}
	return nil
}

func (s *UploadService) commit(ctx context.Context, tx dbx.DBTX, sess *models.UploadSession, v *models.FileVersion, targetFolderID string) (*models.File, error) {
	files := s.repomanager.Files(tx)
	versions := s.repomanager.Versions(tx)

	var (
		file   *models.File
		action models.Action
	)
	if sess.ReplaceFileID != "" {
		var err error
		file, err = files.GetForUpdate(ctx, sess.ReplaceFileID)
		if err != nil {
			return nil, err
		}
		if file.IsVault != sess.IsVault {
			return nil, common.ErrVaultFlagMismatch
		}
		n, err := versions.NextNumber(ctx, file.ID)
		if err != nil {
			return nil, err
		}
		v.VersionNumber = n
		if err := versions.Create(ctx, v); err != nil {
			return nil, err
		}
		if err := files.UpdateContent(ctx, file.ID, v.ContentHash, v.Mime, v.IVBase64); err != nil {
			return nil, err
		}
		file.CurrentHash = v.ContentHash
		file.Mime = v.Mime
		file.IVBase64 = v.IVBase64
		action = models.ActionUpdate
	} else {
		file = &models.File{
			ID:          v.FileID,
			FolderID:    targetFolderID,
			LogicalName: sess.DeclaredFilename,
			Mime:        v.Mime,
			IsVault:     sess.IsVault,
			IVBase64:    sess.IVBase64,
			CurrentHash: v.ContentHash,
			Layout:      models.LayoutVersioned,
		}
		if sess.GroupFolderID != "" {
			file.GroupFolderID = sess.GroupFolderID
		} else {
			file.OwnerID = sess.OwnerID
		}
		if err := files.Create(ctx, file); err != nil {
			return nil, err
		}
		v.VersionNumber = 1
		if err := versions.Create(ctx, v); err != nil {
			return nil, err
		}
		action = models.ActionCreate
	}

	if err := s.repomanager.Uploads(tx).MarkCompleted(ctx, sess.ID, s.now()); err != nil {
		return nil, err
	}
	if _, err := s.journal.AppendFanOut(ctx, tx, file.Scope(), models.EntityFile, file.ID, action); err != nil {
		return nil, err
	}
	return file, nil
}

// cleanupChunks drops the consumed chunks. Failures are left to the GC sweep.
func (s *UploadService) cleanupChunks(ctx context.Context, sess *models.UploadSession) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < sess.TotalChunks; i++ {
		key := storage.ChunkKey(sess.ID, i)
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Warn(ctx, "chunk cleanup failed", "key", key, "error", err)
			return
		}
	}
}
