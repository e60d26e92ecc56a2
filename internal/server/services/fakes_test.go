package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/files"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/journal"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/members"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/vault"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/versions"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the relational store. Transactions
// are not modelled: sqlmock checks their boundaries, memStore their effects.
type memStore struct {
	mu        sync.Mutex
	files     map[string]*models.File
	versions  map[string]*models.FileVersion
	sessions  map[string]*models.UploadSession
	chunks    map[string]map[int]int64
	envelopes map[string]*models.VaultEnvelope
	entries   []*models.JournalEntry
	members   map[string][]string
	locks     []string
	nextID    int64

	// fail injects an error into the named operation, e.g. "versions.Create".
	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		files:     make(map[string]*models.File),
		versions:  make(map[string]*models.FileVersion),
		sessions:  make(map[string]*models.UploadSession),
		chunks:    make(map[string]map[int]int64),
		envelopes: make(map[string]*models.VaultEnvelope),
		members:   make(map[string][]string),
		fail:      make(map[string]error),
	}
}

func (s *memStore) injected(op string) error {
	return s.fail[op]
}

func (s *memStore) journalFor(owner string) []*models.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.JournalEntry
	for _, e := range s.entries {
		if e.OwnerID == owner {
			c := *e
			out = append(out, &c)
		}
	}
	return out
}

func (s *memStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type memFiles struct{ s *memStore }

func (r memFiles) Create(ctx context.Context, f *models.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("files.Create"); err != nil {
		return err
	}
	if _, ok := r.s.files[f.ID]; ok {
		return fmt.Errorf("db error: duplicate file %s", f.ID)
	}
	now := time.Now()
	f.CreatedAt, f.UpdatedAt = now, now
	c := *f
	r.s.files[f.ID] = &c
	return nil
}

func (r memFiles) Get(ctx context.Context, id string) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("files.Get"); err != nil {
		return nil, err
	}
	f, ok := r.s.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *f
	return &c, nil
}

func (r memFiles) GetForUpdate(ctx context.Context, id string) (*models.File, error) {
	return r.Get(ctx, id)
}

func (r memFiles) update(id string, fn func(f *models.File)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(f)
	f.UpdatedAt = time.Now()
	return nil
}

func (r memFiles) UpdateContent(ctx context.Context, id, hash, mime, iv string) error {
	return r.update(id, func(f *models.File) { f.CurrentHash, f.Mime, f.IVBase64 = hash, mime, iv })
}

func (r memFiles) SetDeleted(ctx context.Context, id string, deleted bool) error {
	return r.update(id, func(f *models.File) { f.IsDeleted = deleted })
}

func (r memFiles) Move(ctx context.Context, id, folderID string) error {
	return r.update(id, func(f *models.File) { f.FolderID = folderID })
}

func (r memFiles) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.files[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.files, id)
	for vid, v := range r.s.versions {
		if v.FileID == id {
			delete(r.s.versions, vid)
		}
	}
	return nil
}

type memVersions struct{ s *memStore }

func (r memVersions) Create(ctx context.Context, v *models.FileVersion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("versions.Create"); err != nil {
		return err
	}
	for _, o := range r.s.versions {
		if o.FileID == v.FileID && o.VersionNumber == v.VersionNumber {
			return fmt.Errorf("db error: duplicate version %d of %s", v.VersionNumber, v.FileID)
		}
	}
	v.CreatedAt = time.Now()
	c := *v
	r.s.versions[v.ID] = &c
	return nil
}

func (r memVersions) Get(ctx context.Context, id string) (*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.versions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *v
	return &c, nil
}

func (r memVersions) ListByFile(ctx context.Context, fileID string) ([]*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.FileVersion
	for _, v := range r.s.versions {
		if v.FileID == fileID {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (r memVersions) Latest(ctx context.Context, fileID string) (*models.FileVersion, error) {
	all, _ := r.ListByFile(ctx, fileID)
	if len(all) == 0 {
		return nil, common.ErrorNotFound
	}
	return all[len(all)-1], nil
}

func (r memVersions) GetByNumber(ctx context.Context, fileID string, n int64) (*models.FileVersion, error) {
	all, _ := r.ListByFile(ctx, fileID)
	for _, v := range all {
		if v.VersionNumber == n {
			return v, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memVersions) NextNumber(ctx context.Context, fileID string) (int64, error) {
	all, _ := r.ListByFile(ctx, fileID)
	if len(all) == 0 {
		return 1, nil
	}
	return all[len(all)-1].VersionNumber + 1, nil
}

func (r memVersions) Exists(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("versions.Exists"); err != nil {
		return false, err
	}
	_, ok := r.s.versions[id]
	return ok, nil
}

type memUploads struct{ s *memStore }

func (r memUploads) Create(ctx context.Context, sess *models.UploadSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess.CreatedAt = time.Now()
	c := *sess
	r.s.sessions[sess.ID] = &c
	return nil
}

func (r memUploads) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *sess
	return &c, nil
}

func (r memUploads) RecordChunk(ctx context.Context, sessionID string, index int, size int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("uploads.RecordChunk"); err != nil {
		return 0, err
	}
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	if sess.IsCompleted() {
		return 0, common.ErrAlreadyCompleted
	}
	if r.s.chunks[sessionID] == nil {
		r.s.chunks[sessionID] = make(map[int]int64)
	}
	r.s.chunks[sessionID][index] = size
	sess.ReceivedChunkCount = len(r.s.chunks[sessionID])
	return sess.ReceivedChunkCount, nil
}

func (r memUploads) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	if sess.IsCompleted() {
		return common.ErrAlreadyCompleted
	}
	sess.CompletedAt = &at
	return nil
}

func (r memUploads) ListReclaimable(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("uploads.ListReclaimable"); err != nil {
		return nil, err
	}
	var out []*models.UploadSession
	for _, sess := range r.s.sessions {
		if sess.IsCompleted() || sess.CreatedAt.Before(cutoff) {
			c := *sess
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memUploads) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.sessions, id)
	delete(r.s.chunks, id)
	return nil
}

type memVault struct{ s *memStore }

func (r memVault) Get(ctx context.Context, userID string) (*models.VaultEnvelope, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	env, ok := r.s.envelopes[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *env
	return &c, nil
}

func (r memVault) Create(ctx context.Context, env *models.VaultEnvelope) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.envelopes[env.UserID]; ok {
		return common.ErrEnvelopeExists
	}
	c := *env
	r.s.envelopes[env.UserID] = &c
	return nil
}

func (r memVault) FillSalt(ctx context.Context, userID, cipher, iv, salt string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	env, ok := r.s.envelopes[userID]
	if !ok || env.SaltBase64 != "" || env.CipherBase64 != cipher || env.IVBase64 != iv {
		return common.ErrEnvelopeExists
	}
	env.SaltBase64 = salt
	return nil
}

type memJournal struct{ s *memStore }

func (r memJournal) LockOwner(ctx context.Context, ownerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.locks = append(r.s.locks, ownerID)
	return nil
}

func (r memJournal) Append(ctx context.Context, e *models.JournalEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("journal.Append"); err != nil {
		return err
	}
	r.s.nextID++
	e.ID = r.s.nextID
	e.CreatedAt = time.Now()
	c := *e
	r.s.entries = append(r.s.entries, &c)
	return nil
}

func (r memJournal) ListAfter(ctx context.Context, ownerID string, cursor int64, limit int) ([]*models.JournalEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.JournalEntry
	for _, e := range r.s.entries {
		if e.OwnerID == ownerID && e.ID > cursor {
			c := *e
			out = append(out, &c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memMembers struct{ s *memStore }

func (r memMembers) IsMember(ctx context.Context, groupFolderID, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Contains(r.s.members[groupFolderID], userID), nil
}

func (r memMembers) List(ctx context.Context, groupFolderID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := slices.Clone(r.s.members[groupFolderID])
	slices.Sort(out)
	return out, nil
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository             { return memFiles{m.s} }
func (m *fakeRepoManager) Versions(dbx.DBTX) versions.Repository       { return memVersions{m.s} }
func (m *fakeRepoManager) Uploads(dbx.DBTX) uploads.Repository         { return memUploads{m.s} }
func (m *fakeRepoManager) Vault(dbx.DBTX) vault.Repository             { return memVault{m.s} }
func (m *fakeRepoManager) Journal(dbx.DBTX) journal.Repository         { return memJournal{m.s} }
func (m *fakeRepoManager) Members(dbx.DBTX) members.Repository         { return memMembers{m.s} }

type enqueued struct {
	kind    string
	payload any
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, kind string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, enqueued{kind: kind, payload: payload})
	return nil
}

func (f *fakeEnqueuer) all() []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.jobs)
}

// flakyBackend wraps a backend and fails selected calls.
type flakyBackend struct {
	storage.Backend
	mu        sync.Mutex
	getErr    error
	putErr    error
	deleteErr error
	listErr   error
	getDelay  time.Duration
	readDelay time.Duration
}

func (b *flakyBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	err, delay, readDelay := b.getErr, b.getDelay, b.readDelay
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	rc, err := b.Backend.Get(ctx, key)
	if err != nil || readDelay == 0 {
		return rc, err
	}
	return &slowBody{ReadCloser: rc, ctx: ctx, delay: readDelay}, nil
}

// slowBody waits delay before every read, like a network body it gives up
// when its request context ends.
type slowBody struct {
	io.ReadCloser
	ctx   context.Context
	delay time.Duration
}

func (b *slowBody) Read(p []byte) (int, error) {
	select {
	case <-time.After(b.delay):
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	}
	return b.ReadCloser.Read(p)
}

func (b *flakyBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	b.mu.Lock()
	err := b.putErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.Backend.Put(ctx, key, r, size)
}

func (b *flakyBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	err := b.deleteErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.Backend.Delete(ctx, key)
}

func (b *flakyBackend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	err := b.listErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.Backend.List(ctx, prefix)
}

// env wires every service over memStore, a memory backend and sqlmock.
type env struct {
	t        *testing.T
	db       *sql.DB
	mock     sqlmock.Sqlmock
	store    *memStore
	mem      *storage.MemoryBackend
	backend  *flakyBackend
	jobs     *fakeEnqueuer
	registry *models.Registry

	access   *AccessChecker
	journal  *JournalService
	versions *VersionService
	uploads  *UploadService
	files    *FileService
	vault    *VaultService
	thumbs   *ThumbnailService
	gc       *GCService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	e := &env{
		t:        t,
		db:       db,
		mock:     mock,
		store:    newMemStore(),
		mem:      storage.NewMemoryBackend(),
		jobs:     &fakeEnqueuer{},
		registry: models.NewRegistry(),
	}
	e.backend = &flakyBackend{Backend: e.mem}
	rm := &fakeRepoManager{s: e.store}
	log := logging.Nop{}

	e.access = NewAccessChecker(rm)
	e.journal = NewJournalService(db, rm, e.registry, 100, log)
	e.versions = NewVersionService(db, rm, e.backend, time.Second)
	e.uploads = NewUploadService(db, rm, e.backend, e.access, e.journal, e.jobs,
		UploadLimits{MaxUploadSize: 1 << 20, MaxChunkSize: 1 << 10, MinIVLength: 12}, log)
	e.files = NewFileService(db, rm, e.backend, e.access, e.versions, e.journal, log)
	e.vault = NewVaultService(db, rm, log)
	e.thumbs = NewThumbnailService(db, rm, e.backend, e.access, e.versions,
		ThumbnailSizes{Min: 16, Max: 512, Default: 64}, log)
	e.gc = NewGCService(db, rm, e.backend, time.Hour, log)

	require.NoError(t, e.registry.Register(models.EntityFile, e.files.Snapshot))
	e.registry.Freeze()
	return e
}

// expectTx declares n committed transactions.
func (e *env) expectTx(n int) {
	for i := 0; i < n; i++ {
		e.mock.ExpectBegin()
		e.mock.ExpectCommit()
	}
}

// expectRollback declares one transaction that is rolled back.
func (e *env) expectRollback() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

// upload runs a full start/put/complete cycle with the given chunks sent in
// index order and returns the committed file and version.
func (e *env) upload(owner string, req StartUploadRequest, chunks ...[]byte) (*models.File, *models.FileVersion) {
	e.t.Helper()
	ctx := context.Background()
	if req.TotalChunks == 0 {
		req.TotalChunks = len(chunks)
	}
	if req.Size == 0 {
		for _, c := range chunks {
			req.Size += int64(len(c))
		}
	}
	if req.Filename == "" {
		req.Filename = "file.bin"
	}

	id, err := e.uploads.StartSession(ctx, owner, req)
	require.NoError(e.t, err)
	e.expectTx(len(chunks) + 1)
	for i, c := range chunks {
		_, err := e.uploads.PutChunk(ctx, owner, id, i, bytes.NewReader(c), int64(len(c)))
		require.NoError(e.t, err)
	}
	f, v, err := e.uploads.CompleteSession(ctx, owner, id, "")
	require.NoError(e.t, err)
	return f, v
}

func (e *env) read(userID, fileID string, n int64) []byte {
	e.t.Helper()
	d, err := e.files.Open(context.Background(), userID, fileID, n)
	require.NoError(e.t, err)
	defer d.Body.Close()
	data, err := io.ReadAll(d.Body)
	require.NoError(e.t, err)
	return data
}
