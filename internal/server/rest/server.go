// Package rest exposes the file core over HTTP with fiber. Handlers are thin:
// they authenticate, decode, call one service method and map its error to a
// status code in a single place (fail).
package rest

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/config"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Uploader interface {
	StartSession(ctx context.Context, ownerID string, req services.StartUploadRequest) (string, error)
	PutChunk(ctx context.Context, ownerID, sessionID string, index int, r io.Reader, size int64) (int, error)
	CompleteSession(ctx context.Context, ownerID, sessionID, targetFolderID string) (*models.File, *models.FileVersion, error)
}

type FileManager interface {
	Open(ctx context.Context, userID, fileID string, n int64) (*services.Download, error)
	ListVersions(ctx context.Context, userID, fileID string) ([]*models.FileVersion, error)
	SoftDelete(ctx context.Context, userID, fileID string) error
	Purge(ctx context.Context, userID, fileID string) error
	Restore(ctx context.Context, userID, fileID string) error
	Move(ctx context.Context, userID, fileID, folderID string) error
}

type Thumbnailer interface {
	GetOrGenerate(ctx context.Context, userID, fileID string, size int) ([]byte, error)
}

type SyncSource interface {
	Pull(ctx context.Context, ownerID string, cursor int64, limit int) ([]models.SyncEvent, error)
}

type VaultStore interface {
	Status(ctx context.Context, userID string) (*models.VaultStatus, error)
	SaveEnvelope(ctx context.Context, userID, cipher, iv, salt string) (*models.VaultStatus, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Uploads    Uploader
	Files      FileManager
	Thumbnails Thumbnailer
	Journal    SyncSource
	Vault      VaultStore
}

type Options struct {
	Address      string
	SecretKey    string
	MaxChunkSize int64
	// ChunkRateLimit caps chunk uploads per user and minute; 0 disables it.
	ChunkRateLimit int
	// LimiterStorage holds the rate limit buckets; nil keeps them in memory
	// for the lifetime of the server.
	LimiterStorage fiber.Storage
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Address:        cfg.EndpointAddrHTTP,
		SecretKey:      cfg.SecretKey,
		MaxChunkSize:   cfg.MaxChunkSize,
		ChunkRateLimit: cfg.ChunkRateLimit,
	}
}

type HTTPServer struct {
	address   string
	app       *fiber.App
	deps      Deps
	logger    logging.Logger
	jwtSecret []byte
}

// multipartOverhead is added to the chunk cap for form boundaries and headers.
const multipartOverhead = 64 << 10

func NewHTTPServer(opts Options, deps Deps, l logging.Logger) *HTTPServer {
	s := &HTTPServer{
		address:   opts.Address,
		deps:      deps,
		logger:    l.With("module", "http_server"),
		jwtSecret: []byte(opts.SecretKey),
	}

	bodyLimit := fiber.DefaultBodyLimit
	if opts.MaxChunkSize > 0 {
		bodyLimit = int(opts.MaxChunkSize) + multipartOverhead
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "homecloud",
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleFiberError,
	})
	s.app.Use(recover.New())
	s.routes(opts)
	return s
}

func (s *HTTPServer) routes(opts Options) {
	s.app.Get("/api/ping", s.ping)

	api := s.app.Group("/api", s.authenticate)

	chunk := []fiber.Handler{}
	if opts.ChunkRateLimit > 0 {
		chunk = append(chunk, limiter.New(limiter.Config{
			Max:          opts.ChunkRateLimit,
			Expiration:   time.Minute,
			KeyGenerator: userID,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(errorBody{Error: "too many chunk uploads"})
			},
			Storage: opts.LimiterStorage,
		}))
	}

	api.Post("/uploads", s.startUpload)
	api.Put("/uploads/:id/chunks/:index", append(chunk, s.putChunk)...)
	api.Post("/uploads/:id/complete", s.completeUpload)

	api.Get("/files/:id/content", s.download)
	api.Get("/files/:id/thumbnail", s.thumbnail)
	api.Get("/files/:id/versions", s.listVersions)
	api.Delete("/files/:id", s.deleteFile)
	api.Post("/files/:id/restore", s.restoreFile)
	api.Post("/files/:id/move", s.moveFile)

	api.Get("/sync", s.pull)

	api.Get("/vault", s.vaultStatus)
	api.Put("/vault/envelope", s.saveEnvelope)
}

// App returns the underlying fiber application.
func (s *HTTPServer) App() *fiber.App { return s.app }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	return s.app.Listen(s.address)
}
