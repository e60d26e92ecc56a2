// Package server wires the homecloud services together and runs the HTTP
// API, the gRPC sync endpoint and the background job pool until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/config"
	"github.com/dmitrijs2005/homecloud/internal/server/jobs"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/homecloud/internal/server/rest"
	"github.com/dmitrijs2005/homecloud/internal/server/services"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/homecloud/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	registry *models.Registry
	pool     *jobs.Pool
	http     *rest.HTTPServer
	grpc     *gs.GRPCServer
}

// NewApp opens the database, applies migrations, connects the storage
// backend and builds every service.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogFormat, logging.ParseLevel(c.LogLevel))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	backend, err := storage.New(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	app, err := newApp(c, logger, db, rm, backend)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager, backend storage.Backend) (*App, error) {

	pool := jobs.NewPool(jobs.ConfigFrom(c), logger)
	registry := models.NewRegistry()

	access := services.NewAccessChecker(rm)
	versions := services.NewVersionService(db, rm, backend, c.BackendReadTimeout)
	journal := services.NewJournalService(db, rm, registry, c.SyncPageSize, logger)
	files := services.NewFileService(db, rm, backend, access, versions, journal, logger)
	uploads := services.NewUploadService(db, rm, backend, access, journal, pool, services.LimitsFromConfig(c), logger)
	thumbs := services.NewThumbnailService(db, rm, backend, access, versions, services.ThumbnailSizesFromConfig(c), logger)
	vault := services.NewVaultService(db, rm, logger)
	gc := services.NewGCService(db, rm, backend, c.UploadRetention, logger)

	if err := registry.Register(models.EntityFile, files.Snapshot); err != nil {
		return nil, fmt.Errorf("entity registry: %w", err)
	}
	registry.Freeze()

	pool.Register(services.JobThumbnailPrewarm, jobs.HandleFunc(func(ctx context.Context, j services.ThumbnailJob) error {
		return thumbs.Prewarm(ctx, j.FileID, j.VersionID)
	}))
	pool.Register(services.JobGCSweep, jobs.HandleFunc(func(ctx context.Context, _ services.GCSweepJob) error {
		_, err := gc.Sweep(ctx, time.Now())
		return err
	}))

	grpcServer, err := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, journal, c.SecretKey)
	if err != nil {
		return nil, err
	}

	httpServer := rest.NewHTTPServer(rest.OptionsFromConfig(c), rest.Deps{
		Uploads:    uploads,
		Files:      files,
		Thumbnails: thumbs,
		Journal:    journal,
		Vault:      vault,
	}, logger)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		registry: registry,
		pool:     pool,
		http:     httpServer,
		grpc:     grpcServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// serve runs one listener and cancels the whole app when it fails.
func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, name+" server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startJobs(ctx context.Context) {
	app.pool.Start(ctx)
	if app.config.GCInterval > 0 {
		app.pool.Every(services.JobGCSweep, app.config.GCInterval, func(now time.Time) any {
			return services.GCSweepJob{ScheduledAt: now.Unix()}
		})
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)
	app.startJobs(ctx)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "gRPC", app.grpc.Run)
	}()
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "HTTP", app.http.Run)
	}()

	wg.Wait()

	app.pool.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}

	st := app.pool.Stats()
	app.logger.Info(ctx, "App stopped", "jobs_succeeded", st.Succeeded, "jobs_failed", st.Failed)
}
