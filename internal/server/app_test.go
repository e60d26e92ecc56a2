package server

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/config"
	"github.com/dmitrijs2005/homecloud/internal/server/jobs"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/homecloud/internal/server/services"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.EndpointAddrHTTP = "127.0.0.1:0"
	cfg.EndpointAddrGRPC = "127.0.0.1:0"

	app, err := newApp(cfg, logging.Nop{}, db, repomanager.NewPostgresRepositoryManager(), storage.NewMemoryBackend())
	require.NoError(t, err)
	return app
}

func TestNewApp_RegistryFrozen(t *testing.T) {
	app := newTestApp(t)

	err := app.registry.Register(models.EntityFolder, func(context.Context, string) (any, error) { return nil, nil })
	assert.Error(t, err)
}

func TestNewApp_JobHandlersRegistered(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	assert.NoError(t, app.pool.Enqueue(ctx, services.JobThumbnailPrewarm, services.ThumbnailJob{FileID: "f", VersionID: "v"}))
	assert.NoError(t, app.pool.Enqueue(ctx, services.JobGCSweep, services.GCSweepJob{}))
	assert.ErrorIs(t, app.pool.Enqueue(ctx, "nope", nil), jobs.ErrUnknownKind)
}
