package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/client/client"
	"github.com/dmitrijs2005/homecloud/internal/client/config"
	"github.com/dmitrijs2005/homecloud/internal/client/repositories/cursors"
	"github.com/dmitrijs2005/homecloud/internal/client/repositories/salts"
	"github.com/dmitrijs2005/homecloud/internal/client/services"
	"github.com/dmitrijs2005/homecloud/internal/client/vault"
	"github.com/dmitrijs2005/homecloud/internal/filex"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// vaultIface is the vault surface the commands use.
type vaultIface interface {
	State() vault.State
	FolderID() string
	Load(ctx context.Context) error
	Unlock(ctx context.Context, passphrase []byte) error
	Lock()
}

type pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	config      *config.Config
	db          *sql.DB
	api         pinger
	closers     []io.Closer
	vault       vaultIface
	files       services.FileService
	sync        services.SyncService
	downloadDir string
	mu          sync.Mutex
	Mode        Mode
	reader      *bufio.Reader
	out         io.Writer
}

// NewApp opens the local state under c.DataDir and prepares the API
// clients. The journal is pulled over gRPC when c.SyncEndpointAddr is set.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if c.AccessToken == "" {
		return nil, errors.New("access token is required (-t or access_token)")
	}
	userID, err := client.UserIDFromToken(c.AccessToken)
	if err != nil {
		return nil, err
	}

	dataDir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, err
	}
	downloadDir, err := filex.EnsureDir(filepath.Join(dataDir, "downloads"))
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, filepath.Join(dataDir, "client.db"))
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	api := client.NewHTTPClient(c.ServerURL, c.AccessToken, c.RequestTimeout)

	a := &App{
		config:      c,
		db:          db,
		api:         api,
		downloadDir: downloadDir,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}

	var puller services.Puller = api
	if c.SyncEndpointAddr != "" {
		g, err := client.NewGRPCSyncClient(c.SyncEndpointAddr, c.AccessToken)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.closers = append(a.closers, g)
		puller = g
	}

	v := vault.New(api, salts.NewSQLiteRepository(db), userID)
	a.vault = v
	a.files = services.NewFileService(api, v, c.ChunkSize)
	a.sync = services.NewSyncService(puller, cursors.NewSQLiteRepository(db), userID)

	return a, nil
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Mode != mode {
		a.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) getStatus() string {
	a.mu.Lock()
	mode := a.Mode
	a.mu.Unlock()

	s := a.vault.State().String()
	if mode != "" {
		s = string(mode) + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}

// Run loads the vault status, starts the connectivity watcher and blocks in
// the REPL until the user exits or stdin closes.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	log.Println("Welcome to homecloud CLI (type 'help' for commands)")

	if err := a.vault.Load(ctx); err != nil {
		log.Printf("vault status unavailable: %s", describe(err))
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) Close() {
	if a.vault != nil {
		a.vault.Lock()
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.api.Ping(pctx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
