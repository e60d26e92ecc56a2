package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	full := writeTemp(t, dir, "full.json", `{
		// comments are fine
		"server_url": "https://cloud.example",
		"sync_endpoint_addr": "cloud.example:50051",
		"access_token": "tok",
		"data_dir": "/var/hc",
		"chunk_size": 2048,
		"request_timeout": "1m",
		"online_check_interval": "10s"
	}`)

	t.Run("loads all keys", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", full}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "https://cloud.example", cfg.ServerURL)
		assert.Equal(t, "cloud.example:50051", cfg.SyncEndpointAddr)
		assert.Equal(t, "tok", cfg.AccessToken)
		assert.Equal(t, "/var/hc", cfg.DataDir)
		assert.Equal(t, 2048, cfg.ChunkSize)
		assert.Equal(t, time.Minute, cfg.RequestTimeout)
		assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
	})

	t.Run("absent keys keep current values", func(t *testing.T) {
		partial := writeTemp(t, dir, "partial.json", `{"access_token": "t2", "sync_endpoint_addr": ""}`)
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "t2", cfg.AccessToken)
		assert.Empty(t, cfg.SyncEndpointAddr)
		assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
		assert.Equal(t, 4<<20, cfg.ChunkSize)
	})

	t.Run("no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{ServerURL: "defaults:1234", OnlineCheckInterval: 42 * time.Second}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.ServerURL)
		assert.Equal(t, 42*time.Second, cfg.OnlineCheckInterval)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := writeTemp(t, dir, "bad.json", `{ this is not valid json`)
		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}

		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
