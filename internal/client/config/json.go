package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/homecloud/internal/flagx"
	"github.com/dmitrijs2005/homecloud/internal/timex"
	"github.com/tidwall/jsonc"
)

// JsonConfig is the on-disk shape of the CLI config file. Only keys present
// in the file override the current values; comments are allowed.
type JsonConfig struct {
	ServerURL           *string         `json:"server_url"`
	SyncEndpointAddr    *string         `json:"sync_endpoint_addr"`
	AccessToken         *string         `json:"access_token"`
	DataDir             *string         `json:"data_dir"`
	ChunkSize           *int            `json:"chunk_size"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
}

// parseJson overlays cfg with the file named by -c/-config. Without the flag
// nothing happens; read or decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	if jc.ServerURL != nil {
		cfg.ServerURL = *jc.ServerURL
	}
	if jc.SyncEndpointAddr != nil {
		cfg.SyncEndpointAddr = *jc.SyncEndpointAddr
	}
	if jc.AccessToken != nil {
		cfg.AccessToken = *jc.AccessToken
	}
	if jc.DataDir != nil {
		cfg.DataDir = *jc.DataDir
	}
	if jc.ChunkSize != nil {
		cfg.ChunkSize = *jc.ChunkSize
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
}
