package config

import "time"

// Config holds runtime settings for the homecloud CLI.
type Config struct {
	// ServerURL is the base URL of the HTTP API.
	ServerURL string
	// SyncEndpointAddr is the host:port of the gRPC sync service. When empty
	// the journal is pulled over HTTP.
	SyncEndpointAddr string
	// AccessToken is the bearer token issued by the account service.
	AccessToken string
	// DataDir holds the local database and default download location.
	DataDir             string
	ChunkSize           int
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.SyncEndpointAddr = "127.0.0.1:50051"
	c.DataDir = "homecloud-data"
	c.ChunkSize = 4 << 20
	c.RequestTimeout = 30 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
