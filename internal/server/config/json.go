package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/homecloud/internal/flagx"
	"github.com/dmitrijs2005/homecloud/internal/timex"
	"github.com/tidwall/jsonc"
)

// JsonConfig is the on-disk shape of the server config file. Durations use
// timex.Duration so both "90s" and integer nanoseconds are accepted, and
// the file may contain // and /* */ comments.
//
// Only keys present in the file override the current values.
type JsonConfig struct {
	EndpointAddrHTTP     *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC     *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN          *string         `json:"database_dsn"`
	SecretKey            *string         `json:"secret_key"`
	StorageBackend       *string         `json:"storage_backend"`
	LocalStorageRoot     *string         `json:"local_storage_root"`
	S3RootUser           *string         `json:"s3_root_user"`
	S3RootPassword       *string         `json:"s3_root_password"`
	S3Bucket             *string         `json:"s3_bucket"`
	S3Region             *string         `json:"s3_region"`
	S3BaseEndpoint       *string         `json:"s3_base_endpoint"`
	MaxUploadSize        *int64          `json:"max_upload_size"`
	MaxChunkSize         *int64          `json:"max_chunk_size"`
	MinIVLength          *int            `json:"min_iv_length"`
	UploadRetention      *timex.Duration `json:"upload_retention"`
	GCInterval           *timex.Duration `json:"gc_interval"`
	BackendReadTimeout   *timex.Duration `json:"backend_read_timeout"`
	ThumbnailMinSize     *int            `json:"thumbnail_min_size"`
	ThumbnailMaxSize     *int            `json:"thumbnail_max_size"`
	ThumbnailDefaultSize *int            `json:"thumbnail_default_size"`
	Workers              *int            `json:"workers"`
	QueueSize            *int            `json:"queue_size"`
	JobMaxAttempts       *int            `json:"job_max_attempts"`
	SyncPageSize         *int            `json:"sync_page_size"`
	ChunkRateLimit       *int            `json:"chunk_rate_limit"`
	LogFormat            *string         `json:"log_format"`
	LogLevel             *string         `json:"log_level"`
}

// parseJson loads configuration values from the file named by -c/-config
// into config. Without the flag nothing happens. An unreadable file or
// invalid JSON panics, as a half-applied config is worse than none.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()

	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(jsonc.ToJSON(file), c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.LocalStorageRoot, c.LocalStorageRoot)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)

	if c.MaxUploadSize != nil {
		config.MaxUploadSize = *c.MaxUploadSize
	}
	if c.MaxChunkSize != nil {
		config.MaxChunkSize = *c.MaxChunkSize
	}
	setInt(&config.MinIVLength, c.MinIVLength)
	setInt(&config.ThumbnailMinSize, c.ThumbnailMinSize)
	setInt(&config.ThumbnailMaxSize, c.ThumbnailMaxSize)
	setInt(&config.ThumbnailDefaultSize, c.ThumbnailDefaultSize)
	setInt(&config.Workers, c.Workers)
	setInt(&config.QueueSize, c.QueueSize)
	setInt(&config.JobMaxAttempts, c.JobMaxAttempts)
	setInt(&config.SyncPageSize, c.SyncPageSize)
	setInt(&config.ChunkRateLimit, c.ChunkRateLimit)

	if c.UploadRetention != nil {
		config.UploadRetention = c.UploadRetention.Duration
	}
	if c.GCInterval != nil {
		config.GCInterval = c.GCInterval.Duration
	}
	if c.BackendReadTimeout != nil {
		config.BackendReadTimeout = c.BackendReadTimeout.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
