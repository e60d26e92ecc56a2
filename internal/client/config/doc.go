// Package config loads runtime configuration for the homecloud CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config. Comments are allowed.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the HTTP API
//	-A string   address:port of the gRPC sync service
//	-t string   access token
//	-d string   local data directory
//	-n int      upload chunk size (bytes)
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
// Intervals accept strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_url": "https://cloud.example.org",
//	  "sync_endpoint_addr": "cloud.example.org:50051",
//	  "access_token": "eyJ...",
//	  "data_dir": "~/.homecloud",
//	  "chunk_size": 4194304,
//	  "request_timeout": "30s",
//	  "online_check_interval": "3s"
//	}
package config
