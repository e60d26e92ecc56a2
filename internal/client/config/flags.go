package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the HTTP API
//	-A string   address of the gRPC sync service ("" pulls over HTTP)
//	-t string   access token
//	-d string   local data directory
//	-n int      upload chunk size, bytes
//	-i int      online check interval (in seconds)
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-A", "-t", "-d", "-n", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the homecloud API")
	fs.StringVar(&cfg.SyncEndpointAddr, "A", cfg.SyncEndpointAddr, "address and port of the sync service")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "local data directory")
	fs.IntVar(&cfg.ChunkSize, "n", cfg.ChunkSize, "upload chunk size (bytes)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
