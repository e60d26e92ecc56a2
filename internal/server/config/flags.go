package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-A string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-k string   storage backend ("local" or "s3")
//	-l string   local storage root directory
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-m int      maximum upload size, bytes
//	-r int      upload retention, minutes
//	-i int      GC interval, minutes
//	-w int      background workers
//	-f string   log format ("json" or "text")
//
// Unrecognized arguments are dropped by flagx.FilterArgs first.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-A", "-d", "-s", "-k", "-l", "-u", "-p", "-b", "-g", "-e", "-m", "-r", "-i", "-w", "-f"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run the HTTP API")
	fs.StringVar(&config.EndpointAddrGRPC, "A", config.EndpointAddrGRPC, "address and port to run the gRPC sync server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "storage backend: local or s3")
	fs.StringVar(&config.LocalStorageRoot, "l", config.LocalStorageRoot, "local storage root")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.Int64Var(&config.MaxUploadSize, "m", config.MaxUploadSize, "maximum upload size (bytes)")
	retention := fs.Int("r", int(config.UploadRetention.Minutes()), "upload retention (in minutes)")
	gcInterval := fs.Int("i", int(config.GCInterval.Minutes()), "gc interval (in minutes)")
	fs.IntVar(&config.Workers, "w", config.Workers, "background workers")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format: json or text")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.UploadRetention = time.Duration(*retention) * time.Minute
	config.GCInterval = time.Duration(*gcInterval) * time.Minute
}
