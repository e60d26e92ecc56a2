package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", ":9090", "-A", ":9091", "-d", "db", "-s", "secret", "-k", "s3", "-l", "/srv/data",
			"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
			"-m", "1024", "-r", "30", "-i", "5", "-w", "8", "-f", "text",
		}, expected: &Config{
			EndpointAddrHTTP: ":9090",
			EndpointAddrGRPC: ":9091",
			DatabaseDSN:      "db",
			SecretKey:        "secret",
			StorageBackend:   "s3",
			LocalStorageRoot: "/srv/data",
			S3RootUser:       "user",
			S3RootPassword:   "password",
			S3Bucket:         "bucket",
			S3Region:         "us-west-1",
			S3BaseEndpoint:   "http://endpoint",
			MaxUploadSize:    1024,
			UploadRetention:  30 * time.Minute,
			GCInterval:       5 * time.Minute,
			Workers:          8,
			LogFormat:        "text",
		}},
		{name: "unknown flags are ignored", args: []string{"cmd", "-x", "1", "-w", "2"},
			expected: &Config{Workers: 2}},
		{name: "bad int panics", args: []string{"cmd", "-w", "many"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
