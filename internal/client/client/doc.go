// Package client contains the transports the homecloud CLI talks through.
//
// # Overview
//
//  1. HTTPClient speaks the JSON/HTTP API: uploads, downloads, file
//     lifecycle, the vault envelope and the sync pull.
//  2. GRPCSyncClient pulls the sync journal over gRPC, injecting the access
//     token via a unary interceptor.
//  3. InitDatabase opens the local SQLite database and applies the embedded
//     goose migrations (sync cursors, vault salt cache).
//
// # Error Handling
//
// Non-2xx responses become *APIError, which unwraps to the matching sentinel
// from internal/common so callers can use errors.Is. Transport failures wrap
// ErrUnavailable.
package client
