// Package cli provides the interactive homecloud command-line client.
//
// It wires configuration, the local SQLite state, the HTTP and gRPC API
// clients and the vault into a REPL. Typical flow: load the vault status,
// start a background connectivity watcher, then execute user commands
// (upload, download, versions, lifecycle changes, journal pulls, vault
// unlock and lock).
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
