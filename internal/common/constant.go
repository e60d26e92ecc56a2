// Package common contains shared constants and sentinel errors used across
// homecloud components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// Response headers set on file downloads.
const (
	HeaderContentHash = "X-Content-Hash"
	HeaderFileVersion = "X-File-Version"
	HeaderVaultIV     = "X-Vault-IV"
)
