package models

import "time"

// VaultEnvelope is the per-user wrapped envelope key. The server stores only
// the ciphertext, its IV and the KDF salt; SaltBase64 is empty on legacy
// records created before salts were persisted.
type VaultEnvelope struct {
	UserID        string
	CipherBase64  string
	IVBase64      string
	SaltBase64    string
	VaultFolderID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VaultStatus is what a client needs to drive its vault state machine.
type VaultStatus struct {
	HasEnvelope    bool   `json:"hasEnvelope"`
	EnvelopeCipher string `json:"envelopeCipher,omitempty"`
	EnvelopeIV     string `json:"envelopeIv,omitempty"`
	EnvelopeSalt   string `json:"envelopeSalt,omitempty"`
	VaultFolderID  string `json:"vaultFolderId"`
}
