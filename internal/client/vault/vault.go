// Package vault holds the client half of the vault key hierarchy.
//
// The passphrase never leaves the device. It is stretched with argon2id into
// a key that wraps a random envelope key; only the wrapped envelope key, its
// IV and the salt are stored on the server. File content is sealed with the
// envelope key before it is uploaded.
//
// The vault moves through Loading, Setup or Locked, then Unlocked. A failure
// to reach the server keeps it in Loading: only an explicit "no envelope"
// answer leads to Setup, so a network error or a wrong passphrase can never
// cause a new envelope to replace an existing one.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/homecloud/internal/client/models"
	"github.com/dmitrijs2005/homecloud/internal/client/repositories/salts"
	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/cryptox"
)

type State int

const (
	StateLoading State = iota
	StateSetup
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "loading"
	}
}

var ErrEmptyPassphrase = errors.New("empty passphrase")

// API is the part of the server client the vault talks to.
type API interface {
	VaultStatus(ctx context.Context) (*models.VaultStatus, error)
	SaveEnvelope(ctx context.Context, cipher, iv, salt string) error
}

type Vault struct {
	mu     sync.Mutex
	api    API
	salts  salts.Repository
	userID string

	state  State
	status *models.VaultStatus
	key    []byte
}

func New(api API, saltRepo salts.Repository, userID string) *Vault {
	return &Vault{api: api, salts: saltRepo, userID: userID}
}

func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// FolderID is the server-assigned vault folder, empty until an envelope exists.
func (v *Vault) FolderID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.status == nil {
		return ""
	}
	return v.status.VaultFolderID
}

// Load refreshes the envelope status. On error the state is left unchanged.
func (v *Vault) Load(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.load(ctx)
}

func (v *Vault) load(ctx context.Context) error {
	st, err := v.api.VaultStatus(ctx)
	if err != nil {
		return fmt.Errorf("vault status: %w", err)
	}

	v.status = st
	switch {
	case !st.HasEnvelope:
		v.wipe()
		v.state = StateSetup
	case v.state != StateUnlocked:
		v.state = StateLocked
	}
	return nil
}

// Unlock opens the vault with passphrase. In the Setup state it first
// creates and stores a new envelope. A passphrase that fails to unwrap the
// stored envelope yields common.ErrWrongPassphrase.
func (v *Vault) Unlock(ctx context.Context, passphrase []byte) error {
	if len(passphrase) == 0 {
		return ErrEmptyPassphrase
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == StateLoading {
		if err := v.load(ctx); err != nil {
			return err
		}
	}

	switch v.state {
	case StateUnlocked:
		return nil
	case StateSetup:
		err := v.setup(ctx, passphrase)
		if err == nil || !errors.Is(err, common.ErrEnvelopeExists) {
			return err
		}
		// another device created the envelope first
		if err := v.load(ctx); err != nil {
			return err
		}
		if v.state != StateLocked {
			return common.ErrEnvelopeExists
		}
	}
	return v.unlock(ctx, passphrase)
}

func (v *Vault) setup(ctx context.Context, passphrase []byte) error {
	salt := cryptox.NewSalt()
	derived := cryptox.DeriveKey(passphrase, salt)
	defer common.WipeByteArray(derived)

	envelopeKey := cryptox.NewEnvelopeKey()
	cipherText, iv, err := cryptox.WrapKey(derived, envelopeKey)
	if err != nil {
		common.WipeByteArray(envelopeKey)
		return fmt.Errorf("wrap envelope key: %w", err)
	}

	enc := base64.StdEncoding
	if err := v.api.SaveEnvelope(ctx, enc.EncodeToString(cipherText), enc.EncodeToString(iv), enc.EncodeToString(salt)); err != nil {
		common.WipeByteArray(envelopeKey)
		return fmt.Errorf("save envelope: %w", err)
	}

	// the server keeps the salt too; the local copy only matters for legacy envelopes
	_ = v.salts.Set(ctx, v.userID, salt)

	if err := v.load(ctx); err != nil {
		common.WipeByteArray(envelopeKey)
		return err
	}
	v.key = envelopeKey
	v.state = StateUnlocked
	return nil
}

func (v *Vault) unlock(ctx context.Context, passphrase []byte) error {
	st := v.status
	enc := base64.StdEncoding

	cipherText, err := enc.DecodeString(st.EnvelopeCipher)
	if err != nil {
		return fmt.Errorf("%w: cipher: %v", common.ErrInvalidEnvelope, err)
	}
	iv, err := enc.DecodeString(st.EnvelopeIV)
	if err != nil {
		return fmt.Errorf("%w: iv: %v", common.ErrInvalidEnvelope, err)
	}

	legacy := st.EnvelopeSalt == ""
	var salt []byte
	if legacy {
		salt, err = v.salts.Get(ctx, v.userID)
		if err != nil {
			return fmt.Errorf("salt cache: %w", err)
		}
		if salt == nil {
			return fmt.Errorf("%w: salt is missing on server and device", common.ErrInvalidEnvelope)
		}
	} else if salt, err = enc.DecodeString(st.EnvelopeSalt); err != nil {
		return fmt.Errorf("%w: salt: %v", common.ErrInvalidEnvelope, err)
	}

	derived := cryptox.DeriveKey(passphrase, salt)
	defer common.WipeByteArray(derived)

	key, err := cryptox.UnwrapKey(derived, iv, cipherText)
	if errors.Is(err, cryptox.ErrDecrypt) {
		return common.ErrWrongPassphrase
	}
	if err != nil {
		return fmt.Errorf("unwrap envelope key: %w", err)
	}

	if legacy {
		// best effort, retried on the next unlock
		if err := v.api.SaveEnvelope(ctx, st.EnvelopeCipher, st.EnvelopeIV, enc.EncodeToString(salt)); err == nil {
			st.EnvelopeSalt = enc.EncodeToString(salt)
		}
	} else {
		_ = v.salts.Set(ctx, v.userID, salt)
	}

	v.key = key
	v.state = StateUnlocked
	return nil
}

// Lock wipes the envelope key. The vault stays Locked until the next Unlock.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.wipe()
	if v.state == StateUnlocked {
		v.state = StateLocked
	}
}

func (v *Vault) wipe() {
	if v.key != nil {
		common.WipeByteArray(v.key)
		v.key = nil
	}
}

// EncryptFile seals plaintext under the envelope key with a fresh IV and
// returns the ciphertext and the base64 IV to send with the upload.
func (v *Vault) EncryptFile(plaintext []byte) ([]byte, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUnlocked {
		return nil, "", common.ErrVaultLocked
	}
	cipherText, iv, err := cryptox.Seal(v.key, plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("encrypt file: %w", err)
	}
	return cipherText, base64.StdEncoding.EncodeToString(iv), nil
}

// DecryptFile reverses EncryptFile. Tampered content fails with cryptox.ErrDecrypt.
func (v *Vault) DecryptFile(cipherText []byte, ivBase64 string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUnlocked {
		return nil, common.ErrVaultLocked
	}
	iv, err := base64.StdEncoding.DecodeString(ivBase64)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	return cryptox.Open(v.key, iv, cipherText)
}
