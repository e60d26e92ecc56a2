// Package cryptox holds the primitives behind the vault key hierarchy:
// an argon2id passphrase KDF and AES-256-GCM sealing for both the wrapped
// envelope key and vault file content.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the length of derived keys and envelope keys (AES-256).
	KeySize = 32
	// SaltSize is the length of freshly generated KDF salts.
	SaltSize = 16
	// IVSize is the AES-GCM nonce length.
	IVSize = 12
)

// ErrDecrypt is returned when authenticated decryption fails: wrong key,
// wrong IV or tampered ciphertext. Garbage plaintext is never returned.
var ErrDecrypt = errors.New("authenticated decryption failed")

// DeriveKey stretches a passphrase into a KeySize key with argon2id.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// NewSalt returns SaltSize random bytes.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// NewEnvelopeKey returns a random KeySize symmetric key.
func NewEnvelopeKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-GCM under key using a fresh random IV.
// The ciphertext carries the authentication tag.
func Seal(key, plaintext []byte) (ciphertext, iv []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, iv, plaintext, nil)

	return ciphertext, iv, nil
}

// Open reverses Seal. Any authentication failure is reported as ErrDecrypt.
func Open(key, iv, ciphertext []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("%w: iv length %d", ErrDecrypt, len(iv))
	}

	plaintext, err := aesgcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// WrapKey encrypts an envelope key with a passphrase-derived key.
func WrapKey(derivedKey, envelopeKey []byte) (cipherText, iv []byte, err error) {
	if len(envelopeKey) != KeySize {
		return nil, nil, fmt.Errorf("envelope key must be %d bytes, got %d", KeySize, len(envelopeKey))
	}
	return Seal(derivedKey, envelopeKey)
}

// UnwrapKey recovers the envelope key. A wrong derived key fails here,
// inside the AEAD, rather than producing unusable key material.
func UnwrapKey(derivedKey, iv, cipherText []byte) ([]byte, error) {
	key, err := Open(derivedKey, iv, cipherText)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: unwrapped key has length %d", ErrDecrypt, len(key))
	}
	return key, nil
}
