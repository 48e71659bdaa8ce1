// Package seal protects rescue snapshots with a passphrase. A sealed
// envelope carries everything needed to open it again: a magic marker,
// the Argon2id salt, the GCM nonce, and the AES-256-GCM ciphertext.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// keyLen is the AES-256 key length in bytes.
	keyLen = 32
	// nonceLen is the GCM nonce length in bytes.
	nonceLen = 12
	// saltLen is the Argon2id salt length in bytes.
	saltLen = 32

	// Argon2id parameters.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// magic marks the start of a sealed envelope. The trailing digit versions
// the envelope layout.
var magic = []byte("TBDSEAL1")

// ErrWrongPassphrase is returned by Open when authentication fails. The
// same error covers a tampered envelope; GCM cannot tell them apart.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted snapshot")

// Seal encrypts plaintext under a key derived from passphrase with
// Argon2id. The returned envelope is magic || salt || nonce || ciphertext.
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("random salt: %w", err)
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLen)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("random nonce: %w", err)
	}

	envelope := make([]byte, 0, len(magic)+saltLen+nonceLen+len(plaintext)+gcm.Overhead())
	envelope = append(envelope, magic...)
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	return gcm.Seal(envelope, nonce, plaintext, magic), nil
}

// Open decrypts an envelope produced by Seal.
func Open(passphrase string, envelope []byte) ([]byte, error) {
	if !IsSealed(envelope) {
		return nil, errors.New("not a sealed snapshot")
	}
	rest := envelope[len(magic):]
	if len(rest) < saltLen+nonceLen {
		return nil, errors.New("sealed snapshot truncated")
	}

	salt := rest[:saltLen]
	nonce := rest[saltLen : saltLen+nonceLen]
	ct := rest[saltLen+nonceLen:]

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLen)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ct, magic)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

// IsSealed reports whether data starts with the sealed-envelope marker.
func IsSealed(data []byte) bool {
	return len(data) >= len(magic) && string(data[:len(magic)]) == string(magic)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}
