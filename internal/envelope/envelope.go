// Package envelope encrypts short texts under a user passphrase.
//
// An envelope is "hex(iv):hex(ciphertext)". The key is derived with PBKDF2 over a
// fixed application-wide salt, so equal passphrases always yield equal keys. That is
// a known limitation of the dump threat model: envelopes live for minutes and the
// passphrase never leaves the submitter.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/dtroode/ttldump/internal/model"
)

const (
	// ApplicationSalt is mixed into every derived key.
	ApplicationSalt = "ttldump-hashed-text-salt"

	// Iterations is the PBKDF2 iteration count.
	Iterations = 10000

	// KeyLen selects AES-256.
	KeyLen = 32

	// IVLen is the per-envelope nonce length.
	IVLen = 16

	delimiter = ":"
)

// ErrEmptyPassphrase is returned by Encrypt when no passphrase is given.
var ErrEmptyPassphrase = errors.New("passphrase is empty")

// Encrypt seals plaintext under passphrase and returns the envelope string.
// Every call uses a fresh random IV.
func Encrypt(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}

	aead, err := newAEAD(passphrase)
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	ciphertext := aead.Seal(nil, iv, []byte(plaintext), nil)

	return hex.EncodeToString(iv) + delimiter + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt. A malformed envelope and a wrong
// passphrase both yield model.ErrInvalidKeyOrData.
func Decrypt(envelope, passphrase string) (string, error) {
	if passphrase == "" {
		return "", model.ErrInvalidKeyOrData
	}

	ivHex, ctHex, ok := strings.Cut(envelope, delimiter)
	if !ok {
		return "", model.ErrInvalidKeyOrData
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != IVLen {
		return "", model.ErrInvalidKeyOrData
	}

	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", model.ErrInvalidKeyOrData
	}

	aead, err := newAEAD(passphrase)
	if err != nil {
		return "", model.ErrInvalidKeyOrData
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", model.ErrInvalidKeyOrData
	}

	return string(plaintext), nil
}

func deriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(ApplicationSalt), Iterations, KeyLen, sha256.New)
}

func newAEAD(passphrase string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, IVLen)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return aead, nil
}
