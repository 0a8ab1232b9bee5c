package envelope

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/ttldump/internal/model"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		plaintext  string
		passphrase string
	}{
		{name: "simple", plaintext: "secret", passphrase: "pw123"},
		{name: "empty plaintext", plaintext: "", passphrase: "pw"},
		{name: "unicode", plaintext: "привет, 世界 🌍", passphrase: "ключ"},
		{name: "contains delimiter", plaintext: "a:b:c", passphrase: "x:y"},
		{name: "long", plaintext: strings.Repeat("lorem ipsum ", 2000), passphrase: "long-passphrase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Encrypt(tt.plaintext, tt.passphrase)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, env)

			got, err := Decrypt(env, tt.passphrase)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestEncrypt_RandomIV(t *testing.T) {
	a, err := Encrypt("same", "same")
	require.NoError(t, err)
	b, err := Encrypt("same", "same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	ivA, _, _ := strings.Cut(a, ":")
	ivB, _, _ := strings.Cut(b, ":")
	assert.NotEqual(t, ivA, ivB)
	assert.Len(t, ivA, IVLen*2)
}

func TestEncrypt_EmptyPassphrase(t *testing.T) {
	env, err := Encrypt("text", "")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
	assert.Empty(t, env)
}

func TestDecrypt_WrongPassphrase(t *testing.T) {
	for _, plaintext := range []string{"secret", "", "another secret value"} {
		env, err := Encrypt(plaintext, "right")
		require.NoError(t, err)

		got, err := Decrypt(env, "wrong")
		assert.ErrorIs(t, err, model.ErrInvalidKeyOrData)
		assert.Empty(t, got)
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	valid, err := Encrypt("secret", "pw")
	require.NoError(t, err)
	ivHex, ctHex, _ := strings.Cut(valid, ":")

	ct, err := hex.DecodeString(ctHex)
	require.NoError(t, err)
	ct[0] ^= 0xff
	tampered := ivHex + ":" + hex.EncodeToString(ct)

	tests := []struct {
		name       string
		envelope   string
		passphrase string
	}{
		{name: "empty", envelope: "", passphrase: "pw"},
		{name: "no delimiter", envelope: ivHex + ctHex, passphrase: "pw"},
		{name: "non-hex iv", envelope: "zz" + ivHex[2:] + ":" + ctHex, passphrase: "pw"},
		{name: "non-hex ciphertext", envelope: ivHex + ":" + "not-hex", passphrase: "pw"},
		{name: "short iv", envelope: ivHex[:8] + ":" + ctHex, passphrase: "pw"},
		{name: "tampered ciphertext", envelope: tampered, passphrase: "pw"},
		{name: "truncated ciphertext", envelope: ivHex + ":" + ctHex[:4], passphrase: "pw"},
		{name: "empty passphrase", envelope: valid, passphrase: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decrypt(tt.envelope, tt.passphrase)
			assert.ErrorIs(t, err, model.ErrInvalidKeyOrData)
			assert.Empty(t, got)
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	assert.Equal(t, deriveKey("pw"), deriveKey("pw"))
	assert.NotEqual(t, deriveKey("pw"), deriveKey("pw2"))
	assert.Len(t, deriveKey("pw"), KeyLen)
}
