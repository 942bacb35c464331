package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACAuth_HeadersAt(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("topsecret"))
	auth := &HMACAuth{
		Address: "0xabc",
		Creds:   Credentials{Key: "key-1", Secret: secret, Passphrase: "pp"},
	}

	h := auth.HeadersAt("POST", "/orders", `{"a":1}`, 1700000000)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write([]byte(`1700000000POST/orders{"a":1}`))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, h["POLY_SIGNATURE"])
	assert.Equal(t, "key-1", h["POLY_API_KEY"])
	assert.Equal(t, "pp", h["POLY_PASSPHRASE"])
	assert.Equal(t, "1700000000", h["POLY_TIMESTAMP"])
	assert.Equal(t, "0xabc", h["POLY_ADDRESS"])
}

func TestHMACAuth_NoAddressHeaderWhenUnset(t *testing.T) {
	auth := &HMACAuth{Creds: Credentials{Key: "k", Secret: "not base64!", Passphrase: "p"}}
	h := auth.HeadersAt("GET", "/books/1", "", 1)
	_, ok := h["POLY_ADDRESS"]
	assert.False(t, ok)
	assert.NotEmpty(t, h["POLY_SIGNATURE"])
}

func TestHMACAuth_StringRedacts(t *testing.T) {
	auth := &HMACAuth{Creds: Credentials{Key: "abcdefgh", Secret: "xy"}}
	s := auth.String()
	assert.Contains(t, s, "abcd****")
	assert.NotContains(t, s, "abcdefgh")
	assert.Contains(t, s, "secret=****")
}

func TestEncryptDecryptCredentials(t *testing.T) {
	creds := Credentials{Key: "k", Secret: "s", Passphrase: "p"}

	blob, err := EncryptCredentials(creds, "hunter2")
	require.NoError(t, err)

	got, err := DecryptCredentials(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	_, err = DecryptCredentials(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptCredentials_Rejects(t *testing.T) {
	_, err := EncryptCredentials(Credentials{Key: "k"}, "")
	assert.Error(t, err)
	_, err = EncryptCredentials(Credentials{}, "pw")
	assert.Error(t, err)
}

func TestLoadCredentials(t *testing.T) {
	t.Run("inline wins", func(t *testing.T) {
		got, err := LoadCredentials(Source{Key: "k", Secret: "s", Passphrase: "p", EncryptedPath: "/does/not/exist"})
		require.NoError(t, err)
		assert.Equal(t, Credentials{Key: "k", Secret: "s", Passphrase: "p"}, got)
	})

	t.Run("nothing configured", func(t *testing.T) {
		got, err := LoadCredentials(Source{})
		require.NoError(t, err)
		assert.True(t, got.Empty())
	})

	t.Run("encrypted file", func(t *testing.T) {
		want := Credentials{Key: "fk", Secret: "fs", Passphrase: "fp"}
		blob, err := EncryptCredentials(want, "pw")
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "creds.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		got, err := LoadCredentials(Source{EncryptedPath: path, Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCredentials(Source{EncryptedPath: filepath.Join(t.TempDir(), "nope"), Password: "pw"})
		assert.Error(t, err)
	})
}
