package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

func TestEncryptDecrypt(t *testing.T) {
	em, err := NewEncryptionManagerWithKey(DeriveKeyFromPassword("secret"), logger.Nop())
	require.NoError(t, err)

	sealed, err := em.Encrypt("plex-token")
	require.NoError(t, err)
	assert.NotEqual(t, "plex-token", sealed)

	again, err := em.Encrypt("plex-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ between calls")

	plain, err := em.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "plex-token", plain)
}

func TestEmptyStrings(t *testing.T) {
	em, err := NewEncryptionManagerWithKey(DeriveKeyFromPassword("x"), logger.Nop())
	require.NoError(t, err)

	sealed, err := em.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := em.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestDecryptErrors(t *testing.T) {
	em, err := NewEncryptionManagerWithKey(DeriveKeyFromPassword("a"), logger.Nop())
	require.NoError(t, err)
	other, err := NewEncryptionManagerWithKey(DeriveKeyFromPassword("b"), logger.Nop())
	require.NoError(t, err)

	_, err = em.Decrypt("not base64!")
	assert.Error(t, err)

	_, err = em.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	sealed, err := other.Encrypt("token")
	require.NoError(t, err)
	_, err = em.Decrypt(sealed)
	assert.Error(t, err)
}

func TestInvalidKeySize(t *testing.T) {
	_, err := NewEncryptionManagerWithKey([]byte("short"), logger.Nop())
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestKeyFileIsCreatedAndReused(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	dir := filepath.Join(t.TempDir(), "data")

	first, err := NewEncryptionManager(dir, logger.Nop())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, KeyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	sealed, err := first.Encrypt("token")
	require.NoError(t, err)

	second, err := NewEncryptionManager(dir, logger.Nop())
	require.NoError(t, err)
	plain, err := second.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token", plain)
}

func TestKeyFromEnvironment(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "bm90LWEta2V5")
	_, err := NewEncryptionManager(t.TempDir(), logger.Nop())
	assert.Error(t, err)

	t.Setenv("ENCRYPTION_KEY", "MDEyMzQ1Njc4OTAxMjM0NTY3ODkwMTIzNDU2Nzg5MDE=")
	dir := t.TempDir()
	_, err = NewEncryptionManager(dir, logger.Nop())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, KeyFileName))
	assert.True(t, os.IsNotExist(err))
}
