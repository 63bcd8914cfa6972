package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

// KeyFileName is the name of the generated key file inside the data directory
const KeyFileName = "encryption.key"

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidKeySize    = errors.New("invalid key size")
)

// EncryptionManager seals secrets (the Plex token) before they are written to disk
type EncryptionManager struct {
	gcm    cipher.AEAD
	logger *logger.Logger
}

// NewEncryptionManager loads the key from ENCRYPTION_KEY, or from the key file
// in dataDir, generating and saving a new key when neither exists.
func NewEncryptionManager(dataDir string, log *logger.Logger) (*EncryptionManager, error) {
	key, err := loadOrCreateKey(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	return NewEncryptionManagerWithKey(key, log)
}

// NewEncryptionManagerWithKey creates an encryption manager with a specific 32 byte key
func NewEncryptionManagerWithKey(key []byte, log *logger.Logger) (*EncryptionManager, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &EncryptionManager{
		gcm:    gcm,
		logger: log.WithComponent("crypto"),
	}, nil
}

// Encrypt seals plaintext with AES-256-GCM and returns it base64 encoded.
// The empty string encrypts to the empty string.
func (em *EncryptionManager) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, em.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		em.logger.Error("Failed to generate nonce", map[string]interface{}{
			"error": err.Error(),
		})
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := em.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (em *EncryptionManager) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := em.gcm.NonceSize()
	if len(data) < nonceSize {
		em.logger.Error("Ciphertext too short", map[string]interface{}{
			"data_length": len(data),
			"nonce_size":  nonceSize,
		})
		return "", ErrInvalidCiphertext
	}

	plaintext, err := em.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		em.logger.Error("Failed to decrypt", map[string]interface{}{
			"error": err.Error(),
		})
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func loadOrCreateKey(dataDir string) ([]byte, error) {
	if keyStr := os.Getenv("ENCRYPTION_KEY"); keyStr != "" {
		key, err := decodeKey(keyStr)
		if err != nil {
			return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
		}
		return key, nil
	}

	if dataDir == "" {
		dataDir = "./data"
	}
	keyPath := filepath.Join(dataDir, KeyFileName)

	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := decodeKey(string(data))
		if err != nil {
			return nil, fmt.Errorf("invalid key file %s: %w", keyPath, err)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to save encryption key: %w", err)
	}

	return key, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DeriveKeyFromPassword derives a 32 byte key from a password using SHA-256
func DeriveKeyFromPassword(password string) []byte {
	hash := sha256.Sum256([]byte(password))
	return hash[:]
}
