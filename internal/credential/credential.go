// Package credential encrypts provider API keys before they are written to the
// store's configuration table.
package credential

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
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// EncryptedPrefix marks values as encrypted in storage.
const EncryptedPrefix = "enc:v2:"

const keyInfo = "lifeos api-key encryption"

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidFormat    = errors.New("invalid encrypted format")
)

// Manager encrypts and decrypts secrets with an AES-256-GCM key.
type Manager struct {
	key []byte
}

// NewManager creates a manager whose key is derived from identifiers of the
// current machine and user, so stored secrets only decrypt on this machine.
func NewManager() (*Manager, error) {
	return NewManagerWithSecret([]byte(machineSecret()))
}

// NewManagerWithSecret derives the key from an explicit secret.
func NewManagerWithSecret(secret []byte) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("credential secret is empty")
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, []byte("lifeos-credential-v2"), []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &Manager{key: key}, nil
}

func (m *Manager) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt returns a storable, prefixed form of plaintext. Empty input stays empty.
func (m *Manager) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := m.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the prefix are returned unchanged.
func (m *Manager) Decrypt(stored string) (string, error) {
	if !IsEncrypted(stored) {
		return stored, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidFormat, err)
	}

	gcm, err := m.aead()
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", ErrInvalidFormat
	}

	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEncrypted checks if a value is already encrypted.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// IsSecretKey reports whether a configuration key holds a secret.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.HasSuffix(k, "api_key") || strings.HasSuffix(k, "token")
}

func machineSecret() string {
	hostname, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	parts := []string{hostname, home, runtime.GOOS, runtime.GOARCH, os.Getenv("USER")}
	if uid := os.Getuid(); uid != -1 {
		parts = append(parts, "uid:"+strconv.Itoa(uid))
	}
	return strings.Join(parts, "|")
}

// MaskSecret returns a masked version of a secret for display purposes.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
