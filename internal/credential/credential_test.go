package credential

import (
	"errors"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManagerWithSecret([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestManager_EncryptDecrypt(t *testing.T) {
	manager := newTestManager(t)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"openai key", "sk-1234567890abcdef"},
		{"long key", strings.Repeat("a", 1000)},
		{"unicode content", "schlüssel-ключ"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := manager.Encrypt(tc.plaintext)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			if !IsEncrypted(encrypted) {
				t.Errorf("expected prefix %q, got %q", EncryptedPrefix, encrypted)
			}
			if strings.Contains(encrypted, tc.plaintext) {
				t.Error("ciphertext leaks plaintext")
			}

			decrypted, err := manager.Decrypt(encrypted)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if decrypted != tc.plaintext {
				t.Errorf("got %q, want %q", decrypted, tc.plaintext)
			}
		})
	}
}

func TestManager_EmptyStaysEmpty(t *testing.T) {
	got, err := newTestManager(t).Encrypt("")
	if err != nil || got != "" {
		t.Errorf("Encrypt(\"\") = %q, %v", got, err)
	}
}

func TestManager_DecryptPlaintext(t *testing.T) {
	got, err := newTestManager(t).Decrypt("sk-legacy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "sk-legacy" {
		t.Errorf("got %q", got)
	}
}

func TestManager_DecryptInvalid(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Decrypt(EncryptedPrefix + "!!!"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
	if _, err := m.Decrypt(EncryptedPrefix + "YWJj"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat for short payload, got %v", err)
	}
}

func TestManager_WrongKey(t *testing.T) {
	a := newTestManager(t)
	b, err := NewManagerWithSecret([]byte("other-secret"))
	if err != nil {
		t.Fatal(err)
	}

	encrypted, err := a.Encrypt("sk-abc")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Decrypt(encrypted); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestManager_DifferentNonces(t *testing.T) {
	m := newTestManager(t)
	first, _ := m.Encrypt("same")
	second, _ := m.Encrypt("same")
	if first == second {
		t.Error("two encryptions of the same value should differ")
	}
}

func TestNewManagerWithSecret_Empty(t *testing.T) {
	if _, err := NewManagerWithSecret(nil); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestIsSecretKey(t *testing.T) {
	cases := map[string]bool{
		"openai.api_key":    true,
		"anthropic.API_KEY": true,
		"provider.model":    false,
	}
	for key, want := range cases {
		if got := IsSecretKey(key); got != want {
			t.Errorf("IsSecretKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("short"); got != "****" {
		t.Errorf("got %q", got)
	}
	if got := MaskSecret("sk-1234567890abcdef"); got != "sk-1...cdef" {
		t.Errorf("got %q", got)
	}
}
