package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"scriptoria/internal/domain"
)

// EncPrefix marks a sealed value.
const EncPrefix = "enc:"

// EncryptValue encrypts plaintext with AES-256-GCM under a key derived from
// passphrase. The result is hex(salt) + ":" + hex(nonce+ciphertext).
func EncryptValue(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("%w: passphrase must not be empty", domain.ErrEncryption)
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue reverses EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: invalid encrypted format", domain.ErrDecryption)
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %v", domain.ErrDecryption, err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", domain.ErrDecryption, err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}

	return string(plaintext), nil
}

// Seal encrypts plaintext and prefixes it with EncPrefix. An empty
// passphrase returns plaintext unchanged.
func Seal(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return plaintext, nil
	}
	enc, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		return "", err
	}
	return EncPrefix + enc, nil
}

// Open decrypts a value produced by Seal. Values without EncPrefix are
// returned as-is (plaintext passthrough).
func Open(value, passphrase string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if passphrase == "" {
		return "", fmt.Errorf("%w: value is encrypted but no passphrase is set", domain.ErrDecryption)
	}
	return DecryptValue(strings.TrimPrefix(value, EncPrefix), passphrase)
}

// Reseal opens value with oldPassphrase and seals it again under
// newPassphrase. An empty newPassphrase leaves the value in plaintext.
func Reseal(value, oldPassphrase, newPassphrase string) (string, error) {
	plain, err := Open(value, oldPassphrase)
	if err != nil {
		return "", err
	}
	return Seal(plain, newPassphrase)
}

// IsSealed checks if a string has the "enc:" prefix.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, EncPrefix)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}
