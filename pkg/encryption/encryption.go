package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Salts used to derive independent keys from one configured passphrase.
const (
	TwoFactorSecretSalt = "twofa-secret-salt"
	ConsumerSecretSalt  = "oauth2-client-salt"

	pbkdf2Iterations = 10000
	keyLength        = 32
	minKeyLength     = 16
)

// Cipher encrypts values before they are written to storage.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESCipher encrypts with AES-256-GCM. Output is base64(nonce || sealed).
type AESCipher struct {
	key []byte
}

// NewAESCipher derives a 32-byte key from passphrase and salt with PBKDF2-SHA256.
func NewAESCipher(passphrase, salt string) (*AESCipher, error) {
	if err := ValidateEncryptionKey(passphrase); err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, keyLength, sha256.New)
	return &AESCipher{key: key}, nil
}

func (c *AESCipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts the given plaintext using AES-256-GCM
func (c *AESCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts the given ciphertext using AES-256-GCM
func (c *AESCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("ciphertext cannot be empty")
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// PlaintextCipher stores values unchanged. Used when no encryption key is configured.
type PlaintextCipher struct{}

func (PlaintextCipher) Encrypt(plaintext string) (string, error) { return plaintext, nil }

func (PlaintextCipher) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

// NewCipher returns an AESCipher when passphrase is set, otherwise a PlaintextCipher.
func NewCipher(passphrase, salt string) (Cipher, error) {
	if passphrase == "" {
		return PlaintextCipher{}, nil
	}
	return NewAESCipher(passphrase, salt)
}

// ValidateEncryptionKey validates that an encryption key is suitable for use
func ValidateEncryptionKey(key string) error {
	if len(key) < minKeyLength {
		return fmt.Errorf("encryption key must be at least %d characters long", minKeyLength)
	}
	return nil
}
