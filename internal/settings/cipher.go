package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// KeyEnv names the variable holding the key that encrypts the headers
// setting at rest: 32 raw bytes or their base64 encoding.
const KeyEnv = "IMAGETOLINK_SETTINGS_KEY"

const encryptedPrefix = "enc:"

var (
	ErrInvalidCiphertext = errors.New("invalid settings ciphertext")
	ErrMissingKey        = errors.New("settings are encrypted but " + KeyEnv + " is not set")
)

// Cipher seals secret settings with AES-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// CipherFromEnv builds a cipher from KeyEnv. It returns nil when the
// variable is unset, leaving settings stored in plain text.
func CipherFromEnv() (*Cipher, error) {
	raw := strings.TrimSpace(os.Getenv(KeyEnv))
	if raw == "" {
		return nil, nil
	}
	c, err := NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyEnv, err)
	}
	return c, nil
}

func NewCipher(rawKey string) (*Cipher, error) {
	key, err := decodeKey(rawKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

// Seal encrypts plain and marks the result so Open can tell it apart from a
// plain value.
func (c *Cipher) Seal(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the marker pass through unchanged.
func (c *Cipher) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if c == nil {
		return "", ErrMissingKey
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix)
}
