package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
)

// sealedPrefix marks a field value produced by the encryption middleware.
const sealedPrefix = "enc:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.UserCache
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals the personal fields
// of the cached user (names, email, phone, image) with AES-GCM.
// ID, role, flags and timestamps stay in the clear so the watermark can be
// restored without a key.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.UserCache) ports.UserCache {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func personalFields(u *domain.UserRecord) []*string {
	return []*string{&u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.Image}
}

func (m *encryptionMiddleware) Save(ctx context.Context, key string, user *domain.UserRecord) error {
	if user == nil {
		return m.next.Save(ctx, key, nil)
	}

	sealed := *user
	for _, field := range personalFields(&sealed) {
		if *field == "" {
			continue
		}
		ciphertext, err := encrypt([]byte(*field), m.config.ActiveKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt cached user: %w", err)
		}
		*field = sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext)
	}

	return m.next.Save(ctx, key, &sealed)
}

func (m *encryptionMiddleware) Load(ctx context.Context, key string) (*domain.UserRecord, error) {
	stored, err := m.next.Load(ctx, key)
	if err != nil || stored == nil {
		return stored, err
	}

	opened := *stored
	for _, field := range personalFields(&opened) {
		if *field == "" {
			continue
		}
		// Plain values mean the slot was written without encryption. Fail secure.
		encoded, ok := strings.CutPrefix(*field, sealedPrefix)
		if !ok {
			return nil, errors.New("cached user is missing encrypted fields")
		}
		ciphertext, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
		}
		plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt cached user: %w", err)
		}
		*field = string(plainText)
	}

	return &opened, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
