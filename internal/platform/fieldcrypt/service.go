package fieldcrypt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 100_000
	kdfKeyLen     = 32
)

// kdfSalt is fixed: every device and the collection server derive the same
// key from the same passphrase.
var kdfSalt = []byte("chr-fieldsync/field-key/v1")

// Service applies field-level encryption for the application and is the
// FieldEncryptor handed to the stores. With no key configured it runs
// disabled and passes values through untouched.
type Service struct {
	encryptor FieldEncryptor
}

// NewService builds the encryption service from a configured key.
//
// A 64-character hex string is used directly as an AES-256 key. Any other
// non-empty value is treated as a passphrase and stretched with
// PBKDF2-SHA256. An empty key disables encryption.
func NewService(key string, logger zerolog.Logger) (*Service, error) {
	if key == "" {
		logger.Warn().Msg("field encryption disabled: FIELD_ENCRYPTION_KEY is not set")
		return &Service{}, nil
	}

	raw, err := DeriveKey(key)
	if err != nil {
		return nil, err
	}

	enc, err := NewAESEncryptor(raw)
	if err != nil {
		return nil, fmt.Errorf("create field encryptor: %w", err)
	}

	logger.Debug().Msg("field-level encryption enabled")
	return &Service{encryptor: enc}, nil
}

// DeriveKey turns the configured key into 32 bytes of key material.
func DeriveKey(key string) ([]byte, error) {
	if len(key) == 64 {
		if raw, err := hex.DecodeString(key); err == nil {
			return raw, nil
		}
	}
	if key == "" {
		return nil, fmt.Errorf("fieldcrypt: empty key")
	}
	return pbkdf2.Key([]byte(key), kdfSalt, kdfIterations, kdfKeyLen, sha256.New), nil
}

// Encrypt seals value, or returns it unchanged when disabled.
func (s *Service) Encrypt(value string) (string, error) {
	if s.encryptor == nil {
		return value, nil
	}
	return s.encryptor.Encrypt(value)
}

// Decrypt opens value, or returns it unchanged when disabled.
func (s *Service) Decrypt(value string) (string, error) {
	if s.encryptor == nil {
		return value, nil
	}
	return s.encryptor.Decrypt(value)
}
