package totp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const keySize = 32 // AES-256

// kdfSalt is fixed: the master key is already high-entropy random material, the
// derivation only shapes it into a uniform 32-byte AES key. Changing the salt
// invalidates every stored secret.
var kdfSalt = []byte("infrabot-mfa-salt-v1")

const kdfIterations = 100_000

// DeriveKey derives the AES-256 key used for secret encryption from the master
// key supplied via configuration (MFA_ENCRYPTION_KEY).
func DeriveKey(master []byte) []byte {
	return pbkdf2.Key(master, kdfSalt, kdfIterations, keySize, sha256.New)
}

// Encrypt seals plaintext with AES-256-GCM and returns base64(nonce||cipher).
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != keySize {
		return "", errors.Join(ErrEncryptFailed, ErrInvalidKeyLength)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Join(ErrEncryptFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Join(ErrEncryptFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func Decrypt(encoded string, key []byte) (string, error) {
	if len(key) != keySize {
		return "", errors.Join(ErrDecryptFailed, ErrInvalidKeyLength)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Join(ErrDecryptFailed, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Join(ErrDecryptFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Join(ErrDecryptFailed, err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", errors.Join(ErrDecryptFailed, ErrCiphertextTooShort)
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.Join(ErrDecryptFailed, err)
	}
	return string(plaintext), nil
}

// GenerateMasterKey returns a fresh base64-encoded 32-byte master key, suitable
// for the MFA_ENCRYPTION_KEY environment variable.
func GenerateMasterKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
