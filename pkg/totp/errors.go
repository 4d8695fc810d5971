package totp

import "errors"

var (
	ErrInvalidSecret        = errors.New("totp: invalid secret")
	ErrInvalidCodeFormat    = errors.New("totp: invalid code format")
	ErrMissingAccountName   = errors.New("totp: missing account name")
	ErrMissingIssuer        = errors.New("totp: missing issuer")
	ErrEncryptFailed        = errors.New("totp: failed to encrypt secret")
	ErrDecryptFailed        = errors.New("totp: failed to decrypt secret")
	ErrCiphertextTooShort   = errors.New("totp: ciphertext too short")
	ErrInvalidKeyLength     = errors.New("totp: encryption key must be 32 bytes")
	ErrInvalidBackupCount   = errors.New("totp: backup code count must be positive")
	ErrSecretGeneration     = errors.New("totp: failed to generate secret")
	ErrBackupCodeGeneration = errors.New("totp: failed to generate backup code")
)
