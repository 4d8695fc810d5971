package totp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// GenerateBackupCodes returns count single-use codes in XXXX-XXXX format.
// Codes are shown to the user exactly once; only bcrypt hashes are persisted.
func GenerateBackupCodes(count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidBackupCount
	}

	codes := make([]string, count)
	for i := range codes {
		a, err := rand.Int(rand.Reader, big.NewInt(10_000))
		if err != nil {
			return nil, errors.Join(ErrBackupCodeGeneration, err)
		}
		b, err := rand.Int(rand.Reader, big.NewInt(10_000))
		if err != nil {
			return nil, errors.Join(ErrBackupCodeGeneration, err)
		}
		codes[i] = fmt.Sprintf("%04d-%04d", a.Int64(), b.Int64())
	}
	return codes, nil
}

// HashBackupCode hashes a backup code for storage.
func HashBackupCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyBackupCode reports whether code matches the stored bcrypt hash.
func VerifyBackupCode(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
