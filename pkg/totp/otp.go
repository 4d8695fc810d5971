package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// Digits is the code length produced and accepted by this package.
	Digits = 6
	// Period is the code validity step in seconds (RFC 6238 standard).
	Period = 30
	// Skew is the number of steps accepted before and after the current one.
	Skew = 1
)

// secretRegex matches Base32 without padding: uppercase A-Z and digits 2-7.
var secretRegex = regexp.MustCompile(`^[A-Z2-7]+$`)

var codeRegex = regexp.MustCompile(`^\d{6}$`)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a new Base32-encoded 160-bit TOTP secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 20) // RFC 4226 recommends 160-bit secrets
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Join(ErrSecretGeneration, err)
	}
	return b32.EncodeToString(buf), nil
}

// ProvisioningURI builds an otpauth:// URI in the Key Uri Format understood by
// Google Authenticator, 1Password and compatible apps.
func ProvisioningURI(secret, accountName, issuer string) (string, error) {
	secret = normalizeSecret(secret)
	if !secretRegex.MatchString(secret) {
		return "", ErrInvalidSecret
	}
	if accountName == "" {
		return "", ErrMissingAccountName
	}
	if issuer == "" {
		return "", ErrMissingIssuer
	}

	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprintf("%d", Digits))
	q.Set("period", fmt.Sprintf("%d", Period))

	label := fmt.Sprintf("%s:%s", url.PathEscape(issuer), url.PathEscape(accountName))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode()), nil
}

// Verify reports whether code matches the secret's value for the current time
// step or an adjacent one (±Skew steps).
func Verify(secret, code string) (bool, error) {
	return VerifyAt(secret, code, time.Now())
}

// VerifyAt is Verify with an explicit clock, used by tests.
func VerifyAt(secret, code string, t time.Time) (bool, error) {
	secret = normalizeSecret(secret)
	if !secretRegex.MatchString(secret) {
		return false, ErrInvalidSecret
	}
	code = strings.TrimSpace(code)
	if !codeRegex.MatchString(code) {
		return false, ErrInvalidCodeFormat
	}

	key, err := b32.DecodeString(secret)
	if err != nil {
		return false, errors.Join(ErrInvalidSecret, err)
	}

	counter := t.Unix() / Period
	for i := int64(-Skew); i <= Skew; i++ {
		if hmac.Equal([]byte(hotp(key, counter+i)), []byte(code)) {
			return true, nil
		}
	}
	return false, nil
}

// Code returns the secret's value for the current time step.
func Code(secret string) (string, error) {
	return CodeAt(secret, time.Now())
}

// CodeAt returns the secret's value for the step containing t.
func CodeAt(secret string, t time.Time) (string, error) {
	secret = normalizeSecret(secret)
	if !secretRegex.MatchString(secret) {
		return "", ErrInvalidSecret
	}
	key, err := b32.DecodeString(secret)
	if err != nil {
		return "", errors.Join(ErrInvalidSecret, err)
	}
	return hotp(key, t.Unix()/Period), nil
}

// hotp implements RFC 4226 dynamic truncation over HMAC-SHA1.
func hotp(key []byte, counter int64) string {
	msg := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(sha1.New, key)
	mac.Write(msg)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := (int(sum[offset]&0x7f) << 24) |
		(int(sum[offset+1]) << 16) |
		(int(sum[offset+2]) << 8) |
		int(sum[offset+3])

	return fmt.Sprintf("%06d", value%1_000_000)
}

func normalizeSecret(s string) string {
	return strings.TrimRight(strings.ToUpper(strings.TrimSpace(s)), "=")
}
