package mfa

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEnrolled indicates the user has no active MFA enrollment.
	ErrNotEnrolled = errors.New("mfa: user not enrolled")

	// ErrRateLimited indicates too many failed attempts within the window.
	ErrRateLimited = errors.New("mfa: too many failed attempts")

	// ErrInvalidCode indicates the submitted code matched neither the TOTP
	// value nor an unused backup code.
	ErrInvalidCode = errors.New("mfa: invalid code")

	// ErrSessionNotFound indicates no session row exists for the ID.
	ErrSessionNotFound = errors.New("mfa: session not found")
)

// CodeError wraps ErrInvalidCode with the number of attempts remaining before
// the rate limit engages.
type CodeError struct {
	AttemptsLeft int
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("mfa: invalid code (%d attempts left)", e.AttemptsLeft)
}

func (e *CodeError) Unwrap() error { return ErrInvalidCode }
