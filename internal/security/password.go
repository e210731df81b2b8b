package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

const MinPasswordLength = 6

var ErrPasswordTooShort = errors.New("password too short")

// ValidatePassword enforces the length policy for user and admin
// passwords. Length is counted in characters, not bytes.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ConfirmMatches reports whether a password and its confirmation are
// equal. Both sides are digested first so the comparison time does not
// depend on where they differ or on their lengths.
func ConfirmMatches(password, confirm string) bool {
	a := sha256.Sum256([]byte(password))
	b := sha256.Sum256([]byte(confirm))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
