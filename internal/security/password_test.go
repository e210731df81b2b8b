package security

import (
	"errors"
	"testing"
)

func TestValidatePasswordRequiresMinimumLength(t *testing.T) {
	if err := ValidatePassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := ValidatePassword("sixsix"); err != nil {
		t.Fatalf("expected six characters to pass: %v", err)
	}
}

func TestValidatePasswordCountsCharacters(t *testing.T) {
	// five runes, ten bytes
	if err := ValidatePassword("ééééé"); err == nil {
		t.Fatalf("expected multi-byte password under the limit to fail")
	}
}

func TestConfirmMatches(t *testing.T) {
	if !ConfirmMatches("new-password", "new-password") {
		t.Fatalf("expected identical passwords to match")
	}
	if ConfirmMatches("new-password", "new-passwore") {
		t.Fatalf("expected different passwords not to match")
	}
	if ConfirmMatches("new-password", "new-password ") {
		t.Fatalf("expected different lengths not to match")
	}
}
