package auth

import (
	"strings"
	"unicode/utf8"
)

// PasswordRequirement describes the signup password policy.
const PasswordRequirement = "Password must be at least 6 characters and include letters, numbers and a special character (@$!%*#?&)."

const passwordSpecials = "@$!%*#?&"

// ValidatePassword enforces the signup policy: at least six characters
// containing an ASCII letter, a digit and one of @$!%*#?&. Sign-in does not
// apply it, so older accounts keep working.
func ValidatePassword(password string) error {
	var letter, digit, special bool
	for _, r := range password {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if utf8.RuneCountInString(password) < 6 || !letter || !digit || !special {
		return NewError(ErrWeakPassword, PasswordRequirement, nil)
	}
	return nil
}
