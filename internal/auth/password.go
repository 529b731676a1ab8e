package auth

import "strings"

const passwordMinLength = 8

const passwordSpecialChars = `!@#$%^&*(),.?":{}|<>`

// ValidatePassword enforces the registration password policy. It runs before
// any hash is computed so weak passwords never reach storage.
func ValidatePassword(password string) error {
	if len(password) < passwordMinLength {
		return ErrWeakPassword{Reason: "must be at least 8 characters long"}
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSpecialChars, r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return ErrWeakPassword{Reason: "must contain an uppercase letter"}
	case !hasLower:
		return ErrWeakPassword{Reason: "must contain a lowercase letter"}
	case !hasDigit:
		return ErrWeakPassword{Reason: "must contain a digit"}
	case !hasSpecial:
		return ErrWeakPassword{Reason: "must contain a special character"}
	}

	return nil
}
