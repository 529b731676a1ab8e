package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidTokenType   = errors.New("invalid token type")
	ErrUserNotFound       = errors.New("user not found")
)

// ErrWeakPassword carries the first policy rule the password failed.
type ErrWeakPassword struct {
	Reason string
}

func (e ErrWeakPassword) Error() string {
	return fmt.Sprintf("weak password: %s", e.Reason)
}

// ErrAccountLocked is returned while a username is inside its lockout window.
type ErrAccountLocked struct {
	RetryAfter time.Duration
}

func (e ErrAccountLocked) Error() string {
	return "account temporarily locked"
}
