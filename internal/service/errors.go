package service

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCode     = errors.New("invite code is empty")
	ErrRateLimited   = errors.New("too many failed invite code attempts")
	ErrInvalidCode   = errors.New("invite code invalid")
	ErrCodeExhausted = errors.New("invite code usage exhausted")
	ErrCodeExpired   = errors.New("invite code expired")
	ErrDuplicateCode = errors.New("invite code already exists")
	ErrStorage       = errors.New("storage failure")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCodeNotFound  = errors.New("invite code not found")
)

// ErrorKind is the stable, machine-readable name of a failure.
type ErrorKind string

const (
	KindEmptyCode     ErrorKind = "empty_code"
	KindRateLimited   ErrorKind = "rate_limited"
	KindInvalidCode   ErrorKind = "invalid_code"
	KindCodeExhausted ErrorKind = "code_exhausted"
	KindCodeExpired   ErrorKind = "code_expired"
	KindDuplicateCode ErrorKind = "duplicate_code"
	KindStorage       ErrorKind = "storage_error"
	KindInvalidInput  ErrorKind = "invalid_input"
	KindNotFound      ErrorKind = "not_found"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrEmptyCode, KindEmptyCode},
	{ErrRateLimited, KindRateLimited},
	{ErrInvalidCode, KindInvalidCode},
	{ErrCodeExhausted, KindCodeExhausted},
	{ErrCodeExpired, KindCodeExpired},
	{ErrDuplicateCode, KindDuplicateCode},
	{ErrInvalidInput, KindInvalidInput},
	{ErrCodeNotFound, KindNotFound},
	{ErrStorage, KindStorage},
}

// KindOf maps err to its ErrorKind. Unrecognised errors are reported as storage errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindStorage
}

// storageError wraps a repository failure so both ErrStorage and the cause match errors.Is.
func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
