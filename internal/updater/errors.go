package updater

import (
	"errors"
	"fmt"
)

// Code classifies an update failure.
type Code string

// Error codes for update operations.
const (
	ErrCodeCheckFailed    Code = "CHECK_FAILED"
	ErrCodeNotFound       Code = "NOT_FOUND" // repository missing or without releases
	ErrCodeNoUpdate       Code = "NO_UPDATE"
	ErrCodeApplyFailed    Code = "APPLY_FAILED"
	ErrCodeBackupFailed   Code = "BACKUP_FAILED"
	ErrCodeRollbackFailed Code = "ROLLBACK_FAILED"
	ErrCodeNoBackup       Code = "NO_BACKUP"
	ErrCodeDisabled       Code = "DISABLED"
)

// Error is an update failure with its code and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// HasCode reports whether err carries an *Error with code.
func HasCode(err error, code Code) bool {
	var uerr *Error
	return errors.As(err, &uerr) && uerr.Code == code
}

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
