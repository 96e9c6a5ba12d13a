// Package apperr defines the error codes shared by the reconciliation core.
// Components return *AppError at their boundaries so callers can branch on
// Code without matching message text.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	// ValidationFailed is caller-correctable; no side effects were applied.
	ValidationFailed Code = "VALIDATION_FAILED"
	// ConflictDetected means local and synced state disagree. Never auto-resolved.
	ConflictDetected Code = "CONFLICT_DETECTED"
	// TransferFailed is an attachment upload/download error.
	TransferFailed Code = "TRANSFER_FAILED"
	// StorageFailure is a local filesystem or database I/O error.
	StorageFailure Code = "STORAGE_FAILURE"
	// BackupFailure reports one or both backup halves failing.
	BackupFailure Code = "BACKUP_FAILURE"
	// RestoreFailure reports one or both restore halves failing.
	RestoreFailure Code = "RESTORE_FAILURE"

	NotFound          Code = "NOT_FOUND"
	InvalidTransition Code = "INVALID_TRANSITION"
	Unsupported       Code = "UNSUPPORTED"
)

// AppError is an error with a code and optional list of reasons.
type AppError struct {
	Code    Code
	Message string
	Reasons []string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if len(e.Reasons) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Reasons, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates a new AppError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code.
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Validation builds a ValidationFailed error listing every reason.
func Validation(message string, reasons ...string) *AppError {
	return &AppError{Code: ValidationFailed, Message: message, Reasons: reasons}
}

// Is reports whether any error in err's chain is an AppError with code.
func Is(err error, code Code) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
