package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors that cross the streaming core boundary.
var (
	ErrTransport          = fmt.Errorf("transport error")
	ErrNoStructuredResult = fmt.Errorf("no structured result produced")
	ErrMissingCredential  = fmt.Errorf("no api key available")
)

// Infrastructure sentinels.
var (
	ErrConfigLoad = fmt.Errorf("failed to load configuration")
	ErrDecryption = fmt.Errorf("decryption failed")
	ErrEncryption = fmt.Errorf("encryption operation failed")
	ErrStore      = fmt.Errorf("store operation failed")
	ErrLockHeld   = fmt.Errorf("lock held by another process")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Style.Analyze")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsSessionFailure reports whether err is one of the errors a stream
// session is allowed to surface to its caller.
func IsSessionFailure(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrNoStructuredResult) ||
		errors.Is(err, ErrMissingCredential)
}

// ErrorCode is a machine-parseable error category for logs and exit reporting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeTransport          ErrorCode = "TRANSPORT"
	CodeNoStructuredResult ErrorCode = "NO_STRUCTURED_RESULT"
	CodeMissingCredential  ErrorCode = "MISSING_CREDENTIAL"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeStore              ErrorCode = "STORE"
)

// errorCodes is ordered so that the more specific sentinel wins when an
// error chain carries several of them.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrMissingCredential, CodeMissingCredential},
	{ErrNoStructuredResult, CodeNoStructuredResult},
	{ErrTransport, CodeTransport},
	{ErrDecryption, CodeDecryption},
	{ErrEncryption, CodeEncryption},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrStore, CodeStore},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNotFound, CodeNotFound},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}
